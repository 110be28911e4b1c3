package browser

import (
	"context"
	"fmt"
	"strings"

	"autojob/internal/page"

	"github.com/playwright-community/playwright-go"
)

const typeDelayMs = 40

// withLocator общий каркас операций над элементом: проверка ctx и поиск локатора.
func (s *Surface) withLocator(ctx context.Context, t page.Target, fn func(playwright.Locator) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := s.locate(t)
	if err != nil {
		return err
	}
	return fn(loc)
}

func (s *Surface) Click(ctx context.Context, t page.Target) error {
	return s.withLocator(ctx, t, func(loc playwright.Locator) error {
		return loc.Click(playwright.LocatorClickOptions{Timeout: s.timeout()})
	})
}

func (s *Surface) Check(ctx context.Context, t page.Target) error {
	return s.withLocator(ctx, t, func(loc playwright.Locator) error {
		return loc.Check(playwright.LocatorCheckOptions{Timeout: s.timeout()})
	})
}

func (s *Surface) Fill(ctx context.Context, t page.Target, value string) error {
	return s.withLocator(ctx, t, func(loc playwright.Locator) error {
		return loc.Fill(value, playwright.LocatorFillOptions{Timeout: s.timeout()})
	})
}

// Type печатает посимвольно с задержкой. Нужен для автокомплита, который не реагирует на fill.
func (s *Surface) Type(ctx context.Context, t page.Target, value string) error {
	return s.withLocator(ctx, t, func(loc playwright.Locator) error {
		if err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(800)}); err != nil {
			return fmt.Errorf("фокус: %w", err)
		}
		return loc.PressSequentially(value, playwright.LocatorPressSequentiallyOptions{
			Delay: playwright.Float(typeDelayMs),
		})
	})
}

// Select выбирает вариант по подписи. Кастомный выпадающий список без <select> просто открывается кликом.
func (s *Surface) Select(ctx context.Context, t page.Target, label string) error {
	return s.withLocator(ctx, t, func(loc playwright.Locator) error {
		_, err := loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{label}},
			playwright.LocatorSelectOptionOptions{Timeout: playwright.Float(2000)})
		if err == nil {
			return nil
		}
		return loc.Click(playwright.LocatorClickOptions{Timeout: s.timeout()})
	})
}

func (s *Surface) SetFiles(ctx context.Context, t page.Target, path string) error {
	return s.withLocator(ctx, t, func(loc playwright.Locator) error {
		return loc.SetInputFiles(path, playwright.LocatorSetInputFilesOptions{Timeout: playwright.Float(5000)})
	})
}

func (s *Surface) ScrollIntoView(ctx context.Context, t page.Target) error {
	return s.withLocator(ctx, t, func(loc playwright.Locator) error {
		return loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: s.timeout()})
	})
}

func (s *Surface) Scroll(ctx context.Context, dy int) error {
	p := s.getPage()
	if p == nil {
		return errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.Evaluate(`(dy) => window.scrollBy({ top: dy, behavior: 'instant' })`, dy)
	return err
}

func (s *Surface) PressKey(ctx context.Context, key string) error {
	p := s.getPage()
	if p == nil {
		return errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Keyboard().Press(key)
}

// InputValue значение поля. Для <select> возвращается подпись выбранного варианта.
func (s *Surface) InputValue(ctx context.Context, t page.Target) (string, error) {
	var out string
	err := s.withLocator(ctx, t, func(loc playwright.Locator) error {
		v, err := loc.Evaluate(`el => {
			if (el.tagName === 'SELECT') {
				const opt = el.options[el.selectedIndex];
				return opt ? (opt.label || opt.text || '') : '';
			}
			if ('value' in el) return String(el.value || '');
			return String(el.innerText || '');
		}`, nil, playwright.LocatorEvaluateOptions{Timeout: s.timeout()})
		if err != nil {
			return err
		}
		out, _ = v.(string)
		return nil
	})
	return strings.TrimSpace(out), err
}

func (s *Surface) IsChecked(ctx context.Context, t page.Target) (bool, error) {
	var out bool
	err := s.withLocator(ctx, t, func(loc playwright.Locator) error {
		v, err := loc.IsChecked(playwright.LocatorIsCheckedOptions{Timeout: s.timeout()})
		out = v
		return err
	})
	return out, err
}

func (s *Surface) Attribute(ctx context.Context, t page.Target, name string) (string, error) {
	var out string
	err := s.withLocator(ctx, t, func(loc playwright.Locator) error {
		v, err := loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: s.timeout()})
		out = v
		return err
	})
	return out, err
}

// UploadedFile имя файла, выбранного в file input. Пусто, если файла нет.
func (s *Surface) UploadedFile(ctx context.Context, t page.Target) (string, error) {
	var out string
	err := s.withLocator(ctx, t, func(loc playwright.Locator) error {
		v, err := loc.Evaluate(`el => (el.files && el.files.length) ? el.files[0].name : ''`, nil,
			playwright.LocatorEvaluateOptions{Timeout: s.timeout()})
		if err != nil {
			return err
		}
		out, _ = v.(string)
		return nil
	})
	return out, err
}
