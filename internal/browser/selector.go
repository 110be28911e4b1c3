package browser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"autojob/internal/page"

	"github.com/playwright-community/playwright-go"
)

var (
	colonSpaceRe     = regexp.MustCompile(`^([^:]+):\s+(.+)$`)
	containsDoubleRe = regexp.MustCompile(`:contains\("([^"]*)"\)`)
	containsSingleRe = regexp.MustCompile(`:contains\('([^']*)'\)`)
	containsBareRe   = regexp.MustCompile(`:contains\(([^)"']+)\)`)
	cssMarkersRe     = regexp.MustCompile(`[#\[\]>=]|^\.[A-Za-z_-]|:has-text\(|:nth-|^(input|button|select|textarea|a|div|span|label)([.#\[:]|$)`)
)

var pseudoClasses = []string{":hover", ":focus", ":active", ":visited", ":link", ":checked",
	":disabled", ":enabled", ":first-child", ":last-child", ":nth-child", ":nth-of-type",
	":has-text", ":has", ":not", ":contains"}

// NormalizeSelector чинит типичные ошибки модели в селекторах:
// jQuery :contains() становится :has-text(), а "button: Текст" становится button:has-text("Текст").
func NormalizeSelector(selector string) (string, bool) {
	if selector == "" {
		return selector, false
	}
	out := selector

	if m := colonSpaceRe.FindStringSubmatch(out); m != nil {
		tag := strings.TrimSpace(m[1])
		text := strings.TrimSpace(m[2])
		pseudo := false
		for _, pc := range pseudoClasses {
			if strings.HasSuffix(tag, pc) || strings.Contains(out, pc+"(") {
				pseudo = true
				break
			}
		}
		if !pseudo && tag != "" && text != "" {
			out = tag + `:has-text("` + strings.ReplaceAll(text, `"`, `\"`) + `")`
		}
	}

	out = containsDoubleRe.ReplaceAllString(out, `:has-text("$1")`)
	out = containsSingleRe.ReplaceAllString(out, `:has-text('$1')`)
	out = containsBareRe.ReplaceAllStringFunc(out, func(match string) string {
		inner := containsBareRe.FindStringSubmatch(match)[1]
		return `:has-text("` + strings.TrimSpace(inner) + `")`
	})

	return out, out != selector
}

// ValidateSelector отсекает пустые селекторы и адреса вместо селекторов.
func ValidateSelector(selector string) error {
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		return fmt.Errorf("селектор не может быть пустым")
	}
	if strings.Contains(trimmed, "://") {
		return fmt.Errorf("селектор не может быть URL: %s", selector)
	}
	return nil
}

// looksLikeCSS true, если строка похожа на CSS/Playwright селектор, а не на видимый текст.
func looksLikeCSS(selector string) bool {
	return cssMarkersRe.MatchString(strings.TrimSpace(selector))
}

// locate строит локатор по цели из снимка.
func (s *Surface) locate(t page.Target) (playwright.Locator, error) {
	p := s.getPage()
	if p == nil {
		return nil, errNotLaunched
	}

	if t.FileInput {
		return p.Locator("input[type='file']").Nth(t.Nth), nil
	}
	if t.Role != "" && t.Name != "" {
		return p.GetByRole(playwright.AriaRole(t.Role), playwright.PageGetByRoleOptions{
			Name: t.Name,
		}).Nth(t.Nth), nil
	}
	if t.Selector == "" {
		return nil, page.ErrNotFound
	}
	if err := ValidateSelector(t.Selector); err != nil {
		return nil, err
	}
	return s.locateText(p, t)
}

// locateText ищет элемент по тексту: CSS, роль из ElementType, подпись поля, видимый текст.
func (s *Surface) locateText(p playwright.Page, t page.Target) (playwright.Locator, error) {
	var candidates []playwright.Locator
	if looksLikeCSS(t.Selector) {
		sel, _ := NormalizeSelector(t.Selector)
		candidates = append(candidates, p.Locator(sel))
	}
	if role := roleForType(t.ElementType); role != "" {
		candidates = append(candidates, p.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{
			Name: t.Selector,
		}))
	}
	candidates = append(candidates,
		p.GetByLabel(t.Selector),
		p.GetByPlaceholder(t.Selector),
		p.GetByText(t.Selector, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}),
		p.GetByText(t.Selector),
	)
	for _, alt := range fuzzyTexts(t.Selector) {
		if role := roleForType(t.ElementType); role != "" {
			candidates = append(candidates, p.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{
				Name: alt,
			}))
		}
		candidates = append(candidates, p.GetByText(alt), p.GetByLabel(alt))
	}

	for _, loc := range candidates {
		first := loc.First()
		n, err := loc.Count()
		if err != nil || n == 0 {
			continue
		}
		if visible, err := first.IsVisible(); err == nil && visible {
			return first, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", t.Selector, page.ErrNotFound)
}

// fuzzyTexts запасные тексты для длинного селектора: ответ Yes/No в конце вопроса и первое слово.
func fuzzyTexts(selector string) []string {
	if looksLikeCSS(selector) {
		return nil
	}
	var words []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ReplaceAll(selector, "*", "")) {
		if key := strings.ToLower(w); !seen[key] {
			seen[key] = true
			words = append(words, w)
		}
	}
	if len(words) < 2 {
		return nil
	}
	var out []string
	last := words[len(words)-1]
	if utf8.RuneCountInString(selector) > 20 && (strings.EqualFold(last, "yes") || strings.EqualFold(last, "no")) {
		out = append(out, last)
	}
	return append(out, words[0])
}

func roleForType(elementType string) string {
	switch strings.ToLower(strings.TrimSpace(elementType)) {
	case "button", "submit":
		return "button"
	case "link", "a":
		return "link"
	case "checkbox":
		return "checkbox"
	case "radio":
		return "radio"
	case "select", "combobox", "dropdown":
		return "combobox"
	case "input", "text", "textbox", "textarea", "email", "tel":
		return "textbox"
	case "option":
		return "option"
	}
	return ""
}
