package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"autojob/internal/page"
	"autojob/internal/snapshot"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const visibleCheckMs = 100

type description struct {
	Label       string `json:"label"`
	Aria        string `json:"aria"`
	Placeholder string `json:"placeholder"`
	Text        string `json:"text"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Tag         string `json:"tag"`
	Required    bool   `json:"required"`
	InForm      bool   `json:"inForm"`
	Checked     *bool  `json:"checked"`
	Value       string `json:"value"`
}

// accessibleName подпись > aria-label > текст > placeholder > name.
func (d description) accessibleName() string {
	for _, v := range []string{d.Label, d.Aria, d.Text, d.Placeholder, d.Name} {
		if v = strings.TrimSpace(v); v != "" {
			return strings.Join(strings.Fields(v), " ")
		}
	}
	return ""
}

// decode переводит результат Evaluate в структуру через JSON.
func decode(raw any, out any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (s *Surface) describe(loc playwright.Locator) (description, error) {
	var d description
	raw, err := loc.Evaluate(describeScript, nil, playwright.LocatorEvaluateOptions{Timeout: s.timeout()})
	if err != nil {
		return d, err
	}
	return d, decode(raw, &d)
}

// Elements собирает видимые интерактивные элементы по ролям, затем file input, включая скрытые.
// Nth считается по паре (роль, имя), для file input это индекс среди всех input[type=file].
func (s *Surface) Elements(ctx context.Context) ([]page.Element, error) {
	p := s.getPage()
	if p == nil {
		return nil, errNotLaunched
	}

	var out []page.Element
	counters := make(map[string]int)
	for _, role := range snapshot.RoleOrder {
		if role == "file_input" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loc := p.GetByRole(playwright.AriaRole(role))
		count, err := loc.Count()
		if err != nil || count == 0 {
			continue
		}
		for i := 0; i < min(count, snapshot.MaxPerRole) && len(out) < snapshot.MaxTotal; i++ {
			el := loc.Nth(i)
			if !s.visible(el) {
				continue
			}
			d, err := s.describe(el)
			if err != nil {
				continue
			}
			name := d.accessibleName()
			if name == "" {
				continue
			}
			key := role + "\x00" + name
			out = append(out, element(role, name, counters[key], d))
			counters[key]++
		}
	}

	files := p.Locator("input[type='file']")
	count, err := files.Count()
	if err != nil {
		count = 0
	}
	for i := 0; i < min(count, snapshot.MaxPerRole) && len(out) < snapshot.MaxTotal; i++ {
		d, err := s.describe(files.Nth(i))
		if err != nil {
			s.log.Debug("file input без описания", zap.Int("index", i), zap.Error(err))
			continue
		}
		name := firstNonEmpty(d.Label, d.Aria, d.Name, d.Placeholder)
		if name == "" {
			name = fmt.Sprintf("file upload input %d", i+1)
		}
		el := element("file_input", name, i, d)
		el.InputType = "file"
		if el.Tag == "" {
			el.Tag = "input"
		}
		out = append(out, el)
	}
	return out, nil
}

func (s *Surface) visible(loc playwright.Locator) bool {
	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(visibleCheckMs),
	})
	return err == nil
}

func element(role, name string, nth int, d description) page.Element {
	return page.Element{
		Role:      role,
		Name:      name,
		Nth:       nth,
		InputType: d.Type,
		Tag:       d.Tag,
		Required:  d.Required,
		Checked:   d.Checked,
		ValueHint: d.Value,
		InForm:    d.InForm,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
