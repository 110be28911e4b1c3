// Package pagetest сценарный фейк page.Surface для тестов цикла агента.
package pagetest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"autojob/internal/page"
)

// Field элемент фейковой страницы.
type Field struct {
	Role      string
	Name      string
	InputType string
	Required  bool
	InForm    bool
	Value     string
	Checked   *bool
	File      string
	Attrs     map[string]string
	Hidden    bool
}

// Page изменяемое состояние страницы и хуки, через которые тест задаёт её реакцию.
type Page struct {
	mu sync.Mutex

	CurrentURL string
	Text       string
	Fields     []*Field
	Signals    page.ManualSignals
	Answers    map[string]string

	// Evidence переопределяет вычисление признаков формы.
	Evidence func(p *Page) page.FormEvidence
	// OnClick вызывается после клика по найденному элементу.
	OnClick func(p *Page, f *Field) error
	// OnScroll вызывается после прокрутки страницы.
	OnScroll func(p *Page, dy int)
	// FailOn ошибки по имени операции ("click", "fill", "reload", "navigate").
	FailOn map[string]error

	Calls   []string
	Reloads int
}

func New(url string, fields ...*Field) *Page {
	return &Page{CurrentURL: url, Fields: fields, Answers: map[string]string{}}
}

// Bool указатель на значение, для Field.Checked.
func Bool(v bool) *bool { return &v }

func (p *Page) record(format string, args ...any) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

// CallLog копия журнала вызовов.
func (p *Page) CallLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Calls...)
}

// Find поле по роли и имени без учёта регистра.
func (p *Page) Find(role, name string) *Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.Fields {
		if f.Role == role && strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

func (p *Page) fail(op string) error {
	if p.FailOn == nil {
		return nil
	}
	return p.FailOn[op]
}

func (p *Page) locate(t page.Target) (*Field, error) {
	if t.FileInput {
		n := 0
		for _, f := range p.Fields {
			if f.Role != "file_input" {
				continue
			}
			if n == t.Nth {
				return f, nil
			}
			n++
		}
		return nil, page.ErrNotFound
	}
	if t.Role != "" {
		n := 0
		for _, f := range p.Fields {
			if f.Hidden || f.Role != t.Role || !strings.EqualFold(f.Name, t.Name) {
				continue
			}
			if n == t.Nth {
				return f, nil
			}
			n++
		}
	}
	if t.Selector != "" {
		sel := strings.ToLower(t.Selector)
		for _, f := range p.Fields {
			if !f.Hidden && strings.EqualFold(f.Name, t.Selector) {
				return f, nil
			}
		}
		for _, f := range p.Fields {
			if !f.Hidden && strings.Contains(strings.ToLower(f.Name), sel) {
				return f, nil
			}
		}
	}
	return nil, page.ErrNotFound
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	if err := p.fail("navigate"); err != nil {
		return err
	}
	p.CurrentURL = url
	return nil
}

func (p *Page) Reload(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("reload")
	p.Reloads++
	return p.fail("reload")
}

func (p *Page) VisibleText(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Text, nil
}

func (p *Page) Elements(_ context.Context) ([]page.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := map[string]int{}
	var out []page.Element
	for _, f := range p.Fields {
		if f.Hidden {
			continue
		}
		key := f.Role + "\x00" + strings.ToLower(f.Name)
		nth := seen[key]
		seen[key]++
		value := f.Value
		if f.Role == "file_input" {
			value = filepath.Base(f.File)
			if f.File == "" {
				value = ""
			}
		}
		out = append(out, page.Element{
			Role:      f.Role,
			Name:      f.Name,
			Nth:       nth,
			InputType: f.InputType,
			Required:  f.Required,
			Checked:   f.Checked,
			ValueHint: value,
			InForm:    f.InForm,
		})
	}
	return out, nil
}

func (p *Page) ManualSignals(_ context.Context) (page.ManualSignals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Signals, nil
}

// FormEvidence по умолчанию считает пустые обязательные поля и кнопки отправки.
func (p *Page) FormEvidence(_ context.Context) (page.FormEvidence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Evidence != nil {
		return p.Evidence(p), nil
	}
	var ev page.FormEvidence
	for _, f := range p.Fields {
		if f.Hidden {
			continue
		}
		switch f.Role {
		case "button":
			lower := strings.ToLower(f.Name)
			if strings.Contains(lower, "submit") || strings.Contains(lower, "apply") || strings.Contains(lower, "next") {
				ev.SubmitCandidates = append(ev.SubmitCandidates, page.SubmitCandidate{Text: f.Name, Type: "submit"})
			}
		case "textbox", "combobox", "file_input":
			empty := f.Value == ""
			if f.Role == "file_input" {
				empty = f.File == ""
			}
			if f.Required && empty {
				ev.RequiredEmptyCount++
				ev.RequiredEmptySamples = append(ev.RequiredEmptySamples, page.FieldSample{Type: f.InputType, Name: f.Name, Required: true})
			}
		}
	}
	return ev, nil
}

func (p *Page) Screenshot(_ context.Context, _ bool) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (p *Page) Click(_ context.Context, t page.Target) error {
	p.mu.Lock()
	p.record("click %s", describe(t))
	if err := p.fail("click"); err != nil {
		p.mu.Unlock()
		return err
	}
	f, err := p.locate(t)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if f.Checked != nil && (f.Role == "checkbox" || f.Role == "radio") {
		v := !*f.Checked
		if f.Role == "radio" {
			v = true
		}
		f.Checked = &v
	}
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		return hook(p, f)
	}
	return nil
}

func (p *Page) Check(_ context.Context, t page.Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("check %s", describe(t))
	f, err := p.locate(t)
	if err != nil {
		return err
	}
	f.Checked = Bool(true)
	return nil
}

func (p *Page) Fill(_ context.Context, t page.Target, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("fill %s = %s", describe(t), value)
	if err := p.fail("fill"); err != nil {
		return err
	}
	f, err := p.locate(t)
	if err != nil {
		return err
	}
	f.Value = value
	return nil
}

func (p *Page) Type(_ context.Context, t page.Target, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("type %s = %s", describe(t), value)
	f, err := p.locate(t)
	if err != nil {
		return err
	}
	f.Value += value
	return nil
}

func (p *Page) Select(_ context.Context, t page.Target, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("select %s = %s", describe(t), label)
	f, err := p.locate(t)
	if err != nil {
		return err
	}
	f.Value = label
	return nil
}

func (p *Page) SetFiles(_ context.Context, t page.Target, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("upload %s = %s", describe(t), path)
	f, err := p.locate(t)
	if err != nil {
		return err
	}
	f.File = path
	return nil
}

func (p *Page) ScrollIntoView(_ context.Context, t page.Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scroll-into-view %s", describe(t))
	_, err := p.locate(t)
	return err
}

func (p *Page) Scroll(_ context.Context, dy int) error {
	p.mu.Lock()
	p.record("scroll %d", dy)
	hook := p.OnScroll
	p.mu.Unlock()

	if hook != nil {
		hook(p, dy)
	}
	return nil
}

func (p *Page) PressKey(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("press %s", key)
	return nil
}

func (p *Page) InputValue(_ context.Context, t page.Target) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.locate(t)
	if err != nil {
		return "", err
	}
	return f.Value, nil
}

func (p *Page) IsChecked(_ context.Context, t page.Target) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.locate(t)
	if err != nil {
		return false, err
	}
	return f.Checked != nil && *f.Checked, nil
}

func (p *Page) Attribute(_ context.Context, t page.Target, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.locate(t)
	if err != nil {
		return "", err
	}
	return f.Attrs[name], nil
}

func (p *Page) UploadedFile(_ context.Context, t page.Target) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.locate(t)
	if err != nil {
		return "", err
	}
	if f.File == "" {
		return "", nil
	}
	return filepath.Base(f.File), nil
}

func (p *Page) ClickAnswer(_ context.Context, question, label string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Answers[question]; !ok {
		return false, nil
	}
	p.record("answer %s = %s", question, label)
	p.Answers[question] = label
	return true, nil
}

func (p *Page) AnswerSelected(_ context.Context, question, label string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	got, ok := p.Answers[question]
	return ok && strings.EqualFold(got, label), nil
}

func describe(t page.Target) string {
	switch {
	case t.FileInput:
		return fmt.Sprintf("file_input#%d", t.Nth)
	case t.Role != "":
		return fmt.Sprintf("%s:%s#%d", t.Role, t.Name, t.Nth)
	default:
		return "text:" + t.Selector
	}
}

var _ page.Surface = (*Page)(nil)
