// Package action описывает атомарные действия агента над страницей.
package action

import (
	"fmt"
	"strings"
)

// Kind закрытый набор действий. Строковые имена существуют только на границе разбора ответа LLM.
type Kind int

const (
	Click Kind = iota + 1
	Fill
	Type
	Select
	Upload
	Scroll
	Refresh
	Wait
	Done
	Stuck
)

var kindNames = map[Kind]string{
	Click:   "click",
	Fill:    "fill",
	Type:    "type",
	Select:  "select",
	Upload:  "upload",
	Scroll:  "scroll",
	Refresh: "refresh",
	Wait:    "wait",
	Done:    "done",
	Stuck:   "stuck",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseKind разбирает имя действия из ответа модели.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("неизвестное действие: %q", s)
}

// Action одно действие. Ref ссылается на элемент снимка (e12), Selector текстовый запасной вариант.
type Action struct {
	Kind           Kind
	Ref            string
	Selector       string
	Value          string
	TargetQuestion string
	ElementType    string
	Reason         string
}

// Raw форма действия в JSON ответе планировщика.
type Raw struct {
	Action         string `json:"action"`
	Ref            string `json:"ref,omitempty"`
	Selector       string `json:"selector,omitempty"`
	Value          any    `json:"value,omitempty"`
	TargetQuestion any    `json:"target_question,omitempty"`
	ElementType    string `json:"element_type,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Parse переводит сырой JSON в типизированное действие.
func Parse(r Raw) (Action, error) {
	kind, err := ParseKind(r.Action)
	if err != nil {
		return Action{}, err
	}
	a := Action{
		Kind:           kind,
		Ref:            strings.TrimSpace(r.Ref),
		Selector:       strings.TrimSpace(r.Selector),
		Value:          scalar(r.Value),
		TargetQuestion: strings.TrimSpace(scalar(r.TargetQuestion)),
		ElementType:    strings.ToLower(strings.TrimSpace(r.ElementType)),
		Reason:         r.Reason,
	}
	switch kind {
	case Click, Fill, Type, Select:
		if a.Ref == "" && a.Selector == "" {
			return Action{}, fmt.Errorf("действие %s без ref и selector", kind)
		}
	}
	return a, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

// Key ключ действия для счётчика неудач: отпечаток страницы плюс параметры.
func (a Action) Key(fingerprint string) string {
	return strings.Join([]string{fingerprint, a.Kind.String(), a.Ref, a.Selector, a.Value, a.TargetQuestion}, "|")
}

// Target текст элемента для логов и причин остановки.
func (a Action) Target() string {
	if a.Selector != "" {
		return a.Selector
	}
	return a.Ref
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Kind.String())
	if t := a.Target(); t != "" {
		fmt.Fprintf(&b, " %s", t)
	}
	if a.Value != "" {
		fmt.Fprintf(&b, " = %q", truncate(a.Value, 60))
	}
	if a.TargetQuestion != "" {
		fmt.Fprintf(&b, " [%s]", truncate(a.TargetQuestion, 60))
	}
	return b.String()
}

// Mutates true для действий, меняющих значение поля.
func (a Action) Mutates() bool {
	switch a.Kind {
	case Fill, Type, Select, Upload:
		return true
	}
	return false
}

// Terminal true для done и stuck.
func (a Action) Terminal() bool {
	return a.Kind == Done || a.Kind == Stuck
}

// IsToggle переключатели нельзя повторять из кэша плана вслепую.
func IsToggle(elementType string) bool {
	switch strings.ToLower(elementType) {
	case "checkbox", "radio", "switch":
		return true
	}
	return false
}

// YesNo нормализует ответ да/нет, иначе пустая строка.
func YesNo(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return "yes"
	case "no", "n", "false":
		return "no"
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
