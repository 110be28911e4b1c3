// Package page описывает узкий интерфейс браузера, от которого зависит цикл агента.
// Реализация на Playwright живёт в internal/browser, сценарный фейк в pagetest.
package page

import (
	"context"
	"errors"
)

// ErrNotFound элемент не найден ни одной стратегией.
var ErrNotFound = errors.New("элемент не найден")

// Surface операции над текущей вкладкой.
type Surface interface {
	URL() string
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	VisibleText(ctx context.Context) (string, error)
	Elements(ctx context.Context) ([]Element, error)
	ManualSignals(ctx context.Context) (ManualSignals, error)
	FormEvidence(ctx context.Context) (FormEvidence, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	Click(ctx context.Context, t Target) error
	Check(ctx context.Context, t Target) error
	Fill(ctx context.Context, t Target, value string) error
	Type(ctx context.Context, t Target, value string) error
	Select(ctx context.Context, t Target, label string) error
	SetFiles(ctx context.Context, t Target, path string) error
	ScrollIntoView(ctx context.Context, t Target) error
	Scroll(ctx context.Context, dy int) error
	PressKey(ctx context.Context, key string) error

	InputValue(ctx context.Context, t Target) (string, error)
	IsChecked(ctx context.Context, t Target) (bool, error)
	Attribute(ctx context.Context, t Target, name string) (string, error)
	UploadedFile(ctx context.Context, t Target) (string, error)

	// ClickAnswer кликает вариант label в блоке вопроса question. false, если блок не найден.
	ClickAnswer(ctx context.Context, question, label string) (bool, error)
	// AnswerSelected проверяет, что в блоке вопроса выбран именно label.
	AnswerSelected(ctx context.Context, question, label string) (bool, error)
}

// Target способ найти элемент: по роли и имени из снимка либо по тексту.
type Target struct {
	Role        string
	Name        string
	Nth         int
	FileInput   bool
	Selector    string
	ElementType string
}

// Element интерактивный элемент страницы.
type Element struct {
	Ref       string `json:"ref"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Nth       int    `json:"nth"`
	InputType string `json:"input_type,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Required  bool   `json:"required,omitempty"`
	Checked   *bool  `json:"checked,omitempty"`
	ValueHint string `json:"value_hint,omitempty"`
	InForm    bool   `json:"in_form,omitempty"`
}

// Filled true, если у элемента есть значение или он отмечен.
func (e Element) Filled() bool {
	if e.Checked != nil {
		return *e.Checked
	}
	return e.ValueHint != ""
}

// ManualSignals DOM признаки логина и капчи.
type ManualSignals struct {
	HasPassword     bool   `json:"has_password"`
	CaptchaVisible  bool   `json:"captcha_visible"`
	CaptchaSelector string `json:"captcha_selector,omitempty"`
}

// FieldSample поле с ошибкой или пустое обязательное поле.
type FieldSample struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	ValueLen int    `json:"value_len"`
}

// SubmitCandidate кнопка, которая может отправить форму.
type SubmitCandidate struct {
	Text         string `json:"text"`
	Type         string `json:"type"`
	Disabled     bool   `json:"disabled"`
	AriaDisabled string `json:"aria_disabled"`
}

// FileUpload признаки уже загруженного файла рядом с file input.
type FileUpload struct {
	HasReplaceText      bool `json:"has_replace_text"`
	HasUploadedFileName bool `json:"has_uploaded_file_name"`
}

// FormEvidence структурные признаки незакрытых ошибок формы.
type FormEvidence struct {
	InvalidCount         int               `json:"invalid_count"`
	RequiredEmptyCount   int               `json:"required_empty_count"`
	ErrorContainerHits   int               `json:"error_container_hits"`
	RedTextHits          int               `json:"red_text_hits"`
	LocalKeywordHits     int               `json:"local_keyword_hits"`
	GlobalKeywordHits    int               `json:"global_keyword_hits"`
	InvalidSamples       []FieldSample     `json:"invalid_samples,omitempty"`
	RequiredEmptySamples []FieldSample     `json:"required_empty_samples,omitempty"`
	SubmitCandidates     []SubmitCandidate `json:"submit_candidates,omitempty"`
	FileUploads          []FileUpload      `json:"file_uploads,omitempty"`
	Snippets             []string          `json:"snippets,omitempty"`
}
