// Package outcome классифицирует результат шага отправки и подтверждает завершение заявки.
package outcome

import (
	"fmt"
	"strings"
)

type Class string

const (
	Success    Class = "success_confirmed"
	Validation Class = "validation_error"
	External   Class = "external_blocked"
	Transient  Class = "transient_network"
	Unknown    Class = "unknown_blocked"
)

const (
	CodeCompletion         = "completion_detected"
	CodeAntiSpam           = "anti_spam_or_risk_blocked"
	CodeTransient          = "network_or_server_transient"
	CodeMissingRequired    = "missing_required_field"
	CodeValidation         = "validation_error"
	CodeNoTransition       = "submit_clicked_without_confirmed_transition"
	CodeActionFailed       = "submit_action_failed"
	SnippetLimit           = 220
	evidenceTextLimit      = 3000
	manualReasonSnippetLen = 160
)

var successPhrases = []string{
	"thank you for applying",
	"thanks for your application",
	"application submitted",
	"application received",
	"successfully submitted",
	"your application has been submitted",
	"application complete",
	"thanks for submitting",
}

var externalPhrases = []string{
	"flagged as possible spam",
	"suspicious activity",
	"anti-spam",
	"rate limit",
	"too many requests",
	"try again later",
	"couldn't submit your application",
}

var transientPhrases = []string{
	"network error",
	"temporarily unavailable",
	"timeout",
	"timed out",
	"connection error",
	"server error",
	"5xx",
}

// Outcome результат одного шага отправки.
type Outcome struct {
	Class   Class
	Code    string
	Snippet string
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s/%s", o.Class, o.Code)
}

// Input данные для классификации после клика отправки.
type Input struct {
	Text            string
	ActionSucceeded bool
	BlockReason     string
	BlockSnippets   []string
}

// EvidenceText текст страницы плюс два фрагмента ошибок, не длиннее 3000 символов.
func EvidenceText(pageText string, snippets []string) string {
	parts := []string{pageText}
	for i, s := range snippets {
		if i == 2 {
			break
		}
		parts = append(parts, s)
	}
	return clip(strings.Join(parts, "\n"), evidenceTextLimit)
}

// LooksLikeCompletion текст подтверждает отправку заявки.
func LooksLikeCompletion(text string) bool {
	return containsAny(strings.ToLower(text), successPhrases)
}

// Classify успех проверяется первым: фраза подтверждения важнее любых слов об ошибке рядом.
func Classify(in Input) Outcome {
	lower := strings.ToLower(in.Text)
	snippet := clip(in.Text, SnippetLimit)

	switch {
	case containsAny(lower, successPhrases):
		return Outcome{Class: Success, Code: CodeCompletion, Snippet: snippet}
	case containsAny(lower, externalPhrases):
		return Outcome{Class: External, Code: CodeAntiSpam, Snippet: snippet}
	case containsAny(lower, transientPhrases):
		return Outcome{Class: Transient, Code: CodeTransient, Snippet: snippet}
	case in.BlockReason != "":
		blockSnippet := in.BlockReason
		if len(in.BlockSnippets) > 0 {
			n := min(2, len(in.BlockSnippets))
			blockSnippet = strings.Join(in.BlockSnippets[:n], " | ")
		}
		code := CodeValidation
		if strings.Contains(in.BlockReason, "required") {
			code = CodeMissingRequired
		}
		return Outcome{Class: Validation, Code: code, Snippet: clip(blockSnippet, SnippetLimit)}
	case in.ActionSucceeded:
		return Outcome{Class: Unknown, Code: CodeNoTransition, Snippet: snippet}
	default:
		return Outcome{Class: Unknown, Code: CodeActionFailed, Snippet: snippet}
	}
}

// ManualReason текст причины остановки для оператора.
func ManualReason(o *Outcome, actionName, actionTarget string) string {
	if o == nil {
		return "submission kept failing up to the retry limit, manual handling required"
	}
	return fmt.Sprintf("submission blocked at retry limit; class=%s; code=%s; action=%s:%s; evidence=%s",
		o.Class, o.Code, actionName, actionTarget, clip(o.Snippet, manualReasonSnippetLen))
}

var completionPhrases = []string{
	"successfully submitted",
	"application was successfully submitted",
	"your application has been submitted",
	"thanks for your application",
	"thank you for applying",
	"process is complete",
	"application complete",
}

// ImpliesCompletion ответ модели без JSON, но с фразой о завершённой отправке.
func ImpliesCompletion(raw string) bool {
	text := strings.ToLower(strings.TrimSpace(raw))
	return text != "" && containsAny(text, completionPhrases)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
