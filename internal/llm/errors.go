package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	CodeRateLimitExhausted        = "rate_limit_exhausted"
	CodeModelUnsupportedExhausted = "model_unsupported_exhausted"
	CodeCallFailed                = "llm_call_failed"
	CodeNoResult                  = "llm_no_result"
	CodeParseFailed               = "parse_failed"
)

// CallError итог неудачного вызова после перебора моделей.
type CallError struct {
	Code       string
	Summary    string
	Model      string
	ModelIndex int
	Err        error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Code, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Summary)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsCallError достаёт код ошибки вызова, если это CallError.
func IsCallError(err error) (string, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

type errorKind int

const (
	kindFatal errorKind = iota
	kindRateLimit
	kindUnsupported
)

var unsupportedKeywords = []string{
	"does not support",
	"unsupported",
	"multimodal",
	"vision",
	"image_url",
	"invalid model",
	"model_not_found",
	"not found",
}

func classify(err error) errorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return kindRateLimit
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return kindRateLimit
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit") {
		return kindRateLimit
	}
	for _, kw := range unsupportedKeywords {
		if strings.Contains(msg, kw) {
			return kindUnsupported
		}
	}
	return kindFatal
}

func summarize(err error) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) > 240 {
		msg = msg[:240]
	}
	return msg
}
