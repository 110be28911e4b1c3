// Package sanitizer маскирует персональные данные перед записью в логи и БД.
package sanitizer

import (
	"regexp"
	"strings"
)

type DataSanitizer struct {
	rules []SanitizerRule
}

type SanitizerRule interface {
	Sanitize(text string) string
}

// New порядок важен: ключи и пароли снимаются раньше телефонов,
// иначе длинные цифровые токены распознаются как номера.
func New() *DataSanitizer {
	return &DataSanitizer{
		rules: []SanitizerRule{
			passwordRule,
			tokenRule,
			secretKeyRule,
			cardRule,
			ssnRule,
			emailRule,
			phoneRule,
			addressRule,
		},
	}
}

func (s *DataSanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}
	for _, rule := range s.rules {
		text = rule.Sanitize(text)
	}
	return text
}

var sensitiveSelectorWords = []string{"password", "passwd", "token", "api-key", "api_key", "ssn", "social security", "card number", "cvv"}

// SanitizeSelector скрывает селекторы полей с секретами целиком.
func (s *DataSanitizer) SanitizeSelector(selector string) string {
	lower := strings.ToLower(selector)
	for _, w := range sensitiveSelectorWords {
		if strings.Contains(lower, w) {
			return "[FILTERED_SELECTOR]"
		}
	}
	return s.Sanitize(selector)
}

var opaqueValue = regexp.MustCompile(`^[a-zA-Z0-9_-]{24,}$`)

// SanitizeValue значение, введённое в поле формы. Для полей с секретами
// значение скрывается полностью.
func (s *DataSanitizer) SanitizeValue(field, value string) string {
	if value == "" {
		return value
	}
	if s.SanitizeSelector(field) == "[FILTERED_SELECTOR]" {
		return "[FILTERED]"
	}
	if opaqueValue.MatchString(value) {
		return "[FILTERED]"
	}
	return s.Sanitize(value)
}
