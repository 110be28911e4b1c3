package sanitizer

import "regexp"

// patternRule заменяет все совпадения шаблонов на replacement.
type patternRule struct {
	patterns    []*regexp.Regexp
	replacement string
}

func (r patternRule) Sanitize(text string) string {
	for _, p := range r.patterns {
		text = p.ReplaceAllString(text, r.replacement)
	}
	return text
}

var passwordRule = patternRule{
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(password|passwd|pwd|passcode)(\s*[:=]\s*)["']?[^"'\s]{3,}["']?`),
		regexp.MustCompile(`(?i)(<input[^>]*type=["']password["'][^>]*value=["'])[^"']+`),
	},
	replacement: `${1}${2}[FILTERED]`,
}

var tokenRule = patternRule{
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(token|access[_-]?token|refresh[_-]?token|session[_-]?id|csrf[_-]?token)(\s*[:=]\s*)["']?[a-zA-Z0-9._-]{10,}["']?`),
		regexp.MustCompile(`(?i)\b(api[_-]?key|api[_-]?secret|secret[_-]?key|access[_-]?key)(\s*[:=]\s*)["']?[a-zA-Z0-9_-]{16,}["']?`),
		regexp.MustCompile(`(?i)\b(bearer)(\s+)[a-zA-Z0-9._-]{16,}`),
		regexp.MustCompile(`(?i)\b(set-cookie|cookie)(\s*[:=]\s*)[^\n]{8,}`),
	},
	replacement: `${1}${2}[FILTERED]`,
}

var secretKeyRule = patternRule{
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`\bsk-(?:proj-)?[a-zA-Z0-9_-]{20,}`),
		regexp.MustCompile(`\b(?:pk|rk)_(?:live|test)_[a-zA-Z0-9]{16,}`),
		regexp.MustCompile(`\bgh[pousr]_[a-zA-Z0-9]{30,}`),
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	},
	replacement: `[FILTERED_KEY]`,
}

var cardRule = patternRule{
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}(?:[- ]?\d{3})?\b`),
		regexp.MustCompile(`(?i)\b(?:cvv2?|cvc2?)\s*[:=]\s*\d{3,4}\b`),
	},
	replacement: `[FILTERED_CARD]`,
}

var ssnRule = patternRule{
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	replacement: `[FILTERED_SSN]`,
}

var emailRule = patternRule{
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
	},
	replacement: `[FILTERED_EMAIL]`,
}

var phoneRule = patternRule{
	patterns: []*regexp.Regexp{
		// +1 (206) 555-0100, 206.555.0100, 206-555-0100
		regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`),
		// международный формат
		regexp.MustCompile(`\+\d{1,3}[-.\s]?\(?\d{1,4}\)?(?:[-.\s]?\d{2,4}){2,4}\b`),
	},
	replacement: `[FILTERED_PHONE]`,
}

var addressRule = patternRule{
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z0-9.]+\s){1,4}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way)\b\.?(?:,?\s*(?:apt|suite|unit)\.?\s*\w+)?`),
	},
	replacement: `[FILTERED_ADDRESS]`,
}
