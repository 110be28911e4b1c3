package outcome

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		class Class
		code  string
	}{
		{
			name:  "success wins over error words",
			in:    Input{Text: "Error: network error earlier. Application submitted, thank you!", BlockReason: "1 required field empty"},
			class: Success,
			code:  CodeCompletion,
		},
		{
			name:  "anti-spam",
			in:    Input{Text: "Your submission was flagged as possible spam", ActionSucceeded: true},
			class: External,
			code:  CodeAntiSpam,
		},
		{
			name:  "external before transient",
			in:    Input{Text: "Too many requests. Connection error."},
			class: External,
			code:  CodeAntiSpam,
		},
		{
			name:  "transient",
			in:    Input{Text: "The request timed out"},
			class: Transient,
			code:  CodeTransient,
		},
		{
			name:  "gate reason",
			in:    Input{Text: "Apply", BlockReason: "1 required field empty", BlockSnippets: []string{"Email is required", "Phone is required", "third"}},
			class: Validation,
			code:  CodeMissingRequired,
		},
		{
			name:  "gate error message",
			in:    Input{Text: "Apply", BlockReason: "error message visible"},
			class: Validation,
			code:  CodeValidation,
		},
		{
			name:  "clicked without transition",
			in:    Input{Text: "Apply", ActionSucceeded: true},
			class: Unknown,
			code:  CodeNoTransition,
		},
		{
			name:  "failed click",
			in:    Input{Text: "Apply"},
			class: Unknown,
			code:  CodeActionFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			assert.Equal(t, tt.class, got.Class)
			assert.Equal(t, tt.code, got.Code)
			assert.LessOrEqual(t, len([]rune(got.Snippet)), SnippetLimit)
		})
	}
}

func TestClassify_ValidationSnippetUsesTwoGateSnippets(t *testing.T) {
	got := Classify(Input{BlockReason: "2 required fields empty", BlockSnippets: []string{"a", "b", "c"}})
	assert.Equal(t, "a | b", got.Snippet)

	got = Classify(Input{BlockReason: "error message visible"})
	assert.Equal(t, "error message visible", got.Snippet)
}

func TestEvidenceText(t *testing.T) {
	text := EvidenceText("page", []string{"one", "two", "three"})
	assert.Equal(t, "page\none\ntwo", text)

	long := EvidenceText(strings.Repeat("x", 5000), nil)
	assert.Len(t, long, 3000)
}

func TestManualReason(t *testing.T) {
	o := &Outcome{Class: External, Code: CodeAntiSpam, Snippet: strings.Repeat("s", 300)}
	reason := ManualReason(o, "click", "Submit")
	assert.Contains(t, reason, "class=external_blocked")
	assert.Contains(t, reason, "code=anti_spam_or_risk_blocked")
	assert.Contains(t, reason, "action=click:Submit")
	assert.Contains(t, reason, "evidence="+strings.Repeat("s", 160))
	assert.NotContains(t, reason, strings.Repeat("s", 161))

	assert.Contains(t, ManualReason(nil, "click", "Submit"), "retry limit")
}

func TestImpliesCompletion(t *testing.T) {
	assert.True(t, ImpliesCompletion("It looks like the process is complete."))
	assert.False(t, ImpliesCompletion("I will click next"))
	assert.False(t, ImpliesCompletion(""))
}

func TestAssessCompletion(t *testing.T) {
	tests := []struct {
		name      string
		in        CompletionInput
		confirmed bool
		score     float64
	}{
		{"text and no submit", CompletionInput{Text: "Thank you for applying!"}, true, 0.94},
		{"text url and no submit", CompletionInput{Text: "Application received", URL: "https://x.io/jobs/1/thank-you"}, true, 1},
		{"submit still visible", CompletionInput{Text: "Thank you for applying!", SubmitVisible: true}, false, 0.48},
		{"error visible", CompletionInput{Text: "Thank you for applying!", HasError: true}, false, 0.36},
		{"external block", CompletionInput{Text: "Thanks for your application. Too many requests"}, false, 0.34},
		{"no success text", CompletionInput{Text: "Review your answers"}, false, 0.26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessCompletion(tt.in, 0)
			assert.Equal(t, tt.confirmed, got.Confirmed)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
		})
	}
}

func TestAssessCompletion_Threshold(t *testing.T) {
	in := CompletionInput{Text: "Thank you for applying!"}
	assert.False(t, AssessCompletion(in, 0.95).Confirmed)
	assert.True(t, AssessCompletion(in, 0.9).Confirmed)
}

func TestHasErrorText(t *testing.T) {
	assert.True(t, HasErrorText("Email: This field is required"))
	assert.True(t, HasErrorText("Phone number is INVALID"))
	assert.False(t, HasErrorText("Thank you for applying. We will review your application."))
}
