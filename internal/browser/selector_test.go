package browser

import (
	"errors"
	"testing"

	"autojob/internal/page"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSelector(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{`button:contains("Submit")`, `button:has-text("Submit")`, true},
		{`a:contains('Apply now')`, `a:has-text('Apply now')`, true},
		{`button:contains(Next)`, `button:has-text("Next")`, true},
		{`button: Submit application`, `button:has-text("Submit application")`, true},
		{`input:checked`, `input:checked`, false},
		{`#apply-button`, `#apply-button`, false},
		{``, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, changed := NormalizeSelector(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestValidateSelector(t *testing.T) {
	assert.NoError(t, ValidateSelector("button.primary"))
	assert.Error(t, ValidateSelector("   "))
	assert.Error(t, ValidateSelector("https://jobs.example.com/apply"))
}

func TestLooksLikeCSS(t *testing.T) {
	assert.True(t, looksLikeCSS("#first_name"))
	assert.True(t, looksLikeCSS("input[name='email']"))
	assert.True(t, looksLikeCSS(".btn-primary"))
	assert.True(t, looksLikeCSS("button:has-text('Next')"))
	assert.False(t, looksLikeCSS("Submit application"))
	assert.False(t, looksLikeCSS("Yes"))
}

func TestFuzzyTexts(t *testing.T) {
	assert.Equal(t, []string{"Submit"}, fuzzyTexts("Submit application"))
	assert.Equal(t, []string{"Yes", "Are"}, fuzzyTexts("Are you legally authorized Yes"))
	assert.Equal(t, []string{"Send"}, fuzzyTexts("Send send now *"))
	assert.Nil(t, fuzzyTexts("Yes"))
	assert.Nil(t, fuzzyTexts("button:has-text('Next step')"))
}

func TestRoleForType(t *testing.T) {
	assert.Equal(t, "button", roleForType("Submit"))
	assert.Equal(t, "combobox", roleForType("dropdown"))
	assert.Equal(t, "textbox", roleForType("email"))
	assert.Empty(t, roleForType("file"))
}

func TestDescriptionAccessibleName(t *testing.T) {
	d := description{Aria: "First name", Placeholder: "Jane", Name: "first_name"}
	assert.Equal(t, "First name", d.accessibleName())

	d.Label = "  Legal\n first   name "
	assert.Equal(t, "Legal first name", d.accessibleName())

	assert.Empty(t, description{}.accessibleName())
}

func TestDecode(t *testing.T) {
	raw := map[string]any{
		"invalid_count":        1,
		"required_empty_count": 2,
		"snippets":             []any{"Email is required"},
		"submit_candidates":    []any{map[string]any{"text": "Submit", "type": "submit", "disabled": false}},
	}
	var ev page.FormEvidence
	require.NoError(t, decode(raw, &ev))
	assert.Equal(t, 1, ev.InvalidCount)
	assert.Equal(t, 2, ev.RequiredEmptyCount)
	assert.Equal(t, []string{"Email is required"}, ev.Snippets)
	require.Len(t, ev.SubmitCandidates, 1)
	assert.Equal(t, "submit", ev.SubmitCandidates[0].Type)
}

func TestUnlaunchedSurface(t *testing.T) {
	s := New(Config{}, nil)
	assert.Empty(t, s.URL())
	_, err := s.VisibleText(t.Context())
	assert.True(t, errors.Is(err, errNotLaunched))
	assert.ErrorIs(t, s.Click(t.Context(), page.Target{Role: "button", Name: "Submit"}), errNotLaunched)
	assert.NoError(t, s.Close())
}
