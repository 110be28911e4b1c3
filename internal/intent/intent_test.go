package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"autojob/internal/llm"
	"autojob/internal/page"
	"autojob/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	replies []string
	err     error
	calls   []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	if len(s.replies) == 0 {
		return llm.Response{Text: "{}"}, nil
	}
	text := s.replies[0]
	s.replies = s.replies[1:]
	return llm.Response{Text: text}, nil
}

func TestFallback(t *testing.T) {
	tests := []struct {
		label string
		want  []string
	}{
		{"Apply now", []string{"apply_entry", "progression_action"}},
		{"Continue", []string{"progression_action"}},
		{"Sign in", []string{"login_action"}},
		{"Attach Resume/CV", []string{"upload_request"}},
		{"Save job", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Fallback(tt.label).Sorted())
		})
	}
}

func TestLabels_TrustsModelAnswer(t *testing.T) {
	fake := &scriptedLLM{replies: []string{
		"```json\n{\"items\":[{\"id\":\"l1\",\"intents\":[\"progression_action\",\"bogus\"]}]}\n```",
	}}
	c := New(fake, "mini", nil, nil)

	got := c.Labels(context.Background(), []string{"Weiter", "Apply", "Weiter", " "}, "ctx")

	require.Len(t, got, 2)
	assert.Equal(t, []string{"progression_action"}, got["Weiter"].Sorted())
	assert.Empty(t, got["Apply"], "модель решает консервативно, словарь не подмешивается")

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "mini", fake.calls[0].Model)
	assert.Equal(t, 500, fake.calls[0].MaxTokens)
	assert.Contains(t, fake.calls[0].User, `"id":"l1","text":"Weiter"`)
}

func TestLabels_BeyondModelLimitUsesFallback(t *testing.T) {
	labels := make([]string, 0, 41)
	for i := 0; i < 40; i++ {
		labels = append(labels, fmt.Sprintf("Option %d", i))
	}
	labels = append(labels, "Continue")
	c := New(&scriptedLLM{replies: []string{`{"items":[]}`}}, "mini", nil, nil)

	got := c.Labels(context.Background(), labels, "")
	assert.True(t, got["Continue"].Has(ProgressionAction))
	assert.Empty(t, got["Option 0"])
}

func TestLabels_CachedByLabelSetAndContext(t *testing.T) {
	fake := &scriptedLLM{}
	c := New(fake, "mini", nil, nil)

	c.Labels(context.Background(), []string{"Next", "Back"}, "page")
	c.Labels(context.Background(), []string{"Back", "Next"}, "page")
	assert.Len(t, fake.calls, 1)

	c.Labels(context.Background(), []string{"Back", "Next"}, "other page")
	assert.Len(t, fake.calls, 2)

	c.Reset()
	c.Labels(context.Background(), []string{"Back", "Next"}, "page")
	assert.Len(t, fake.calls, 3)
}

func TestLabels_ModelFailureNeverBlocks(t *testing.T) {
	c := New(&scriptedLLM{err: errors.New("boom")}, "mini", nil, nil)
	got := c.Labels(context.Background(), []string{"Submit application"}, "")
	assert.True(t, got["Submit application"].Has(ProgressionAction))
	assert.True(t, got["Submit application"].Has(ApplyEntry))
}

func TestCacheKey_Stable(t *testing.T) {
	a := CacheKey([]string{"b", "a"}, strings.Repeat("x", 700))
	b := CacheKey([]string{"a", "b"}, strings.Repeat("x", 600)+"tail that is cut")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "labels::"))
}

func TestText_RestrictsToGlobalIntents(t *testing.T) {
	fake := &scriptedLLM{replies: []string{`{"intents":["apply_entry","login_action"]}`}}
	c := New(fake, "mini", nil, nil)

	got := c.Text(context.Background(), "Please sign in to continue")
	assert.Equal(t, []string{"login_action"}, got.Sorted())

	c.Text(context.Background(), "Please sign in to continue")
	assert.Len(t, fake.calls, 1)
}

func TestText_FallbackWithoutModel(t *testing.T) {
	c := New(nil, "", nil, nil)
	got := c.Text(context.Background(), "Upload your resume or log in")
	assert.Equal(t, []string{"login_action", "upload_request"}, got.Sorted())
	assert.Empty(t, c.Text(context.Background(), "   "))
}

func TestSnapshot_MapsRefs(t *testing.T) {
	snap := snapshot.Build("https://jobs.example.com/apply", []page.Element{
		{Role: "button", Name: "Submit"},
		{Role: "link", Name: "Sign in"},
		{Role: "textbox", Name: "Email"},
		{Role: "button", Name: ""},
	})
	c := New(nil, "", nil, nil)

	got := c.Snapshot(context.Background(), snap, "text")

	byName := map[string]Set{}
	for _, item := range snap.Items {
		if s, ok := got[item.Ref]; ok {
			byName[item.Name] = s
		}
	}
	assert.Len(t, got, 2)
	assert.True(t, byName["Submit"].Has(ProgressionAction))
	assert.True(t, byName["Sign in"].Has(LoginAction))
}
