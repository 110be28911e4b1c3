package gate

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"autojob/internal/intent"
	"autojob/internal/llm"
	"autojob/internal/page"
	"autojob/internal/page/pagetest"
	"autojob/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var enabledSubmit = []page.SubmitCandidate{{Text: "Submit application", Type: "submit"}}

func TestEvaluate(t *testing.T) {
	fileSample := []page.FieldSample{{Type: "file", Name: "Resume"}}
	ready := []page.FileUpload{{HasUploadedFileName: true}}

	tests := []struct {
		name      string
		ev        page.FormEvidence
		block     bool
		escalate  bool
		reason    string
		allowedBy string
	}{
		{
			name:      "global keyword alone never blocks",
			ev:        page.FormEvidence{GlobalKeywordHits: 7},
			escalate:  true,
			allowedBy: "global_keyword_unconfirmed",
		},
		{
			name:      "clean page",
			ev:        page.FormEvidence{},
			allowedBy: "no_blocking_evidence",
		},
		{
			name:      "file invalid with upload ready",
			ev:        page.FormEvidence{InvalidCount: 1, InvalidSamples: fileSample, FileUploads: ready, SubmitCandidates: enabledSubmit},
			allowedBy: "file_only_invalid_with_upload_ready",
		},
		{
			name:   "file invalid without upload ready",
			ev:     page.FormEvidence{InvalidCount: 1, InvalidSamples: fileSample, SubmitCandidates: enabledSubmit},
			block:  true,
			reason: "1 invalid field",
		},
		{
			name:      "single benign invalid",
			ev:        page.FormEvidence{InvalidCount: 1, InvalidSamples: []page.FieldSample{{Type: "email"}}, SubmitCandidates: enabledSubmit},
			allowedBy: "single_invalid_without_other_errors",
		},
		{
			name:   "single invalid with error container",
			ev:     page.FormEvidence{InvalidCount: 1, ErrorContainerHits: 1, SubmitCandidates: enabledSubmit},
			block:  true,
			reason: "1 invalid field",
		},
		{
			name:   "several invalid",
			ev:     page.FormEvidence{InvalidCount: 3, SubmitCandidates: enabledSubmit},
			block:  true,
			reason: "3 invalid fields",
		},
		{
			name:   "one required empty",
			ev:     page.FormEvidence{RequiredEmptyCount: 1, GlobalKeywordHits: 2},
			block:  true,
			reason: "1 required field empty",
		},
		{
			name:   "two required empty",
			ev:     page.FormEvidence{RequiredEmptyCount: 2},
			block:  true,
			reason: "2 required fields empty",
		},
		{
			name:   "red error container",
			ev:     page.FormEvidence{ErrorContainerHits: 1, RedTextHits: 1},
			block:  true,
			reason: ReasonErrorVisible,
		},
		{
			name:      "error container without red text or keyword",
			ev:        page.FormEvidence{ErrorContainerHits: 2},
			allowedBy: "no_blocking_evidence",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.ev)
			assert.Equal(t, tt.block, d.Block)
			assert.Equal(t, tt.escalate, d.Escalate)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.allowedBy != "" {
				assert.Equal(t, tt.allowedBy, d.AllowedBy)
			}
		})
	}
}

func TestHasEnabledSubmit(t *testing.T) {
	assert.True(t, HasEnabledSubmit([]page.SubmitCandidate{{Text: "Apply", Type: "button"}}))
	assert.True(t, HasEnabledSubmit([]page.SubmitCandidate{{Text: "Weiter", Type: "submit"}}))
	assert.False(t, HasEnabledSubmit([]page.SubmitCandidate{{Text: "Submit", Disabled: true}}))
	assert.False(t, HasEnabledSubmit([]page.SubmitCandidate{{Text: "Submit", AriaDisabled: "TRUE"}}))
	assert.False(t, HasEnabledSubmit([]page.SubmitCandidate{{Text: "Back", Type: "button"}}))
	assert.False(t, HasEnabledSubmit(nil))
}

func TestFixHint(t *testing.T) {
	hint := FixHint("1 required field empty", []string{"Email is required", "", "Phone is invalid", "x", "y"})
	assert.Contains(t, hint, "1 required field empty")
	assert.Contains(t, hint, "Email is required | Phone is invalid | x")
	assert.NotContains(t, hint, "| y")
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(context.Context, llm.Request) (llm.Response, error) {
	f.calls++
	return llm.Response{Text: f.reply}, f.err
}

func TestGateCheck_EscalatesAndCachesConfirmation(t *testing.T) {
	p := pagetest.New("https://example.com/apply")
	p.Text = "Please correct the errors below"
	p.Evidence = func(*pagetest.Page) page.FormEvidence { return page.FormEvidence{GlobalKeywordHits: 1} }

	fake := &fakeCompleter{reply: `{"is_blocking_error": true, "reason": "form error"}`}
	g := New(NewLLMConfirmer(fake, nil, nil), nil)

	res, err := g.Check(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, res.Block)
	assert.Equal(t, ReasonConfirmed, res.Reason)

	_, err = g.Check(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestGateReset_DropsCachedConfirmation(t *testing.T) {
	p := pagetest.New("https://example.com/apply")
	p.Text = "Поле обязательно для заполнения"
	p.Evidence = func(*pagetest.Page) page.FormEvidence { return page.FormEvidence{GlobalKeywordHits: 1} }

	fake := &fakeCompleter{reply: `{"is_blocking_error": true}`}
	g := New(NewLLMConfirmer(fake, nil, nil), nil)

	_, err := g.Check(context.Background(), p)
	require.NoError(t, err)
	g.Reset()
	_, err = g.Check(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)

	New(nil, nil).Reset()
}

func TestClip_KeepsRunesWhole(t *testing.T) {
	got := clip("Ошибка формы", 3)
	assert.Equal(t, "Оши", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "ok", clip("ok", 3))
}

func TestGateCheck_UnconfirmedOrFailedConfirmationAllows(t *testing.T) {
	p := pagetest.New("https://example.com/jobs/1")
	p.Text = "Required skills: Go"
	p.Evidence = func(*pagetest.Page) page.FormEvidence { return page.FormEvidence{GlobalKeywordHits: 1} }

	for _, fake := range []*fakeCompleter{
		{reply: `{"is_blocking_error": false}`},
		{err: errors.New("boom")},
		{reply: "not json"},
	} {
		res, err := New(NewLLMConfirmer(fake, nil, nil), nil).Check(context.Background(), p)
		require.NoError(t, err)
		assert.False(t, res.Block)
	}

	res, err := New(nil, nil).Check(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, res.Block)
	assert.True(t, res.Escalate)
}

func TestAssessManual(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		ev         ManualEvidence
		required   bool
		confidence float64
	}{
		{"captcha dom", "", ManualEvidence{CaptchaVisible: true}, true, 0.95},
		{"captcha phrase", "Please verify you are human", ManualEvidence{}, true, 0.95},
		{"password with login", "Welcome back", ManualEvidence{PasswordInput: true, LoginButton: true}, true, 0.9},
		{"apply banner", "Sign in to save this job. Forgot password?", ManualEvidence{ApplyCTA: true, LoginButton: true}, false, 0},
		{"weak text", "Log in with your password", ManualEvidence{}, true, 0.6},
		{"plain page", "Senior Go engineer", ManualEvidence{}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessManual(tt.text, tt.ev)
			assert.Equal(t, tt.required, got.Required)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
		})
	}
}

func detailSnapshot(url string) (snapshot.Snapshot, map[string]intent.Set) {
	snap := snapshot.Build(url, []page.Element{
		{Role: "link", Name: "Apply for this job"},
		{Role: "button", Name: "Apply"},
		{Role: "button", Name: "Upload resume to apply"},
		{Role: "link", Name: "Sign in"},
		{Role: "textbox", Name: "Search"},
	})
	refs := map[string]intent.Set{}
	for _, item := range snap.Items {
		refs[item.Ref] = intent.Fallback(item.Name)
	}
	return snap, refs
}

func TestCollectManualEvidence(t *testing.T) {
	snap, refs := detailSnapshot("https://boards.example.com/acme/jobs/123")
	ev := CollectManualEvidence("Verify you are human", page.ManualSignals{HasPassword: true}, snap, refs, intent.Set{})
	assert.True(t, ev.ApplyCTA)
	assert.True(t, ev.LoginButton)
	assert.True(t, ev.PasswordInput)
	assert.True(t, ev.CaptchaText)
}

func TestClassifyPageAndApplyCandidate(t *testing.T) {
	url := "https://boards.example.com/acme/jobs/123"
	snap, refs := detailSnapshot(url)
	ev := ManualEvidence{ApplyCTA: true}

	assert.Equal(t, StateJobDetail, ClassifyPage(snap, ev, false, url))
	assert.Equal(t, StateManualGate, ClassifyPage(snap, ev, true, url))
	assert.Equal(t, StateForm, ClassifyPage(snap, ev, false, "https://boards.greenhouse.io/acme/jobs/1"))

	cand, ok := ApplyEntryCandidate(snap, refs, url)
	require.True(t, ok)
	assert.Equal(t, "button", cand.Role)
	assert.Equal(t, "Apply", cand.Name)

	_, ok = ApplyEntryCandidate(snap, refs, "https://example.com/jobs/1/apply")
	assert.False(t, ok)
}

func TestClassifyPage_FormFieldsOutweighApplyButton(t *testing.T) {
	snap := snapshot.Build("https://example.com/careers/1", []page.Element{
		{Role: "button", Name: "Apply"},
		{Role: "textbox", Name: "First name", Required: true},
		{Role: "textbox", Name: "Email", Required: true},
	})
	assert.Equal(t, StateForm, ClassifyPage(snap, ManualEvidence{ApplyCTA: true}, false, "https://example.com/careers/1"))
}

func TestKeywordHits(t *testing.T) {
	assert.Zero(t, KeywordHits("Thanks! We will review your profile."))
	assert.Equal(t, 2, KeywordHits("Email is REQUIRED. Please fill it in."))
	assert.Equal(t, 1, KeywordHits("error error error"), "слово считается один раз")
}
