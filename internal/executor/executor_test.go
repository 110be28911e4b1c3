package executor

import (
	"context"
	"testing"
	"time"

	"autojob/internal/action"
	"autojob/internal/logger"
	"autojob/internal/page"
	"autojob/internal/page/pagetest"
	"autojob/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFiles struct {
	paths   []string
	allowed map[string]bool
}

func (f fakeFiles) Resolve(string, string) []string { return f.paths }
func (f fakeFiles) Allowed(p string) bool          { return f.allowed[p] }

func observe(t *testing.T, p *pagetest.Page) snapshot.Snapshot {
	t.Helper()
	els, err := p.Elements(context.Background())
	require.NoError(t, err)
	return snapshot.Build(p.URL(), els)
}

func refOf(t *testing.T, snap snapshot.Snapshot, role, name string) string {
	t.Helper()
	for _, it := range snap.Items {
		if it.Role == role && it.Name == name {
			return it.Ref
		}
	}
	t.Fatalf("нет элемента %s %q", role, name)
	return ""
}

func newExecutor(t *testing.T, p *pagetest.Page, files Files) *Executor {
	return New(p, files, Config{RefreshSettle: time.Millisecond, WaitUnit: time.Millisecond}, &logger.Zap{Logger: zaptest.NewLogger(t)})
}

func TestExecute_FillByRef(t *testing.T) {
	p := pagetest.New("https://x.io/apply", &pagetest.Field{Role: "textbox", Name: "Email", Required: true})
	snap := observe(t, p)
	ex := newExecutor(t, p, nil)

	res, err := ex.Execute(context.Background(), Request{
		Action:   action.Action{Kind: action.Fill, Ref: refOf(t, snap, "textbox", "Email"), Value: "jane@x.io"},
		Snapshot: snap,
	})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.False(t, res.Retried)
	assert.Equal(t, "jane@x.io", p.Find("textbox", "Email").Value)
}

func TestExecute_CheckboxFallsBackToCheck(t *testing.T) {
	// Checked == nil: клик не меняет состояние, помогает только Check.
	p := pagetest.New("https://x.io/apply", &pagetest.Field{Role: "checkbox", Name: "I agree"})
	snap := observe(t, p)
	ex := newExecutor(t, p, nil)

	res, err := ex.Execute(context.Background(), Request{
		Action:   action.Action{Kind: action.Click, Ref: refOf(t, snap, "checkbox", "I agree")},
		Snapshot: snap,
	})
	require.NoError(t, err)
	assert.True(t, res.Retried)
	assert.True(t, res.Verified)
	assert.Contains(t, p.CallLog(), "check checkbox:I agree#0")
}

func TestExecute_AnswerBoundToQuestion(t *testing.T) {
	p := pagetest.New("https://x.io/apply",
		&pagetest.Field{Role: "button", Name: "Yes"},
		&pagetest.Field{Role: "button", Name: "Yes"},
	)
	p.Answers["Are you over 18?"] = ""
	p.Answers["Do you need sponsorship?"] = ""
	ex := newExecutor(t, p, nil)

	res, err := ex.Execute(context.Background(), Request{
		Action: action.Action{Kind: action.Click, Selector: "Yes", TargetQuestion: "Are you over 18?"},
	})
	require.NoError(t, err)
	assert.True(t, res.Answered)
	assert.True(t, res.Verified)
	assert.Equal(t, "Yes", p.Answers["Are you over 18?"])
	assert.Empty(t, p.Answers["Do you need sponsorship?"])
}

func TestExecute_UnboundAnswerNeedsSelectedState(t *testing.T) {
	p := pagetest.New("https://x.io/apply",
		&pagetest.Field{Role: "button", Name: "No", Attrs: map[string]string{"class": "btn btn--selected"}},
		&pagetest.Field{Role: "button", Name: "Yes"},
	)
	ex := newExecutor(t, p, nil)

	res, err := ex.Execute(context.Background(), Request{Action: action.Action{Kind: action.Click, Selector: "No"}})
	require.NoError(t, err)
	assert.True(t, res.Verified)

	_, err = ex.Execute(context.Background(), Request{Action: action.Action{Kind: action.Click, Selector: "Yes"}})
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.Contains(t, p.CallLog(), "scroll-into-view text:Yes")
}

func TestExecute_QuestionAnswerIgnoresForeignSelectedButton(t *testing.T) {
	// блок вопроса не найден, а первая кнопка Yes выбрана в другом вопросе
	p := pagetest.New("https://x.io/apply",
		&pagetest.Field{Role: "button", Name: "Yes", Attrs: map[string]string{"class": "btn selected"}},
		&pagetest.Field{Role: "button", Name: "Yes"},
	)
	ex := newExecutor(t, p, nil)

	res, err := ex.Execute(context.Background(), Request{
		Action: action.Action{Kind: action.Click, Selector: "Yes", TargetQuestion: "Do you need sponsorship?"},
	})
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.False(t, res.Verified)
	assert.False(t, res.Answered)
	assert.True(t, res.Retried)
}

func TestExecute_ScrollsToHiddenElement(t *testing.T) {
	submit := &pagetest.Field{Role: "button", Name: "Submit application", Hidden: true}
	p := pagetest.New("https://x.io/apply", submit)
	scrolls := 0
	p.OnScroll = func(_ *pagetest.Page, _ int) {
		scrolls++
		if scrolls == 2 {
			submit.Hidden = false
		}
	}
	ex := newExecutor(t, p, nil)

	_, err := ex.Execute(context.Background(), Request{Action: action.Action{Kind: action.Click, Selector: "Submit application"}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"click text:Submit application",
		"scroll 300",
		"click text:Submit application",
		"scroll 300",
		"click text:Submit application",
	}, p.CallLog())
}

func TestExecute_ScrollRetriesAreBounded(t *testing.T) {
	p := pagetest.New("https://x.io/apply",
		&pagetest.Field{Role: "textbox", Name: "City", Hidden: true},
	)
	ex := newExecutor(t, p, nil)

	_, err := ex.Execute(context.Background(), Request{Action: action.Action{Kind: action.Fill, Selector: "City", Value: "Berlin"}})
	assert.ErrorIs(t, err, page.ErrNotFound)
	assert.Equal(t, []string{
		"fill text:City = Berlin",
		"scroll 300",
		"fill text:City = Berlin",
		"scroll 300",
		"fill text:City = Berlin",
	}, p.CallLog())
}

func TestExecute_PlainClickNeedsNoVerification(t *testing.T) {
	p := pagetest.New("https://x.io/apply", &pagetest.Field{Role: "button", Name: "Submit application"})
	ex := newExecutor(t, p, nil)

	res, err := ex.Execute(context.Background(), Request{Action: action.Action{Kind: action.Click, Selector: "Submit"}})
	require.NoError(t, err)
	assert.False(t, res.Retried)
	assert.Equal(t, []string{"click text:Submit"}, p.CallLog())
}

func TestExecute_UnknownRef(t *testing.T) {
	p := pagetest.New("https://x.io/apply")
	_, err := newExecutor(t, p, nil).Execute(context.Background(), Request{Action: action.Action{Kind: action.Fill, Ref: "e9", Value: "x"}})
	assert.ErrorIs(t, err, ErrUnknownRef)
}

func TestExecute_Upload(t *testing.T) {
	p := pagetest.New("https://x.io/apply", &pagetest.Field{Role: "file_input", Name: "Resume", Required: true})
	snap := observe(t, p)
	ref := refOf(t, snap, "file_input", "Resume")

	files := fakeFiles{
		paths:   []string{"/etc/passwd", "/home/jane/cv/resume.pdf"},
		allowed: map[string]bool{"/home/jane/cv/resume.pdf": true},
	}

	_, err := newExecutor(t, p, files).Execute(context.Background(), Request{
		Action:   action.Action{Kind: action.Upload, Ref: ref},
		Snapshot: snap,
	})
	assert.ErrorIs(t, err, ErrUploadNotAllowed)

	res, err := newExecutor(t, p, files).Execute(context.Background(), Request{
		Action:        action.Action{Kind: action.Upload, Ref: ref, Value: "resume.pdf"},
		Snapshot:      snap,
		UploadAllowed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/home/jane/cv/resume.pdf", res.Uploaded)
	assert.Equal(t, []string{"upload file_input#0 = /home/jane/cv/resume.pdf"}, p.CallLog())

	_, err = newExecutor(t, p, fakeFiles{paths: []string{"/etc/passwd"}}).Execute(context.Background(), Request{
		Action:        action.Action{Kind: action.Upload, Ref: ref},
		Snapshot:      snap,
		UploadAllowed: true,
	})
	assert.ErrorIs(t, err, ErrNoUploadFile)
}

func TestExecute_PageLevelActions(t *testing.T) {
	p := pagetest.New("https://x.io/apply")
	ex := newExecutor(t, p, nil)
	ctx := context.Background()

	_, err := ex.Execute(ctx, Request{Action: action.Action{Kind: action.Scroll, Value: "up"}})
	require.NoError(t, err)
	res, err := ex.Execute(ctx, Request{Action: action.Action{Kind: action.Refresh}})
	require.NoError(t, err)
	assert.True(t, res.Refreshed)
	assert.Equal(t, 1, p.Reloads)
	assert.Equal(t, []string{"scroll -500", "reload"}, p.CallLog())

	_, err = ex.Execute(ctx, Request{Action: action.Action{Kind: action.Done}})
	assert.ErrorIs(t, err, ErrTerminal)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ex.Execute(cancelled, Request{Action: action.Action{Kind: action.Wait, Value: "3"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitUnits(t *testing.T) {
	assert.Equal(t, 1, waitUnits(""))
	assert.Equal(t, 1, waitUnits("-2"))
	assert.Equal(t, 4, waitUnits(" 4 "))
	assert.Equal(t, maxWaitSeconds, waitUnits("600"))
}
