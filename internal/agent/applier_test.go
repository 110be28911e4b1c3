package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autojob/internal/logger"
	"autojob/internal/page/pagetest"
	"autojob/internal/planner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTab struct {
	*pagetest.Page
	closed bool
}

func (f *fakeTab) Close() error {
	f.closed = true
	return nil
}

func newApplier(t *testing.T, tab *fakeTab, launchErr error, fake *fakeLLM, dir string) (*Applier, *int) {
	t.Helper()
	log := &logger.Zap{Logger: zaptest.NewLogger(t)}
	launches := 0
	ap := NewApplier(ApplierDeps{
		Launcher: LauncherFunc(func(context.Context) (Tab, error) {
			launches++
			if launchErr != nil {
				return nil, launchErr
			}
			return tab, nil
		}),
		LLM:     fake,
		Planner: planner.New(fake, "", "", log),
		Sink:    &memSink{},
		Log:     log,
	}, Config{}, dir)
	ap.SetSettle(0)
	return ap, &launches
}

func TestApplier_Apply(t *testing.T) {
	p := pagetest.New("about:blank")
	p.Text = "Thank you for applying!"
	tab := &fakeTab{Page: p}
	dir := t.TempDir()
	fake := &fakeLLM{planner: []string{`{"status":"done"}`}}
	ap, _ := newApplier(t, tab, nil, fake, dir)

	res, err := ap.Apply(context.Background(), Job{ID: 11, Link: "https://careers.example.com/jobs/11/thanks"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, tab.closed)
	assert.Equal(t, "navigate https://careers.example.com/jobs/11/thanks", p.CallLog()[0])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "job_11_"))
	assert.Equal(t, ".png", filepath.Ext(entries[0].Name()))
}

func TestApplier_RejectsBadLink(t *testing.T) {
	ap, launches := newApplier(t, &fakeTab{Page: pagetest.New("")}, nil, &fakeLLM{}, "")

	_, err := ap.Apply(context.Background(), Job{ID: 1, Link: "http://localhost/admin"})
	assert.ErrorIs(t, err, ErrBadLink)
	assert.Zero(t, *launches)
}

func TestApplier_LaunchAndNavigationErrors(t *testing.T) {
	t.Run("launch", func(t *testing.T) {
		ap, _ := newApplier(t, nil, errors.New("no chromium"), &fakeLLM{}, "")
		_, err := ap.Apply(context.Background(), Job{ID: 2, Link: "https://careers.example.com/jobs/2"})
		assert.ErrorContains(t, err, "no chromium")
	})

	t.Run("navigate", func(t *testing.T) {
		p := pagetest.New("about:blank")
		p.FailOn = map[string]error{"navigate": errors.New("page crashed")}
		tab := &fakeTab{Page: p}
		ap, _ := newApplier(t, tab, nil, &fakeLLM{}, "")

		res, err := ap.Apply(context.Background(), Job{ID: 3, Link: "https://careers.example.com/jobs/3"})
		require.Error(t, err)
		assert.Equal(t, CodeNavigationFailed, res.FailureCode)
		assert.True(t, tab.closed)
	})
}

func TestApplier_OpenKeepsTab(t *testing.T) {
	p := applicationPage()
	tab := &fakeTab{Page: p}
	fake := &fakeLLM{}
	ap, _ := newApplier(t, tab, nil, fake, t.TempDir())

	got, res, err := ap.Open(context.Background(), "https://careers.example.com/jobs/5/apply")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Same(t, tab, got)
	assert.False(t, tab.closed, "вкладку закрывает вызывающий")
	assert.Zero(t, fake.plannerCalls())
}
