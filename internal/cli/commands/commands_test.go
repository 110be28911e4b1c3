package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"autojob/internal/agent"
	"autojob/internal/database"
	"autojob/internal/page/pagetest"
	"autojob/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeStore struct {
	jobs    map[uint]*database.Job
	nextID  uint
	logs    []database.JobLog
	steps   []database.AgentStep
	stats   database.Stats
	cleared string
	listErr error
}

func newFakeStore(jobs ...*database.Job) *fakeStore {
	s := &fakeStore{jobs: map[uint]*database.Job{}, nextID: 100}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) CreateJob(_ context.Context, j *database.Job) error {
	s.nextID++
	j.ID = s.nextID
	s.jobs[j.ID] = j
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id uint) (*database.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return j, nil
}

func (s *fakeStore) ListJobs(_ context.Context, status string, _ int) ([]database.Job, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []database.Job
	for id := uint(1); id <= s.nextID; id++ {
		if j, ok := s.jobs[id]; ok && (status == "" || j.Status == status) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *fakeStore) ClearByStatus(_ context.Context, status string) (int64, error) {
	s.cleared = status
	return 3, nil
}

func (s *fakeStore) ListLogs(context.Context, uint, int) ([]database.JobLog, error) {
	return s.logs, nil
}

func (s *fakeStore) GetStepsByJobID(context.Context, uint, int) ([]database.AgentStep, error) {
	return s.steps, nil
}

func (s *fakeStore) FailureStats(context.Context, int) (database.Stats, error) {
	return s.stats, nil
}

type fakeRunner struct {
	out database.Outcome
	err error
	ran []uint
}

func (r *fakeRunner) RunJob(_ context.Context, job *database.Job) (database.Outcome, error) {
	r.ran = append(r.ran, job.ID)
	return r.out, r.err
}

func TestJobHandler_Add(t *testing.T) {
	store := newFakeStore()
	var out bytes.Buffer
	h := NewJobHandler(store, nil, &out, zaptest.NewLogger(t))

	h.Add(context.Background(), "https://boards.greenhouse.io/acme/jobs/42 Acme Corp")
	require.Len(t, store.jobs, 1)
	job := store.jobs[101]
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/42", job.Link)
	assert.Equal(t, "Acme Corp", job.Company)
	assert.Equal(t, database.StatusPending, job.Status)
	assert.Contains(t, out.String(), "#101")

	out.Reset()
	h.Add(context.Background(), "javascript:alert(1)")
	assert.Len(t, store.jobs, 1)
	assert.Contains(t, out.String(), "Ссылка отклонена")

	out.Reset()
	h.Add(context.Background(), "")
	assert.Contains(t, out.String(), "Укажите ссылку")
}

func TestJobHandler_List(t *testing.T) {
	store := newFakeStore(
		&database.Job{ID: 1, Link: "https://jobs.example.com/1", Company: "Acme", Status: database.StatusApplied},
		&database.Job{ID: 2, Link: "https://jobs.example.com/2", Status: database.StatusFailed, FailureClass: "validation_error", FailureCode: "missing_required"},
	)
	store.nextID = 2
	var out bytes.Buffer
	h := NewJobHandler(store, nil, &out, zaptest.NewLogger(t))

	h.List(context.Background(), "")
	assert.Contains(t, out.String(), "Acme")
	assert.Contains(t, out.String(), "https://jobs.example.com/2")
	assert.Contains(t, out.String(), "validation_error:missing_required")

	out.Reset()
	h.List(context.Background(), "bogus")
	assert.Contains(t, out.String(), "Неизвестный статус")

	out.Reset()
	store.listErr = errors.New("db down")
	h.List(context.Background(), "")
	assert.Contains(t, out.String(), "Ошибка получения вакансий")
}

func TestJobHandler_Run(t *testing.T) {
	store := newFakeStore(&database.Job{ID: 7, Link: "https://jobs.example.com/7"})
	runner := &fakeRunner{out: database.Outcome{Status: database.StatusManualRequired, ManualReason: "captcha"}}
	var out bytes.Buffer
	h := NewJobHandler(store, runner, &out, zaptest.NewLogger(t))

	h.Run(context.Background(), "7")
	assert.Equal(t, []uint{7}, runner.ran)
	assert.Contains(t, out.String(), "нужен человек")
	assert.Contains(t, out.String(), "captcha")

	out.Reset()
	runner.err = scheduler.ErrBusy
	h.Run(context.Background(), "7")
	assert.Contains(t, out.String(), "pause")

	out.Reset()
	h.Run(context.Background(), "abc")
	assert.Contains(t, out.String(), "Неверный ID")

	out.Reset()
	h.Run(context.Background(), "99")
	assert.Contains(t, out.String(), "не найдена")
}

func TestJobHandler_PurgeAndStats(t *testing.T) {
	store := newFakeStore()
	store.stats = database.Stats{
		Total:   3,
		ByClass: map[string]int{"validation_error": 2, "manual_required": 1},
		TopCode: []database.CodeCount{{Key: "validation_error:missing_required", Count: 2}},
	}
	var out bytes.Buffer
	h := NewJobHandler(store, nil, &out, zaptest.NewLogger(t))

	h.Purge(context.Background(), "failed")
	assert.Equal(t, "failed", store.cleared)
	assert.Contains(t, out.String(), "Удалено: 3")

	out.Reset()
	h.Stats(context.Background())
	assert.Contains(t, out.String(), "Неудач: 3")
	assert.Contains(t, out.String(), "validation_error:missing_required")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("manual_required ")), bytes.Index(out.Bytes(), []byte("validation_error ")))
}

func TestShowAndLogs(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	store := newFakeStore(&database.Job{
		ID: 4, Link: "https://jobs.example.com/4", Status: database.StatusFailed,
		FailureClass: "validation_error", FailureCode: "missing_required", RetryCount: 2,
		LastErrorSnippet: "Phone is required", LastOutcomeClass: "validation_error", LastOutcomeAt: &at,
	})
	store.steps = []database.AgentStep{{StepNo: 3, ActionType: "fill", TargetSelector: "textbox:Phone", OutcomeClass: "validation_error"}}
	store.logs = []database.JobLog{{Level: "error", Message: "navigation failed", CreatedAt: at}}

	var out bytes.Buffer
	NewShowHandler(store, &out, zaptest.NewLogger(t)).Show(context.Background(), "4")
	assert.Contains(t, out.String(), "validation_error / missing_required (повторов 2)")
	assert.Contains(t, out.String(), "Phone is required")
	assert.Contains(t, out.String(), "[Шаг 3]")
	assert.Contains(t, out.String(), "textbox:Phone")

	out.Reset()
	NewLogsHandler(store, &out, zaptest.NewLogger(t)).Show(context.Background(), "4")
	assert.Contains(t, out.String(), "[10:30:00]")
	assert.Contains(t, out.String(), "navigation failed")
}

type fakeControl struct {
	running bool
	current uint
	stopped bool
}

func (c *fakeControl) Start(context.Context) bool {
	if c.running {
		return false
	}
	c.running = true
	return true
}
func (c *fakeControl) Stop()            { c.stopped = true }
func (c *fakeControl) IsRunning() bool  { return c.running }
func (c *fakeControl) CurrentJob() uint { return c.current }

func TestControlHandler(t *testing.T) {
	ctl := &fakeControl{}
	var out bytes.Buffer
	h := NewControlHandler(ctl, &out)

	h.Start(context.Background())
	assert.Contains(t, out.String(), "Очередь запущена")
	h.Start(context.Background())
	assert.Contains(t, out.String(), "уже запущена")

	out.Reset()
	ctl.current = 12
	h.Status()
	assert.Contains(t, out.String(), "#12")
	h.Pause()
	assert.True(t, ctl.stopped)
	assert.Contains(t, out.String(), "Пауза после вакансии #12")

	out.Reset()
	NewControlHandler(nil, &out).Start(context.Background())
	assert.Contains(t, out.String(), "не инициализирован")
}

type fakeModels struct{ chain []string }

func (m *fakeModels) Models() []string { return m.chain }
func (m *fakeModels) SetPreferredModel(model string) {
	m.chain = append([]string{model}, m.chain...)
}

func TestLLMHandler(t *testing.T) {
	models := &fakeModels{chain: []string{"gpt-4o-mini", "gpt-4o"}}
	var out bytes.Buffer
	h := NewLLMHandler(models, &out)

	h.Select("gpt-4.1")
	assert.Equal(t, "gpt-4.1", models.chain[0])
	h.List()
	assert.Contains(t, out.String(), "gpt-4.1")

	out.Reset()
	h.Select("  ")
	assert.Contains(t, out.String(), "Укажите модель")
}

type fakeTab struct {
	*pagetest.Page
	closed bool
}

func (f *fakeTab) Close() error {
	f.closed = true
	return nil
}

type fakeOpener struct {
	tab  *fakeTab
	res  agent.Result
	err  error
	link string
}

func (o *fakeOpener) Open(_ context.Context, link string) (agent.Tab, agent.Result, error) {
	o.link = link
	if o.tab == nil {
		return nil, agent.Result{}, o.err
	}
	return o.tab, o.res, o.err
}

func TestBrowserHandler_Open(t *testing.T) {
	tab := &fakeTab{Page: pagetest.New("about:blank")}
	opener := &fakeOpener{tab: tab, res: agent.Result{Success: true}}
	reads := 0
	readLine := func() (string, error) { reads++; return "", nil }
	var out bytes.Buffer
	h := NewBrowserHandler(opener, nil, readLine, &out, zaptest.NewLogger(t))

	h.Open(context.Background(), "careers.example.com/jobs/1")
	assert.Equal(t, "https://careers.example.com/jobs/1", opener.link)
	assert.Contains(t, out.String(), "Форма заявки открыта")
	assert.Equal(t, 1, reads)
	assert.True(t, tab.closed)

	out.Reset()
	failing := &fakeOpener{err: agent.ErrBadLink}
	NewBrowserHandler(failing, nil, readLine, &out, zaptest.NewLogger(t)).Open(context.Background(), "http://localhost")
	assert.Contains(t, out.String(), "Ошибка открытия")
	assert.Equal(t, 1, reads)
}

func TestBrowserHandler_OpenPersistent(t *testing.T) {
	tab := &fakeTab{Page: pagetest.New("about:blank")}
	launcher := agent.LauncherFunc(func(context.Context) (agent.Tab, error) { return tab, nil })
	var out bytes.Buffer
	h := NewBrowserHandler(nil, launcher, func() (string, error) { return "", nil }, &out, zaptest.NewLogger(t))

	h.OpenPersistent(context.Background())
	assert.Contains(t, out.String(), "с сохранением сессии")
	assert.True(t, tab.closed)
}
