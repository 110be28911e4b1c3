package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autojob/internal/database"
	"autojob/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	jobs    map[uint]*database.Job
	nextID  uint
	logs    []database.JobLog
	steps   []database.AgentStep
	cleared string
	fail    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[uint]*database.Job{}, nextID: 1}
}

func (f *fakeStore) CreateJob(_ context.Context, j *database.Job) error {
	if f.fail != nil {
		return f.fail
	}
	j.ID = f.nextID
	f.nextID++
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeStore) GetJob(_ context.Context, id uint) (*database.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return j, nil
}

func (f *fakeStore) ListJobs(_ context.Context, status string, _ int) ([]database.Job, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	var out []database.Job
	for _, j := range f.jobs {
		if status == "" || j.Status == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteJob(_ context.Context, id uint) error {
	if _, ok := f.jobs[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) ClearByStatus(_ context.Context, status string) (int64, error) {
	f.cleared = status
	var n int64
	for id, j := range f.jobs {
		if status == "" || j.Status == status {
			delete(f.jobs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListLogs(_ context.Context, jobID uint, _ int) ([]database.JobLog, error) {
	var out []database.JobLog
	for _, l := range f.logs {
		if l.JobID == jobID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) GetStepsByJobID(_ context.Context, jobID uint, _ int) ([]database.AgentStep, error) {
	var out []database.AgentStep
	for _, s := range f.steps {
		if s.JobID == jobID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) FailureStats(_ context.Context, top int) (database.Stats, error) {
	var jobs []database.Job
	for _, j := range f.jobs {
		jobs = append(jobs, *j)
	}
	return database.AggregateFailures(jobs, top), nil
}

type fakeControl struct {
	running bool
	current uint
	starts  int
}

func (c *fakeControl) Start(context.Context) bool {
	c.starts++
	if c.running {
		return false
	}
	c.running = true
	return true
}
func (c *fakeControl) Stop()            { c.running = false }
func (c *fakeControl) IsRunning() bool  { return c.running }
func (c *fakeControl) CurrentJob() uint { return c.current }

type fakeModels struct{ chain []string }

func (m *fakeModels) Models() []string { return m.chain }
func (m *fakeModels) SetPreferredModel(model string) {
	chain := []string{model}
	for _, c := range m.chain {
		if c != model {
			chain = append(chain, c)
		}
	}
	m.chain = chain
}

type fixture struct {
	store   *fakeStore
	control *fakeControl
	models  *fakeModels
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:   newFakeStore(),
		control: &fakeControl{},
		models:  &fakeModels{chain: []string{"gpt-4o", "gpt-4o-mini"}},
	}
	log := &logger.Zap{Logger: zaptest.NewLogger(t)}
	f.handler = New("127.0.0.1:0", f.store, f.control, f.models, log).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateJob(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/jobs", `{"link":" https://boards.greenhouse.io/acme/jobs/1 ","company":"Acme"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Job     database.Job `json:"job"`
		Warning string       `json:"warning"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, uint(1), resp.Job.ID)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/1", resp.Job.Link)
	assert.Equal(t, database.StatusPending, resp.Job.Status)
	assert.Empty(t, resp.Warning)

	w = f.do(t, http.MethodPost, "/api/jobs", `{"link":"https://www.paypal.com/careers/42"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	decodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.Warning)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/jobs", `{"link":"http://localhost/admin"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/jobs", `{}`).Code)
	assert.Len(t, f.store.jobs, 2)

	f.store.fail = errors.New("connection refused")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodPost, "/api/jobs", `{"link":"https://jobs.example.com/9"}`).Code)
}

func TestListAndDeleteJobs(t *testing.T) {
	f := newFixture(t)
	f.store.jobs[1] = &database.Job{ID: 1, Status: database.StatusPending}
	f.store.jobs[2] = &database.Job{ID: 2, Status: database.StatusFailed}
	f.store.jobs[3] = &database.Job{ID: 3, Status: database.StatusInProgress}

	w := f.do(t, http.MethodGet, "/api/jobs?status=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var jobs []database.Job
	decodeBody(t, w, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, uint(2), jobs[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/jobs?status=bogus", "").Code)

	f.control.current = 3
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/jobs/3", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/jobs/1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/jobs/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/jobs/abc", "").Code)

	w = f.do(t, http.MethodDelete, "/api/jobs?status=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, w.Body.String())
	assert.Equal(t, "failed", f.store.cleared)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/jobs?status=nope", "").Code)
}

func TestLogsAndDiagnostics(t *testing.T) {
	f := newFixture(t)
	f.store.jobs[5] = &database.Job{
		ID:           5,
		Status:       database.StatusManualRequired,
		Link:         "https://jobs.example.com/5",
		FailureClass: "validation_error",
		FailureCode:  "missing_required_field",
		ManualReason: "Email is required",
		RetryCount:   2,
	}
	f.store.logs = []database.JobLog{{JobID: 5, Level: "info", Message: "Старт обработки"}, {JobID: 6, Message: "другая"}}
	f.store.steps = []database.AgentStep{{JobID: 5, StepNo: 1, ActionType: "fill", TargetRef: "e3"}}

	w := f.do(t, http.MethodGet, "/api/jobs/5/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs []database.JobLog
	decodeBody(t, w, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "Старт обработки", logs[0].Message)

	w = f.do(t, http.MethodGet, "/api/jobs/5/diagnostics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var diag struct {
		Status  string               `json:"status"`
		Failure failureBundle        `json:"failure"`
		Steps   []database.AgentStep `json:"recent_steps"`
	}
	decodeBody(t, w, &diag)
	assert.Equal(t, database.StatusManualRequired, diag.Status)
	assert.Equal(t, "missing_required_field", diag.Failure.FailureCode)
	assert.Equal(t, 2, diag.Failure.RetryCount)
	require.Len(t, diag.Steps, 1)
	assert.Equal(t, "e3", diag.Steps[0].TargetRef)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/jobs/77/diagnostics", "").Code)
}

func TestFailureStats(t *testing.T) {
	f := newFixture(t)
	f.store.jobs[1] = &database.Job{ID: 1, Status: database.StatusFailed, FailureClass: "llm_error", FailureCode: "rate_limit_exhausted"}
	f.store.jobs[2] = &database.Job{ID: 2, Status: database.StatusManualRequired, FailureClass: "manual_required", FailureCode: "manual_gate"}
	f.store.jobs[3] = &database.Job{ID: 3, Status: database.StatusApplied}

	w := f.do(t, http.MethodGet, "/api/stats/failures", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats database.Stats
	decodeBody(t, w, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByClass["llm_error"])
}

func TestControl(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/control/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running":true,"started":true}`, w.Body.String())
	assert.JSONEq(t, `{"running":true,"started":false}`, f.do(t, http.MethodPost, "/api/control/start", "").Body.String())

	w = f.do(t, http.MethodPost, "/api/control/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.control.running)
	assert.JSONEq(t, `{"running":false,"current_job":0}`, f.do(t, http.MethodGet, "/api/control/status", "").Body.String())
}

func TestModels(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/llm/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"models":["gpt-4o","gpt-4o-mini"],"preferred":"gpt-4o"}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/llm/model", `{"model":"gpt-4o-mini"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, f.models.chain)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/llm/model", `{"model":"  "}`).Code)
}
