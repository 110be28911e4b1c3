package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autojob/internal/agent"
	"autojob/internal/database"
	"autojob/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	listLimit       = 200
	logsLimit       = 500
	diagnosticSteps = 20
	topFailureCodes = 8
	shutdownTimeout = 5 * time.Second
)

// Store доступ к очереди вакансий и журналам.
type Store interface {
	CreateJob(ctx context.Context, j *database.Job) error
	GetJob(ctx context.Context, id uint) (*database.Job, error)
	ListJobs(ctx context.Context, status string, limit int) ([]database.Job, error)
	DeleteJob(ctx context.Context, id uint) error
	ClearByStatus(ctx context.Context, status string) (int64, error)
	ListLogs(ctx context.Context, jobID uint, limit int) ([]database.JobLog, error)
	GetStepsByJobID(ctx context.Context, jobID uint, limit int) ([]database.AgentStep, error)
	FailureStats(ctx context.Context, topCodes int) (database.Stats, error)
}

// Control управление воркером очереди.
type Control interface {
	Start(ctx context.Context) bool
	Stop()
	IsRunning() bool
	CurrentJob() uint
}

// Models выбор модели для планировщика.
type Models interface {
	Models() []string
	SetPreferredModel(model string)
}

type Server struct {
	addr    string
	store   Store
	control Control
	models  Models
	log     *logger.Zap
	baseCtx context.Context
}

func New(addr string, store Store, control Control, models Models, log *logger.Zap) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{addr: addr, store: store, control: control, models: models, log: log, baseCtx: context.Background()}
}

// Handler маршруты API.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Next()
		s.log.Debug("HTTP",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/jobs", s.listJobs)
	api.POST("/jobs", s.createJob)
	api.DELETE("/jobs", s.clearJobs)
	api.DELETE("/jobs/:id", s.deleteJob)
	api.GET("/jobs/:id/logs", s.jobLogs)
	api.GET("/jobs/:id/diagnostics", s.diagnostics)
	api.GET("/stats/failures", s.failureStats)
	api.POST("/control/start", s.start)
	api.POST("/control/pause", s.pause)
	api.GET("/control/status", s.status)
	api.GET("/llm/models", s.listModels)
	api.POST("/llm/model", s.setModel)
	return r
}

// Run слушает addr до отмены ctx, затем корректно закрывает соединения.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{Addr: s.addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Сервер запущен", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("Сервер остановлен")
	return nil
}

func (s *Server) listJobs(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !database.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	jobs, err := s.store.ListJobs(c.Request.Context(), status, listLimit)
	if err != nil {
		s.dbError(c, "list jobs", err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) createJob(c *gin.Context) {
	var req struct {
		Link    string `json:"link" binding:"required"`
		Company string `json:"company"`
		Title   string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	link := strings.TrimSpace(req.Link)
	if err := agent.ValidateJobLink(link); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := database.Job{
		Link:    link,
		Company: strings.TrimSpace(req.Company),
		Title:   strings.TrimSpace(req.Title),
		Status:  database.StatusPending,
	}
	if err := s.store.CreateJob(c.Request.Context(), &job); err != nil {
		s.dbError(c, "create job", err)
		return
	}

	resp := gin.H{"job": job}
	if check := agent.CheckJobLink(link); check.Level == agent.LinkSensitive {
		resp["warning"] = check.Reason
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) deleteJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if s.control != nil && s.control.CurrentJob() == id {
		c.JSON(http.StatusConflict, gin.H{"error": "job is being processed"})
		return
	}
	if err := s.store.DeleteJob(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.dbError(c, "delete job", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearJobs(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !database.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	n, err := s.store.ClearByStatus(c.Request.Context(), status)
	if err != nil {
		s.dbError(c, "clear jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) jobLogs(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	logs, err := s.store.ListLogs(c.Request.Context(), id, logsLimit)
	if err != nil {
		s.dbError(c, "list logs", err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

type failureBundle struct {
	FailureClass     string     `json:"failure_class"`
	FailureCode      string     `json:"failure_code"`
	RetryCount       int        `json:"retry_count"`
	LastErrorSnippet string     `json:"last_error_snippet"`
	LastOutcomeClass string     `json:"last_outcome_class"`
	LastOutcomeAt    *time.Time `json:"last_outcome_at"`
	ManualReason     string     `json:"manual_reason"`
	FailReason       string     `json:"fail_reason"`
}

func (s *Server) diagnostics(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.dbError(c, "get job", err)
		return
	}
	steps, err := s.store.GetStepsByJobID(ctx, id, diagnosticSteps)
	if err != nil {
		s.dbError(c, "list steps", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"status": job.Status,
		"link":   job.Link,
		"failure": failureBundle{
			FailureClass:     job.FailureClass,
			FailureCode:      job.FailureCode,
			RetryCount:       job.RetryCount,
			LastErrorSnippet: job.LastErrorSnippet,
			LastOutcomeClass: job.LastOutcomeClass,
			LastOutcomeAt:    job.LastOutcomeAt,
			ManualReason:     job.ManualReason,
			FailReason:       job.FailReason,
		},
		"recent_steps": steps,
	})
}

func (s *Server) failureStats(c *gin.Context) {
	stats, err := s.store.FailureStats(c.Request.Context(), topFailureCodes)
	if err != nil {
		s.dbError(c, "failure stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) start(c *gin.Context) {
	if s.control == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler disabled"})
		return
	}
	started := s.control.Start(s.baseCtx)
	c.JSON(http.StatusOK, gin.H{"running": true, "started": started})
}

func (s *Server) pause(c *gin.Context) {
	if s.control == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler disabled"})
		return
	}
	s.control.Stop()
	c.JSON(http.StatusOK, gin.H{"running": s.control.IsRunning(), "current_job": s.control.CurrentJob()})
}

func (s *Server) status(c *gin.Context) {
	if s.control == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": s.control.IsRunning(), "current_job": s.control.CurrentJob()})
}

func (s *Server) listModels(c *gin.Context) {
	if s.models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm disabled"})
		return
	}
	chain := s.models.Models()
	preferred := ""
	if len(chain) > 0 {
		preferred = chain[0]
	}
	c.JSON(http.StatusOK, gin.H{"models": chain, "preferred": preferred})
}

func (s *Server) setModel(c *gin.Context) {
	if s.models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm disabled"})
		return
	}
	var req struct {
		Model string `json:"model" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Model) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	s.models.SetPreferredModel(req.Model)
	s.log.Info("Выбрана модель", zap.String("model", req.Model))
	c.JSON(http.StatusOK, gin.H{"models": s.models.Models()})
}

func jobID(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return 0, false
	}
	return uint(id64), true
}

func (s *Server) dbError(c *gin.Context, op string, err error) {
	s.log.Error("db "+op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
}
