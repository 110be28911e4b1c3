// Package scheduler разбирает очередь вакансий одним воркером: забирает самую старую pending,
// прогоняет через агента и сохраняет итог.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"autojob/internal/agent"
	"autojob/internal/database"
	"autojob/internal/logger"

	"go.uber.org/zap"
)

// ErrBusy воркер очереди уже работает.
var ErrBusy = errors.New("планировщик занят")

const (
	claimRetries   = 3
	claimBaseDelay = 500 * time.Millisecond
)

// Store очередь вакансий.
type Store interface {
	ClaimNextPending(ctx context.Context) (*database.Job, error)
	SaveOutcome(ctx context.Context, id uint, o database.Outcome) error
	ResetInProgress(ctx context.Context) (int64, error)
}

// Applier проводит одну вакансию через агента.
type Applier interface {
	Apply(ctx context.Context, job agent.Job) (agent.Result, error)
}

type Config struct {
	PollInterval  time.Duration
	DefaultResume string
	// BreakerFailures сбоев запуска подряд до паузы, BreakerReset длительность паузы.
	BreakerFailures int
	BreakerReset    time.Duration
}

type Scheduler struct {
	store   Store
	applier Applier
	sink    agent.JobLogSink
	log     *logger.Zap
	cfg     Config
	breaker *CircuitBreaker

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	stopping atomic.Bool
	wake     chan struct{}
	current  atomic.Uint64
}

func New(store Store, applier Applier, sink agent.JobLogSink, cfg Config, log *logger.Zap) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	done := make(chan struct{})
	close(done)
	return &Scheduler{
		store:   store,
		applier: applier,
		sink:    sink,
		log:     log,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		done:    done,
		wake:    make(chan struct{}, 1),
	}
}

// Start запускает воркер. false, если он уже работает.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.stopping.Store(false)
	done := make(chan struct{})
	s.done = done

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.loop(ctx)
	}()
	s.log.Info("Планировщик запущен", zap.Duration("poll", s.cfg.PollInterval))
	return true
}

// Stop просит воркер остановиться. Текущая вакансия дорабатывается до конца.
func (s *Scheduler) Stop() {
	s.stopping.Store(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wait ждёт выхода воркера.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentJob id вакансии в работе, 0 если воркер простаивает.
func (s *Scheduler) CurrentJob() uint {
	return uint(s.current.Load())
}

func (s *Scheduler) BreakerState() CircuitState {
	return s.breaker.State()
}

// RunJob прогоняет одну вакансию вне очереди. Пока воркер запущен, возвращает ErrBusy.
func (s *Scheduler) RunJob(ctx context.Context, job *database.Job) (database.Outcome, error) {
	s.mu.Lock()
	busy := s.running
	s.mu.Unlock()
	if busy || !s.current.CompareAndSwap(0, uint64(job.ID)) {
		return database.Outcome{}, ErrBusy
	}
	return s.process(ctx, job), nil
}

func (s *Scheduler) loop(ctx context.Context) {
	if n, err := s.store.ResetInProgress(ctx); err != nil {
		s.log.Warn("Не удалось вернуть брошенные вакансии в очередь", zap.Error(err))
	} else if n > 0 {
		s.log.Info("Брошенные вакансии возвращены в очередь", zap.Int64("count", n))
	}

	for {
		if s.stopping.Load() || ctx.Err() != nil {
			s.log.Info("Планировщик остановлен")
			return
		}

		worked, err := s.tick(ctx)
		if err != nil {
			s.log.Warn("Ошибка цикла планировщика", zap.Error(err))
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
		case <-s.wake:
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// tick обрабатывает не больше одной вакансии. worked=false, если очередь пуста или запуски на паузе.
func (s *Scheduler) tick(ctx context.Context) (bool, error) {
	if !s.breaker.Allow() {
		return false, nil
	}

	var job *database.Job
	err := RetryWithExponentialBackoff(ctx, claimRetries, claimBaseDelay, func() error {
		var err error
		job, err = s.store.ClaimNextPending(ctx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("выборка вакансии: %w", err)
	}
	if job == nil {
		return false, nil
	}

	s.process(ctx, job)
	return true, nil
}

func (s *Scheduler) process(ctx context.Context, job *database.Job) database.Outcome {
	s.current.Store(uint64(job.ID))
	defer s.current.Store(0)

	log := s.log.With(zap.Uint("job_id", job.ID))
	log.Info("Обработка вакансии", zap.String("company", job.Company), zap.String("title", job.Title))
	s.jobLog(job.ID, "info", "Старт обработки: "+job.Link)

	resume := job.ResumeUsed
	if resume == "" {
		resume = s.cfg.DefaultResume
	}

	var (
		res      agent.Result
		applyErr error
	)
	// Плохая ссылка это ошибка данных, а не браузера: предохранитель её не считает.
	err := s.breaker.Call(func() error {
		res, applyErr = s.applier.Apply(ctx, agent.Job{ID: job.ID, Link: job.Link, PreferredResume: resume})
		if errors.Is(applyErr, agent.ErrBadLink) {
			return nil
		}
		return applyErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		applyErr = err
	}

	out := outcomeFor(res, applyErr)
	if out.Status == database.StatusFailed || out.Status == database.StatusManualRequired {
		log.Warn("Вакансия не подана",
			zap.String("status", out.Status),
			zap.String("class", out.FailureClass),
			zap.String("code", out.FailureCode))
	} else {
		log.Info("Отклик отправлен", zap.Int("steps", res.Steps))
	}
	s.jobLog(job.ID, levelFor(out.Status), fmt.Sprintf("Итог: %s %s", out.Status, out.FailureCode))

	if err := s.store.SaveOutcome(context.WithoutCancel(ctx), job.ID, out); err != nil {
		log.Error("Не удалось сохранить итог", zap.Error(err))
	}
	return out
}

// outcomeFor успех это applied, разбираемая человеком неудача это manual_required, остальное failed.
func outcomeFor(res agent.Result, err error) database.Outcome {
	out := database.Outcome{
		ResumeUsed:       res.ResumeUsed,
		FailureClass:     string(res.FailureClass),
		FailureCode:      res.FailureCode,
		RetryCount:       res.RetryCount,
		LastErrorSnippet: res.LastErrorSnippet,
		LastOutcomeClass: res.LastOutcomeClass,
		LastOutcomeAt:    res.LastOutcomeAt,
	}
	switch {
	case err != nil:
		out.Status = database.StatusFailed
		out.FailReason = err.Error()
	case res.Success:
		out.Status = database.StatusApplied
		out.FailureClass = ""
		out.FailureCode = ""
	case res.NeedsHuman():
		out.Status = database.StatusManualRequired
		out.ManualReason = res.ManualReasonText
	default:
		out.Status = database.StatusFailed
		out.FailReason = res.ManualReasonText
		if out.FailReason == "" {
			out.FailReason = res.FailureCode
		}
	}
	return out
}

func levelFor(status string) string {
	switch status {
	case database.StatusApplied:
		return "info"
	case database.StatusManualRequired:
		return "warn"
	}
	return "error"
}

func (s *Scheduler) jobLog(jobID uint, level, msg string) {
	if s.sink != nil {
		s.sink.Log(jobID, level, msg)
	}
}
