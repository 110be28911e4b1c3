package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"autojob/internal/llm"
	"autojob/internal/logger"
	"autojob/internal/page"
	"autojob/internal/planner"

	"go.uber.org/zap"
)

const (
	navigateRetries = 3
	navigateDelay   = 2 * time.Second
	defaultSettle   = 2 * time.Second
)

// Tab открытая вкладка браузера вместе с её владельцем.
type Tab interface {
	page.Surface
	Close() error
}

// Launcher открывает новую вкладку под одну вакансию.
type Launcher interface {
	Launch(ctx context.Context) (Tab, error)
}

// LauncherFunc адаптер функции к Launcher.
type LauncherFunc func(ctx context.Context) (Tab, error)

func (f LauncherFunc) Launch(ctx context.Context) (Tab, error) { return f(ctx) }

// Job вакансия из очереди.
type Job struct {
	ID              uint
	Link            string
	PreferredResume string
}

// ApplierDeps общие для всех вакансий зависимости.
type ApplierDeps struct {
	Launcher    Launcher
	LLM         llm.Completer
	Planner     *planner.Planner
	Files       Files
	IntentModel string
	Sink        JobLogSink
	Steps       StepStore
	Log         *logger.Zap
}

// Applier проводит одну вакансию: браузер, переход, цикл агента, финальный скриншот.
type Applier struct {
	deps          ApplierDeps
	cfg           Config
	screenshotDir string
	settle        time.Duration
}

func NewApplier(d ApplierDeps, cfg Config, screenshotDir string) *Applier {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Applier{deps: d, cfg: cfg, screenshotDir: screenshotDir, settle: defaultSettle}
}

// SetSettle пауза после загрузки страницы вакансии.
func (ap *Applier) SetSettle(d time.Duration) { ap.settle = d }

// Apply ошибка означает, что агент не запускался; итог цикла всегда в Result.
func (ap *Applier) Apply(ctx context.Context, job Job) (Result, error) {
	log := ap.deps.Log.With(zap.Uint("job_id", job.ID))
	tab, err := ap.open(ctx, job, log)
	if errors.Is(err, ErrNavigation) {
		return Result{FailureClass: FailureTransient, FailureCode: CodeNavigationFailed}, err
	}
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := tab.Close(); err != nil {
			log.Warn("Ошибка закрытия браузера", zap.Error(err))
		}
	}()

	res, runErr := ap.run(ctx, tab, job, ap.cfg, log)
	ap.screenshot(context.WithoutCancel(ctx), tab, job.ID, log)
	return res, runErr
}

// Open доводит браузер до формы заявки и оставляет вкладку открытой.
// Закрыть вкладку должен вызывающий.
func (ap *Applier) Open(ctx context.Context, link string) (Tab, Result, error) {
	log := ap.deps.Log.With(zap.String("link", link))
	job := Job{Link: link}
	tab, err := ap.open(ctx, job, log)
	if err != nil {
		return nil, Result{}, err
	}
	cfg := ap.cfg
	cfg.PreNavigateOnly = true
	res, runErr := ap.run(ctx, tab, job, cfg, log)
	return tab, res, runErr
}

func (ap *Applier) open(ctx context.Context, job Job, log *zap.Logger) (Tab, error) {
	if err := ValidateJobLink(job.Link); err != nil {
		return nil, err
	}

	tab, err := ap.deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("запуск браузера: %w", err)
	}

	ap.jobLog(job.ID, "info", "opening "+job.Link)
	err = retryAction(ctx, navigateRetries, navigateDelay, func() error {
		return tab.Navigate(ctx, job.Link)
	})
	if err == nil {
		err = sleep(ctx, ap.settle)
	}
	if err != nil {
		ap.jobLog(job.ID, "error", "navigation failed: "+err.Error())
		if cerr := tab.Close(); cerr != nil {
			log.Warn("Ошибка закрытия браузера", zap.Error(cerr))
		}
		return nil, fmt.Errorf("%w %s: %w", ErrNavigation, job.Link, err)
	}
	return tab, nil
}

func (ap *Applier) run(ctx context.Context, tab Tab, job Job, cfg Config, log *zap.Logger) (Result, error) {
	if job.ID != 0 {
		cfg.JobID = &job.ID
	}
	cfg.PreferredResume = job.PreferredResume
	a := New(Deps{
		Surface:     tab,
		LLM:         ap.deps.LLM,
		Planner:     ap.deps.Planner,
		Files:       ap.deps.Files,
		IntentModel: ap.deps.IntentModel,
		Sink:        ap.deps.Sink,
		Steps:       ap.deps.Steps,
		Log:         &logger.Zap{Logger: log},
	}, cfg)
	return a.Run(ctx)
}

func (ap *Applier) screenshot(ctx context.Context, tab Tab, jobID uint, log *zap.Logger) {
	if ap.screenshotDir == "" {
		return
	}
	shot, err := tab.Screenshot(ctx, true)
	if err != nil {
		log.Warn("Финальный скриншот не снят", zap.Error(err))
		return
	}
	if err := os.MkdirAll(ap.screenshotDir, 0o755); err != nil {
		log.Warn("Ошибка создания папки скриншотов", zap.Error(err))
		return
	}
	name := filepath.Join(ap.screenshotDir, fmt.Sprintf("job_%d_%s.png", jobID, time.Now().Format("20060102_150405")))
	if err := os.WriteFile(name, shot, 0o644); err != nil {
		log.Warn("Ошибка записи скриншота", zap.Error(err))
		return
	}
	log.Info("Скриншот сохранён", zap.String("path", name))
}

func (ap *Applier) jobLog(jobID uint, level, msg string) {
	if ap.deps.Sink != nil && jobID != 0 {
		ap.deps.Sink.Log(jobID, level, msg)
	}
}
