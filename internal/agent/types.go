// Package agent ведёт цикл заполнения формы отклика: наблюдение, план, проверка перехода,
// исполнение, классификация результата и защита от повторов.
package agent

import (
	"context"
	"time"

	"autojob/internal/config"
	"autojob/internal/database"
)

// JobLogSink журнал вакансии. Log не должен блокировать цикл.
type JobLogSink interface {
	Log(jobID uint, level, message string)
}

// StepStore журнал шагов агента.
type StepStore interface {
	CreateStep(ctx context.Context, s *database.AgentStep) error
}

// Files белый список файлов для загрузки.
type Files interface {
	Candidates(limit int) []string
	Resolve(requested, preferred string) []string
	Allowed(path string) bool
}

// Config пороги цикла. Нулевые значения заменяются значениями по умолчанию,
// кроме StepPause: ноль означает отсутствие паузы.
type Config struct {
	MaxSteps                 int
	MaxConsecutiveFailures   int
	RefreshAfterFailures     int
	MaxRefreshAttempts       int
	SubmissionRetryLimit     int
	ValidationRepeatEscalate int
	SuccessConfidence        float64
	StepPause                time.Duration
	Vision                   bool
	VisionBudget             int
	HistoryWindow            int
	// PreNavigateOnly остановиться с успехом, как только открыта форма заявки.
	PreNavigateOnly bool

	PacingMin     time.Duration
	PacingJitter  time.Duration
	RefreshSettle time.Duration

	JobID           *uint
	PreferredResume string
}

// ConfigFrom пороги из настроек приложения.
func ConfigFrom(c config.Agent) Config {
	return Config{
		MaxSteps:                 c.MaxSteps,
		MaxConsecutiveFailures:   c.MaxConsecutiveFailures,
		RefreshAfterFailures:     c.RefreshAfterFailures,
		MaxRefreshAttempts:       c.MaxRefreshAttempts,
		SubmissionRetryLimit:     c.SubmissionRetryLimit,
		ValidationRepeatEscalate: c.ValidationRepeatEscalate,
		SuccessConfidence:        c.SuccessConfidence,
		StepPause:                c.StepPause,
		Vision:                   c.Vision,
		VisionBudget:             c.VisionBudget,
		HistoryWindow:            c.HistoryWindow,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 50
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 5
	}
	if c.RefreshAfterFailures <= 0 {
		c.RefreshAfterFailures = 3
	}
	if c.MaxRefreshAttempts <= 0 {
		c.MaxRefreshAttempts = 2
	}
	if c.SubmissionRetryLimit <= 0 {
		c.SubmissionRetryLimit = 3
	}
	if c.ValidationRepeatEscalate <= 0 {
		c.ValidationRepeatEscalate = 2
	}
	if c.SuccessConfidence <= 0 {
		c.SuccessConfidence = 0.72
	}
	if c.VisionBudget <= 0 {
		c.VisionBudget = 8
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 5
	}
	if c.PacingMin <= 0 {
		c.PacingMin = 900 * time.Millisecond
	}
	if c.PacingJitter <= 0 {
		c.PacingJitter = 900 * time.Millisecond
	}
	if c.RefreshSettle <= 0 {
		c.RefreshSettle = 1200 * time.Millisecond
	}
	return c
}

// Result итог сессии: успех либо пакет диагностики неудачи.
type Result struct {
	Success          bool
	ManualReasonText string
	FailureClass     FailureClass
	FailureCode      string
	RetryCount       int
	LastErrorSnippet string
	LastOutcomeClass string
	LastOutcomeAt    *time.Time
	ResumeUsed       string
	Steps            int
	SessionID        string
}

// NeedsHuman неудача, которую может разобрать оператор. Ошибки модели к ним не относятся.
func (r Result) NeedsHuman() bool {
	return !r.Success && r.FailureClass != FailureLLM
}

// StepStatus итог одного шага цикла.
type StepStatus int

const (
	StepContinue StepStatus = iota
	StepDone
	StepStopped
)

func (s StepStatus) String() string {
	switch s {
	case StepContinue:
		return "continue"
	case StepDone:
		return "done"
	case StepStopped:
		return "stopped"
	}
	return "unknown"
}

type StepOutcome struct {
	Status StepStatus
	Reason string
}
