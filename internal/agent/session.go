package agent

import (
	"fmt"
	"time"

	"autojob/internal/gate"
	"autojob/internal/intent"
	"autojob/internal/outcome"
	"autojob/internal/planner"
	"autojob/internal/snapshot"

	"github.com/google/uuid"
)

const errorSnippetLimit = 300

// Session изменяемое состояние одного прохода по форме. Счётчики и кэши живут только здесь.
type Session struct {
	ID    string
	JobID *uint
	Step  int

	History []string

	actionFails       map[string]int
	repeatedSkips     map[string]int
	semanticFails     map[string]int
	submissionRetries map[string]int
	planCache         map[string]planner.State
	cacheUses         map[string]int

	consecutiveFailures int
	refreshAttempts     int
	refreshExhausted    bool
	llmFailures         int

	modelIndex int
	visionUsed int

	lastURL         string
	lastFingerprint string
	snap            snapshot.Snapshot
	refIntents      map[string]intent.Set
	uploadAllowed   bool

	blockReason   string
	blockSnippets []string

	lastOutcome         *outcome.Outcome
	lastOutcomeAt       *time.Time
	validationSignature string
	validationRepeats   int

	manualReason     string
	failureClass     FailureClass
	failureCode      string
	retryCount       int
	lastErrorSnippet string
	uploaded         string
	succeeded        bool

	classifier *intent.Classifier
	gate       *gate.Gate
}

func NewSession(jobID *uint, classifier *intent.Classifier, g *gate.Gate) *Session {
	return &Session{
		ID:                uuid.NewString(),
		JobID:             jobID,
		actionFails:       map[string]int{},
		repeatedSkips:     map[string]int{},
		semanticFails:     map[string]int{},
		submissionRetries: map[string]int{},
		planCache:         map[string]planner.State{},
		cacheUses:         map[string]int{},
		refIntents:        map[string]intent.Set{},
		classifier:        classifier,
		gate:              g,
	}
}

// Note добавляет строку в историю шагов для следующего промпта.
func (s *Session) Note(format string, args ...any) {
	s.History = append(s.History, fmt.Sprintf("step %d: ", s.Step)+fmt.Sprintf(format, args...))
}

// Recent последние n строк истории.
func (s *Session) Recent(n int) []string {
	if n <= 0 || len(s.History) <= n {
		return append([]string(nil), s.History...)
	}
	return append([]string(nil), s.History[len(s.History)-n:]...)
}

// ConsecutiveFailures текущее число неудач подряд.
func (s *Session) ConsecutiveFailures() int { return s.consecutiveFailures }

// SemanticFailures счётчик для семантического ключа.
func (s *Session) SemanticFailures(key string) int { return s.semanticFails[key] }

// recordResult успех обнуляет счётчики ключа, неудача увеличивает счётчики действия и смысла.
func (s *Session) recordResult(actionKey, semanticKey string, success bool) {
	if success {
		s.actionFails[actionKey] = 0
		s.repeatedSkips[actionKey] = 0
		if semanticKey != "" {
			s.semanticFails[semanticKey] = 0
		}
		return
	}
	s.actionFails[actionKey]++
	if semanticKey != "" {
		s.semanticFails[semanticKey]++
	}
}

// resetAfterRefresh после перезагрузки старые планы и счётчики недействительны.
func (s *Session) resetAfterRefresh() {
	clear(s.planCache)
	clear(s.actionFails)
	clear(s.cacheUses)
	clear(s.repeatedSkips)
	clear(s.semanticFails)
	s.lastFingerprint = ""
	if s.classifier != nil {
		s.classifier.Reset()
	}
	if s.gate != nil {
		s.gate.Reset()
	}
}

var failureClassByOutcome = map[outcome.Class]FailureClass{
	outcome.Validation: FailureValidation,
	outcome.External:   FailureExternal,
	outcome.Transient:  FailureTransient,
	outcome.Unknown:    FailureUnknown,
}

// syncOutcome переносит результат отправки в пакет диагностики.
func (s *Session) syncOutcome(o outcome.Outcome) {
	now := time.Now().UTC()
	s.lastOutcome = &o
	s.lastOutcomeAt = &now
	if o.Class == outcome.Success {
		s.failureClass = ""
		s.failureCode = ""
		s.retryCount = 0
		s.lastErrorSnippet = ""
		return
	}
	s.failureClass = failureClassByOutcome[o.Class]
	s.failureCode = o.Code
	s.lastErrorSnippet = clip(o.Snippet, errorSnippetLimit)
}

// stop фиксирует причину остановки. Класс и код из последнего результата отправки не перетираются.
func (s *Session) stop(reason string, class FailureClass, code string) StepOutcome {
	s.manualReason = reason
	if s.failureClass == "" || class == FailureManual || class == FailureLLM {
		s.failureClass = class
		s.failureCode = code
	}
	return StepOutcome{Status: StepStopped, Reason: reason}
}

func (s *Session) finish() StepOutcome {
	s.succeeded = true
	s.failureClass = ""
	s.failureCode = ""
	s.manualReason = ""
	return StepOutcome{Status: StepDone}
}

// Result пакет для планировщика очереди.
func (s *Session) Result() Result {
	r := Result{
		Success:          s.succeeded,
		ManualReasonText: s.manualReason,
		FailureClass:     s.failureClass,
		FailureCode:      s.failureCode,
		RetryCount:       s.retryCount,
		LastErrorSnippet: s.lastErrorSnippet,
		LastOutcomeAt:    s.lastOutcomeAt,
		ResumeUsed:       s.uploaded,
		Steps:            s.Step,
		SessionID:        s.ID,
	}
	if s.lastOutcome != nil {
		r.LastOutcomeClass = string(s.lastOutcome.Class)
	}
	return r
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
