package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autojob/internal/llm"
	"autojob/internal/page"
)

// ErrNavigation страница вакансии не открылась.
var ErrNavigation = errors.New("переход не удался")

type ErrorType int

const (
	ErrorTypeTemporary ErrorType = iota
	ErrorTypeCritical
	ErrorTypeRetryable
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTemporary:
		return "temporary"
	case ErrorTypeCritical:
		return "critical"
	case ErrorTypeRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// ActionError ошибка операции со страницей с классом повторяемости.
type ActionError struct {
	Type    ErrorType
	Action  string
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// FailureClass класс итоговой неудачи, который видит оператор.
type FailureClass string

const (
	FailureManual     FailureClass = "manual_required"
	FailureValidation FailureClass = "validation_error"
	FailureExternal   FailureClass = "external_blocked"
	FailureTransient  FailureClass = "transient_network"
	FailureUnknown    FailureClass = "unknown"
	FailureLLM        FailureClass = "llm_error"
	FailureBudget     FailureClass = "budget_exhausted"
)

// Коды остановок цикла.
const (
	CodeManualGate        = "manual_gate"
	CodePlannerStuck      = "planner_stuck"
	CodeSemanticLoopStop  = "semantic_loop_stop"
	CodeRepeatedNoAlt     = "repeated_action_without_alternate"
	CodeRefreshExhausted  = "refresh_exhausted"
	CodeMaxFailures       = "max_consecutive_failures"
	CodeStepBudget        = "step_budget_exhausted"
	CodeSubmissionRetries = "submission_retry_exhausted"
	CodeNavigationFailed  = "navigation_failed"
)

func classifyError(action string, err error) *ActionError {
	if err == nil {
		return nil
	}

	msg := err.Error()
	errStr := strings.ToLower(msg)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ActionError{Type: ErrorTypeCritical, Action: action, Message: msg, Err: err}
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "err_connection") ||
		strings.Contains(errStr, "econnrefused") ||
		strings.Contains(errStr, "etimedout") {
		return &ActionError{Type: ErrorTypeRetryable, Action: action, Message: msg, Err: err}
	}

	if errors.Is(err, page.ErrNotFound) ||
		strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "selector") ||
		strings.Contains(errStr, "element") {
		return &ActionError{Type: ErrorTypeTemporary, Action: action, Message: msg, Err: err}
	}

	return &ActionError{Type: ErrorTypeCritical, Action: action, Message: msg, Err: err}
}

func retryAction(ctx context.Context, maxRetries int, delay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if classifyError("", err).Type == ErrorTypeCritical {
			return err
		}
	}

	return fmt.Errorf("после %d попыток: %w", maxRetries, lastErr)
}

// llmFailure код ошибки модели для пакета диагностики.
func llmFailure(err error) string {
	if code, ok := llm.IsCallError(err); ok {
		return code
	}
	return llm.CodeCallFailed
}
