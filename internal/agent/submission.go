package agent

import (
	"context"
	"math/rand/v2"

	"autojob/internal/action"
	"autojob/internal/gate"
	"autojob/internal/outcome"
	"autojob/internal/snapshot"

	"go.uber.org/zap"
)

// handleSubmission классифицирует результат перехода. ok: шаг засчитан, stop: лимит повторов исчерпан.
func (a *Agent) handleSubmission(ctx context.Context, s *Session, act action.Action, success, executed bool, fp, semKey string) (ok, stop bool) {
	if executed {
		if _, err := a.checkProgression(ctx, s); err != nil {
			a.log.Debug("Повторная проверка формы не удалась", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
		}
	}

	text, _ := a.surface.VisibleText(ctx)
	o := outcome.Classify(outcome.Input{
		Text:            outcome.EvidenceText(text, s.blockSnippets),
		ActionSucceeded: success,
		BlockReason:     s.blockReason,
		BlockSnippets:   s.blockSnippets,
	})
	s.syncOutcome(o)
	a.log.Info("Результат отправки", a.contextFields(s.JobID, s.Step,
		zap.String("class", string(o.Class)), zap.String("code", o.Code))...)
	a.jobLog(s, "info", "submission outcome %s", o)

	if o.Class != outcome.Validation {
		s.validationSignature = ""
		s.validationRepeats = 0
	}

	switch o.Class {
	case outcome.Success:
		s.finish()
		return true, false

	case outcome.Validation:
		sig := o.Code + "|" + o.Snippet
		if sig == s.validationSignature {
			s.validationRepeats++
		} else {
			s.validationSignature = sig
			s.validationRepeats = 1
		}
		if s.validationRepeats >= a.cfg.ValidationRepeatEscalate {
			s.Note("validation error repeated (%s): must repair the flagged fields, do not resubmit until fixed", o.Snippet)
		} else {
			s.Note("validation error after %s: %s", act, o.Snippet)
		}
		return false, false

	case outcome.External, outcome.Transient:
		blocked, shouldStop := s.registerSubmissionRetry(semKey, a.cfg.SubmissionRetryLimit)
		if shouldStop {
			return false, true
		}
		if blocked {
			s.Note("submission %s (%s), retry %d/%d after a pause", o.Class, o.Code, s.retryCount, a.cfg.SubmissionRetryLimit)
			a.pace(ctx, s)
		}
		return false, false
	}

	if o.Code == outcome.CodeNoTransition {
		after := snapshot.Fingerprint(a.surface.URL(), snapshot.Collect(ctx, a.surface).Items)
		if after != fp {
			s.Note("%s advanced the form", act)
			return true, false
		}
	}
	return false, false
}

// registerSubmissionRetry учитывает блокировку отправки по смысловому ключу.
// shouldStop становится true, когда число повторов достигает limit.
func (s *Session) registerSubmissionRetry(key string, limit int) (blocked, shouldStop bool) {
	s.submissionRetries[key]++
	count := s.submissionRetries[key]
	if count > s.retryCount {
		s.retryCount = count
	}
	return true, count >= limit
}

// pace пауза со случайной длительностью и лёгкой активностью на странице между повторами.
func (a *Agent) pace(ctx context.Context, s *Session) {
	wait := a.cfg.PacingMin
	if a.cfg.PacingJitter > 0 {
		wait += rand.N(a.cfg.PacingJitter)
	}
	if err := sleep(ctx, wait); err != nil {
		return
	}
	steps := []func() error{
		func() error { return a.surface.Scroll(ctx, 120) },
		func() error { return a.surface.Scroll(ctx, -80) },
		func() error { return a.surface.PressKey(ctx, "Tab") },
		func() error { return a.surface.PressKey(ctx, "Shift+Tab") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			a.log.Debug("Действие паузы не выполнено", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
		}
	}
}

// verifyCompletion независимая проверка сигнала done.
func (a *Agent) verifyCompletion(ctx context.Context) outcome.Completion {
	text, _ := a.surface.VisibleText(ctx)
	submitVisible := false
	if ev, err := a.surface.FormEvidence(ctx); err == nil {
		submitVisible = gate.HasEnabledSubmit(ev.SubmitCandidates)
	}
	return outcome.AssessCompletion(outcome.CompletionInput{
		Text:          text,
		URL:           a.surface.URL(),
		SubmitVisible: submitVisible,
		HasError:      outcome.HasErrorText(text),
	}, a.cfg.SuccessConfidence)
}
