package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autojob/internal/action"
	"autojob/internal/database"
	"autojob/internal/executor"
	"autojob/internal/gate"
	"autojob/internal/intent"
	"autojob/internal/llm"
	"autojob/internal/logger"
	"autojob/internal/outcome"
	"autojob/internal/page"
	"autojob/internal/planner"
	"autojob/internal/sanitizer"
	"autojob/internal/snapshot"

	"go.uber.org/zap"
)

const (
	visibleTextLimit = 5000
	llmFailureLimit  = 3
)

// Deps зависимости агента. Sink, Steps и Files могут быть nil.
type Deps struct {
	Surface     page.Surface
	LLM         llm.Completer
	Planner     *planner.Planner
	Files       Files
	IntentModel string
	Sink        JobLogSink
	Steps       StepStore
	Log         *logger.Zap
}

// Agent ведёт одну вкладку через форму отклика.
type Agent struct {
	surface     page.Surface
	llm         llm.Completer
	planner     *planner.Planner
	executor    *executor.Executor
	files       Files
	intentModel string
	sink        JobLogSink
	steps       StepStore
	sanitizer   *sanitizer.DataSanitizer
	log         *logger.Zap
	cfg         Config
}

func New(d Deps, cfg Config) *Agent {
	cfg = cfg.withDefaults()
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	var files executor.Files
	if d.Files != nil {
		files = d.Files
	}
	return &Agent{
		surface:     d.Surface,
		llm:         d.LLM,
		planner:     d.Planner,
		executor:    executor.New(d.Surface, files, executor.Config{RefreshSettle: cfg.RefreshSettle}, d.Log),
		files:       d.Files,
		intentModel: d.IntentModel,
		sink:        d.Sink,
		steps:       d.Steps,
		sanitizer:   sanitizer.New(),
		log:         d.Log,
		cfg:         cfg,
	}
}

// NewSession сессия с собственными кэшами классификатора и проверки ошибок.
func (a *Agent) NewSession() *Session {
	classifier := intent.New(a.llm, a.intentModel, a.cfg.JobID, a.log)
	g := gate.New(gate.NewLLMConfirmer(a.llm, a.cfg.JobID, a.log), a.log)
	return NewSession(a.cfg.JobID, classifier, g)
}

// contextFields создаёт набор контекстных полей для логирования
func (a *Agent) contextFields(jobID *uint, stepNo int, fields ...zap.Field) []zap.Field {
	result := make([]zap.Field, 0, len(fields)+2)
	if jobID != nil {
		result = append(result, zap.Uint("job_id", *jobID))
	}
	if stepNo > 0 {
		result = append(result, zap.Int("step", stepNo))
	}
	result = append(result, fields...)
	return result
}

// jobLog пишет в журнал вакансии, если он подключён.
func (a *Agent) jobLog(s *Session, level, format string, args ...any) {
	if a.sink == nil || s.JobID == nil {
		return
	}
	a.sink.Log(*s.JobID, level, fmt.Sprintf(format, args...))
}

// Run крутит Step до завершения, остановки или исчерпания бюджета шагов.
func (a *Agent) Run(ctx context.Context) (Result, error) {
	s := a.NewSession()
	a.log.Info("Запуск агента", a.contextFields(s.JobID, 0,
		zap.String("session", s.ID),
		zap.Int("max_steps", a.cfg.MaxSteps),
		zap.Bool("pre_navigate_only", a.cfg.PreNavigateOnly))...)
	a.jobLog(s, "info", "agent session %s started", s.ID)

	for s.Step < a.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			a.log.Info("Выполнение отменено через контекст", a.contextFields(s.JobID, s.Step)...)
			return s.Result(), err
		}

		out := a.Step(ctx, s)
		switch out.Status {
		case StepDone:
			a.log.Info("Заявка завершена", a.contextFields(s.JobID, s.Step, zap.String("session", s.ID))...)
			a.jobLog(s, "info", "application finished at step %d", s.Step)
			return s.Result(), nil
		case StepStopped:
			a.log.Warn("Агент остановлен", a.contextFields(s.JobID, s.Step,
				zap.String("reason", out.Reason),
				zap.String("failure_class", string(s.failureClass)),
				zap.String("failure_code", s.failureCode))...)
			a.jobLog(s, "warn", "stopped: %s", out.Reason)
			if err := ctx.Err(); err != nil {
				return s.Result(), err
			}
			return s.Result(), nil
		}

		if err := sleep(ctx, a.cfg.StepPause); err != nil {
			return s.Result(), err
		}
	}

	s.stop(fmt.Sprintf("step budget of %d exhausted without completion, manual handling required", a.cfg.MaxSteps),
		FailureBudget, CodeStepBudget)
	a.log.Warn("Достигнут лимит шагов", a.contextFields(s.JobID, s.Step)...)
	a.jobLog(s, "warn", "step budget exhausted")
	return s.Result(), nil
}

// Step один цикл: наблюдение, решение, исполнение, учёт результата.
func (a *Agent) Step(ctx context.Context, s *Session) StepOutcome {
	s.Step++

	state, err := a.observe(ctx, s)
	var gateErr *manualGateError
	if errors.As(err, &gateErr) {
		a.jobLog(s, "warn", "manual intervention required: %s", gateErr.reason)
		return s.stop(gateErr.Error(), FailureManual, CodeManualGate)
	}
	if err != nil {
		return a.onPlannerError(ctx, s, err)
	}
	s.llmFailures = 0

	a.log.Info("Состояние страницы", a.contextFields(s.JobID, s.Step,
		zap.String("status", string(state.Status)),
		zap.String("summary", state.Summary))...)
	if len(state.ActionPlan) > 0 {
		a.log.Debug("План", a.contextFields(s.JobID, s.Step, zap.Strings("plan", state.ActionPlan))...)
	}
	if state.RiskOrBlocker != "" {
		a.log.Debug("Риск", a.contextFields(s.JobID, s.Step, zap.String("risk", state.RiskOrBlocker))...)
	}

	if state.Next != nil {
		switch state.Next.Kind {
		case action.Done:
			state.Status = planner.StatusDone
		case action.Stuck:
			state.Status = planner.StatusStuck
		}
	}

	switch state.Status {
	case planner.StatusDone:
		return a.onDone(ctx, s, state)
	case planner.StatusStuck:
		reason := state.Summary
		if reason == "" {
			reason = "planner reported it cannot continue"
		}
		return s.stop(reason, FailureManual, CodePlannerStuck)
	case planner.StatusError:
		return StepOutcome{Status: StepContinue, Reason: state.Summary}
	}

	if state.Next == nil {
		a.log.Warn("Модель не дала следующего действия", a.contextFields(s.JobID, s.Step)...)
		s.Note("no next action was proposed")
		return StepOutcome{Status: StepContinue}
	}

	fp := state.Fingerprint
	if fp == "" {
		fp = s.lastFingerprint
	}
	return a.act(ctx, s, *state.Next, fp)
}

func (a *Agent) onPlannerError(ctx context.Context, s *Session, err error) StepOutcome {
	if ctx.Err() != nil {
		return s.stop("cancelled", FailureUnknown, "cancelled")
	}
	if planner.IsParseError(err) {
		a.log.Warn("Ответ модели не разобран", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
		s.Note("previous planner response was not valid JSON, answer with strict JSON")
		return StepOutcome{Status: StepContinue, Reason: "parse_failed"}
	}

	s.llmFailures++
	s.modelIndex = 0
	code := llmFailure(err)
	a.log.Error("Ошибка вызова модели", a.contextFields(s.JobID, s.Step,
		zap.String("code", code), zap.Int("failures", s.llmFailures), zap.Error(err))...)
	a.jobLog(s, "error", "llm call failed: %s", code)
	if s.llmFailures >= llmFailureLimit {
		return s.stop(fmt.Sprintf("language model unavailable: %s", err), FailureLLM, code)
	}
	return StepOutcome{Status: StepContinue, Reason: code}
}

// onDone сигналу done от модели не верим без проверки страницы.
func (a *Agent) onDone(ctx context.Context, s *Session, state planner.State) StepOutcome {
	if a.cfg.PreNavigateOnly {
		return s.finish()
	}
	comp := a.verifyCompletion(ctx)
	a.log.Info("Проверка завершения", a.contextFields(s.JobID, s.Step,
		zap.Bool("confirmed", comp.Confirmed),
		zap.Float64("score", comp.Score),
		zap.Bool("terminal_fallback", state.TerminalFallback))...)
	if comp.Confirmed {
		return s.finish()
	}
	s.Note("done was reported but the page does not confirm submission (%s, score %.2f); keep working", comp.Reason, comp.Score)
	a.jobLog(s, "warn", "completion not confirmed: %s", comp.Reason)
	return StepOutcome{Status: StepContinue, Reason: comp.Reason}
}

// act защита от повторов, проверка перехода, исполнение и учёт.
func (a *Agent) act(ctx context.Context, s *Session, act action.Action, fp string) StepOutcome {
	scope := snapshot.StableScope(a.surface.URL())
	progression := a.isProgression(ctx, s, act)
	semKey := SemanticKey(scope, act, s.snap, progression)

	if semKey != "" {
		alt := Alternate(act, s.snap, progression)
		path := SemanticDecision(s.semanticFails[semKey], alt != nil)
		if path != SemanticNone {
			a.log.Warn("Повтор смыслового действия", a.contextFields(s.JobID, s.Step,
				zap.String("key", semKey), zap.Int("fails", s.semanticFails[semKey]), zap.Stringer("path", path))...)
		}
		switch path {
		case SemanticReplan, SemanticAlternateMissingReplan:
			s.semanticFails[semKey]++
			delete(s.planCache, fp)
			if path == SemanticReplan {
				s.Note("%s kept failing, cached plan dropped, choose a different approach", act)
			} else {
				s.Note("%s kept failing and no alternate control exists, re-plan", act)
			}
			s.consecutiveFailures++
			return StepOutcome{Status: StepContinue, Reason: path.String()}
		case SemanticAlternate:
			act = *alt
			progression = true
			semKey = SemanticKey(scope, act, s.snap, progression)
		case SemanticStop:
			if s.lastOutcome == nil {
				s.syncOutcome(outcome.Outcome{Class: outcome.Unknown, Code: CodeSemanticLoopStop, Snippet: s.blockReason})
			}
			return s.stop(a.semanticStopReason(s, act), FailureUnknown, CodeSemanticLoopStop)
		}
	}

	key := act.Key(fp)
	if s.actionFails[key] >= 2 {
		s.repeatedSkips[key]++
		alt := Alternate(act, s.snap, progression)
		path := RepeatedSkipPath(s.repeatedSkips[key], alt != nil)
		a.log.Warn("Повтор упавшего действия на той же странице", a.contextFields(s.JobID, s.Step,
			zap.String("action", act.String()), zap.Stringer("path", path))...)
		switch path {
		case SkipAlternate:
			act = *alt
			key = act.Key(fp)
			semKey = SemanticKey(scope, act, s.snap, true)
		case SkipReplan:
			delete(s.planCache, fp)
			s.Note("skipped repeating failed %s, cached plan dropped", act)
			s.consecutiveFailures++
			return StepOutcome{Status: StepContinue, Reason: path.String()}
		case SkipStop:
			return s.stop("the same action kept failing on the same page and no alternate exists, manual handling required",
				FailureUnknown, CodeRepeatedNoAlt)
		default:
			s.Note("%s failed repeatedly on this page, use another strategy", act)
			s.consecutiveFailures++
		}
	}

	a.log.Info("Действие", a.contextFields(s.JobID, s.Step,
		zap.String("action", act.String()), zap.String("ref", act.Ref), zap.String("reason", act.Reason))...)

	var (
		res      executor.Result
		execErr  error
		executed bool
	)
	if progression {
		blocked, err := a.checkProgression(ctx, s)
		if err != nil {
			a.log.Warn("Признаки формы не собраны", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
		}
		if !blocked {
			res, execErr = a.execute(ctx, s, act)
			executed = true
		}
	} else {
		res, execErr = a.execute(ctx, s, act)
		executed = true
	}
	success := executed && execErr == nil

	if progression {
		ok, stop := a.handleSubmission(ctx, s, act, success, executed, fp, semKey)
		if stop {
			s.recordResult(key, semKey, false)
			a.recordStep(ctx, s, act, fp, "stopped: submission retries exhausted")
			name, target := act.Kind.String(), act.Target()
			if target == "" {
				target = "unknown"
			}
			return s.stop(outcome.ManualReason(s.lastOutcome, name, target), FailureUnknown, CodeSubmissionRetries)
		}
		success = ok
		if s.succeeded {
			a.recordStep(ctx, s, act, fp, "success_confirmed")
			return StepOutcome{Status: StepDone}
		}
	}

	s.recordResult(key, semKey, success)
	if success && (act.Mutates() || res.Answered || answerLabel(act, s.snap) != "") {
		delete(s.semanticFails, scope+"|"+progressionIntent)
	}
	if res.Uploaded != "" {
		s.uploaded = res.Uploaded
	}

	resultText := "ok"
	if !success {
		resultText = "failed"
		if execErr != nil {
			resultText = "failed: " + execErr.Error()
		} else if !executed {
			resultText = "blocked: " + s.blockReason
		}
	}
	a.recordStep(ctx, s, act, fp, resultText)

	if success {
		s.Note("%s -> ok", act)
		s.consecutiveFailures = 0
		return StepOutcome{Status: StepContinue}
	}

	s.Note("%s -> %s, try another approach", act, resultText)
	s.consecutiveFailures++
	a.log.Warn("Действие не удалось", a.contextFields(s.JobID, s.Step,
		zap.Int("consecutive_failures", s.consecutiveFailures), zap.Error(execErr))...)
	return a.recover(ctx, s)
}

func (a *Agent) recover(ctx context.Context, s *Session) StepOutcome {
	if s.consecutiveFailures >= a.cfg.RefreshAfterFailures && s.refreshAttempts >= a.cfg.MaxRefreshAttempts {
		s.refreshExhausted = true
	}
	path := RecoveryPath(RecoveryInput{
		ConsecutiveFailures:    s.consecutiveFailures,
		RefreshAfterFailures:   a.cfg.RefreshAfterFailures,
		MaxConsecutiveFailures: a.cfg.MaxConsecutiveFailures,
		RefreshAttempts:        s.refreshAttempts,
		MaxRefreshAttempts:     a.cfg.MaxRefreshAttempts,
		RefreshExhausted:       s.refreshExhausted,
	})
	switch path {
	case RecoveryRefresh:
		if a.refresh(ctx, s, "consecutive_failures") {
			s.consecutiveFailures = 0
		}
	case RecoveryStopRefreshExhausted:
		return s.stop(fmt.Sprintf("no progress after %d page refreshes, manual handling required", s.refreshAttempts),
			FailureBudget, CodeRefreshExhausted)
	case RecoveryStopMaxFailures:
		return s.stop(fmt.Sprintf("%d consecutive action failures, manual handling required", s.consecutiveFailures),
			FailureBudget, CodeMaxFailures)
	}
	return StepOutcome{Status: StepContinue, Reason: path.String()}
}

// execute обновление страницы идёт через учёт попыток сессии.
func (a *Agent) execute(ctx context.Context, s *Session, act action.Action) (executor.Result, error) {
	if act.Kind == action.Refresh {
		if !a.refresh(ctx, s, "planner") {
			return executor.Result{}, errors.New("лимит перезагрузок исчерпан")
		}
		return executor.Result{Refreshed: true}, nil
	}
	return a.executor.Execute(ctx, executor.Request{
		Action:          act,
		Snapshot:        s.snap,
		UploadAllowed:   s.uploadAllowed,
		PreferredResume: a.cfg.PreferredResume,
	})
}

// refresh перезагрузка с лимитом попыток. После успеха кэши и счётчики сессии очищаются.
func (a *Agent) refresh(ctx context.Context, s *Session, trigger string) bool {
	if s.refreshAttempts >= a.cfg.MaxRefreshAttempts {
		s.refreshExhausted = true
		return false
	}
	s.refreshAttempts++
	a.log.Warn("Перезагрузка страницы", a.contextFields(s.JobID, s.Step,
		zap.Int("attempt", s.refreshAttempts), zap.String("trigger", trigger))...)

	if _, err := a.executor.Execute(ctx, executor.Request{Action: action.Action{Kind: action.Refresh}}); err != nil {
		if s.refreshAttempts >= a.cfg.MaxRefreshAttempts {
			s.refreshExhausted = true
		}
		a.log.Warn("Перезагрузка не удалась", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
		return false
	}
	s.resetAfterRefresh()
	s.Note("page refreshed (%d/%d)", s.refreshAttempts, a.cfg.MaxRefreshAttempts)
	a.jobLog(s, "warn", "page refreshed (%d/%d), trigger %s", s.refreshAttempts, a.cfg.MaxRefreshAttempts, trigger)
	return true
}

// isProgression клик по кнопке, которая двигает заявку дальше.
func (a *Agent) isProgression(ctx context.Context, s *Session, act action.Action) bool {
	if act.Kind != action.Click {
		return false
	}
	if act.Ref != "" {
		if set, ok := s.refIntents[act.Ref]; ok {
			return set.Has(intent.ProgressionAction) || set.Has(intent.ApplyEntry)
		}
		if item, ok := s.snap.Lookup(act.Ref); ok && item.Role != "button" && item.Role != "link" {
			return false
		}
	}
	name := act.Selector
	if item, ok := s.snap.Lookup(act.Ref); ok {
		name = item.Name
	}
	if strings.TrimSpace(name) == "" || s.classifier == nil {
		return false
	}
	set := s.classifier.Labels(ctx, []string{name}, "")[name]
	return set.Has(intent.ProgressionAction) || set.Has(intent.ApplyEntry)
}

// checkProgression true, если переход заблокирован. Причина и подсказка уходят в историю.
func (a *Agent) checkProgression(ctx context.Context, s *Session) (bool, error) {
	res, err := s.gate.Check(ctx, a.surface)
	if err != nil {
		return false, err
	}
	if !res.Block {
		s.blockReason = ""
		s.blockSnippets = nil
		return false, nil
	}
	s.blockReason = res.Reason
	s.blockSnippets = gate.Snippets(res.Evidence.Snippets, 3)
	s.History = append(s.History, gate.FixHint(res.Reason, s.blockSnippets))
	a.log.Warn("Переход заблокирован", a.contextFields(s.JobID, s.Step,
		zap.String("reason", res.Reason), zap.String("blocked_by", res.BlockedBy))...)
	a.jobLog(s, "warn", "progression blocked: %s", res.Reason)
	return true, nil
}

func (a *Agent) recordStep(ctx context.Context, s *Session, act action.Action, fp, result string) {
	if a.steps == nil || s.JobID == nil {
		return
	}
	step := &database.AgentStep{
		JobID:          *s.JobID,
		SessionID:      s.ID,
		StepNo:         s.Step,
		ActionType:     act.Kind.String(),
		TargetRef:      act.Ref,
		TargetSelector: a.sanitizer.SanitizeSelector(act.Selector),
		Value:          a.sanitizer.SanitizeValue(act.Target(), act.Value),
		Reasoning:      a.sanitizer.Sanitize(act.Reason),
		Result:         a.sanitizer.Sanitize(result),
		Fingerprint:    fp,
	}
	if s.lastOutcome != nil {
		step.OutcomeClass = string(s.lastOutcome.Class)
	}
	if err := a.steps.CreateStep(ctx, step); err != nil {
		a.log.Warn("Ошибка сохранения шага", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
	}
}

func (a *Agent) semanticStopReason(s *Session, act action.Action) string {
	target := act.Target()
	if target == "" {
		target = "unknown"
	}
	blocker := s.blockReason
	if blocker == "" {
		blocker = "no gate reason recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "the same semantic action kept failing after replan and alternate; action=%s:%s; last gate: %s",
		act.Kind, target, blocker)
	if len(s.blockSnippets) > 0 {
		n := min(2, len(s.blockSnippets))
		fmt.Fprintf(&b, "; errors: %s", strings.Join(s.blockSnippets[:n], " | "))
	}
	if s.lastOutcome != nil {
		fmt.Fprintf(&b, "; last outcome: %s", s.lastOutcome)
	}
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
