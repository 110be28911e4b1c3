package agent

import (
	"context"
	"fmt"
	"strings"

	"autojob/internal/action"
	"autojob/internal/gate"
	"autojob/internal/intent"
	"autojob/internal/outcome"
	"autojob/internal/planner"
	"autojob/internal/snapshot"
	"autojob/internal/uploads"

	"go.uber.org/zap"
)

const visionMinElements = 6

var riskKeywords = []string{"captcha", "verify you are human", "security check", "flagged as possible spam"}

// manualGateError страница требует человека: логин или капча.
type manualGateError struct {
	reason     string
	confidence float64
}

func (e *manualGateError) Error() string {
	return fmt.Sprintf("manual required: %s (%.2f)", e.reason, e.confidence)
}

// observe снимает страницу и возвращает решение: из кэша, без модели или от планировщика.
func (a *Agent) observe(ctx context.Context, s *Session) (planner.State, error) {
	currentURL := a.surface.URL()
	text, err := a.surface.VisibleText(ctx)
	if err != nil {
		a.log.Warn("Текст страницы недоступен", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
	}
	text = clip(text, visibleTextLimit)

	snap := snapshot.Collect(ctx, a.surface)
	fp := snapshot.Fingerprint(currentURL, snap.Items)
	s.snap = snap
	s.refIntents = s.classifier.Snapshot(ctx, snap, text)
	textIntents := s.classifier.Text(ctx, text)

	signals, err := a.surface.ManualSignals(ctx)
	if err != nil {
		a.log.Debug("Сигналы логина недоступны", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
	}
	ev := gate.CollectManualEvidence(text, signals, snap, s.refIntents, textIntents)
	manual := gate.AssessManual(text, ev)
	pageState := gate.ClassifyPage(snap, ev, manual.Required, currentURL)
	a.log.Debug("Наблюдение", a.contextFields(s.JobID, s.Step,
		zap.String("url", currentURL),
		zap.String("fingerprint", fp),
		zap.Int("elements", snap.Len()),
		zap.String("page_state", string(pageState)))...)

	if manual.Required {
		return planner.State{}, &manualGateError{reason: manual.Reason, confidence: manual.Confidence}
	}

	newPage := s.lastURL != "" && s.lastURL != currentURL
	if newPage {
		s.Note("navigated to %s", currentURL)
	}
	s.lastURL = currentURL
	s.lastFingerprint = fp

	if pageState == gate.StateJobDetail {
		if cand, ok := gate.ApplyEntryCandidate(snap, s.refIntents, currentURL); ok {
			return planner.State{
				Status:      planner.StatusContinue,
				Summary:     "job detail page, opening the application",
				Next:        &action.Action{Kind: action.Click, Ref: cand.Ref, Selector: cand.Name, ElementType: cand.Role, Reason: "apply entry"},
				Fingerprint: fp,
			}, nil
		}
	}
	if a.cfg.PreNavigateOnly && pageState == gate.StateForm {
		return planner.State{Status: planner.StatusDone, Summary: "application form reached", Fingerprint: fp}, nil
	}

	if cached, ok := a.replay(s, fp); ok {
		a.log.Info("План из кэша", a.contextFields(s.JobID, s.Step, zap.String("action", cached.Next.String()))...)
		return cached, nil
	}

	signalsUpload := planner.UploadSignals{
		FileInputs: snap.FileInputs(),
		TextIntent: textIntents.Has(intent.UploadRequest),
	}
	for _, item := range snap.Items {
		if (item.Role == "button" || item.Role == "link") && s.refIntents[item.Ref].Has(intent.UploadRequest) {
			signalsUpload.UploadButtons = append(signalsUpload.UploadButtons, item.Name)
		}
	}
	s.uploadAllowed = signalsUpload.Present()
	var candidates []string
	if s.uploadAllowed && a.files != nil {
		candidates = a.files.Candidates(uploads.DefaultMaxCandidates)
	}

	in := planner.Input{
		History:          s.Recent(a.cfg.HistoryWindow),
		VisibleText:      text,
		Snapshot:         snap,
		Fingerprint:      fp,
		Uploads:          signalsUpload,
		UploadCandidates: candidates,
		IsNewPage:        newPage,
		StartModel:       s.modelIndex,
		JobID:            s.JobID,
	}
	if a.wantVision(s, snap, text, pageState) {
		shot, err := a.surface.Screenshot(ctx, false)
		if err != nil {
			a.log.Warn("Скриншот для модели не снят", a.contextFields(s.JobID, s.Step, zap.Error(err))...)
		} else {
			in.Screenshot = shot
			s.visionUsed++
		}
	}

	state, err := a.planner.Plan(ctx, in)
	if err != nil {
		return state, err
	}
	s.modelIndex = state.ModelIndex
	if state.Status == planner.StatusContinue && state.Next != nil {
		s.planCache[fp] = state
	}
	return state, nil
}

// replay план из кэша без вызова модели: не переключатель, без неудач и не больше одного повтора.
func (a *Agent) replay(s *Session, fp string) (planner.State, bool) {
	cached, ok := s.planCache[fp]
	if !ok || cached.Next == nil {
		return planner.State{}, false
	}
	next := *cached.Next
	if toggleTarget(s.snap, next) {
		return planner.State{}, false
	}
	key := next.Key(fp)
	if s.actionFails[key] > 0 || s.cacheUses[key] > 0 {
		return planner.State{}, false
	}
	s.cacheUses[key]++
	return cached, true
}

// toggleTarget цель действия переключатель. Роль из снимка важнее типа, названного моделью;
// элемент с состоянием checked или pressed тоже считается переключателем.
func toggleTarget(snap snapshot.Snapshot, act action.Action) bool {
	item, ok := snap.Lookup(act.Ref)
	if !ok && act.Selector != "" {
		for _, e := range snap.Items {
			if strings.EqualFold(e.Name, act.Selector) {
				item, ok = e, true
				break
			}
		}
	}
	if ok {
		return item.Checked != nil || action.IsToggle(item.Role) || action.IsToggle(item.InputType)
	}
	return action.IsToggle(act.ElementType)
}

// wantVision скриншот к запросу, когда текста и снимка может не хватить.
func (a *Agent) wantVision(s *Session, snap snapshot.Snapshot, text string, pageState gate.PageState) bool {
	if !a.cfg.Vision || s.visionUsed >= a.cfg.VisionBudget {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range riskKeywords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return s.consecutiveFailures > 0 ||
		s.blockReason != "" ||
		(s.lastOutcome != nil && s.lastOutcome.Class != outcome.Success) ||
		snap.Len() < visionMinElements ||
		s.Step <= 2 ||
		pageState == gate.StateManualGate
}
