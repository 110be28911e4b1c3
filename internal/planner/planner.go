// Package planner строит промпт из наблюдения страницы и разбирает ответ модели в состояние агента.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"autojob/internal/action"
	"autojob/internal/llm"
	"autojob/internal/logger"
	"autojob/internal/outcome"
	"autojob/internal/snapshot"

	"go.uber.org/zap"
)

type Status string

const (
	StatusContinue Status = "continue"
	StatusDone     Status = "done"
	StatusStuck    Status = "stuck"
	StatusError    Status = "error"
)

const (
	visibleTextLimit = 5000
	actionPlanLimit  = 8
)

// State решение планировщика на одном шаге.
type State struct {
	Status        Status
	Summary       string
	PageOverview  string
	FieldAudit    string
	ActionPlan    []string
	RiskOrBlocker string
	Next          *action.Action
	Fingerprint   string
	Raw           string
	// TerminalFallback ответ без JSON, но с фразой о завершении.
	TerminalFallback bool
	ModelIndex       int
}

// Input наблюдение, из которого строится запрос.
type Input struct {
	History          []string
	VisibleText      string
	Snapshot         snapshot.Snapshot
	Fingerprint      string
	Uploads          UploadSignals
	UploadCandidates []string
	IsNewPage        bool
	Screenshot       []byte
	StartModel       int
	JobID            *uint
}

type Planner struct {
	llm    llm.Completer
	system string
	log    *logger.Zap
}

func New(completer llm.Completer, userInfo, guidelines string, log *logger.Zap) *Planner {
	if log == nil {
		log = logger.Nop()
	}
	return &Planner{
		llm:    completer,
		system: SystemPrompt(userInfo, guidelines),
		log:    log,
	}
}

type rawState struct {
	Status        string      `json:"status"`
	Summary       any         `json:"summary"`
	PageOverview  any         `json:"page_overview"`
	FieldAudit    any         `json:"field_audit"`
	ActionPlan    any         `json:"action_plan"`
	RiskOrBlocker any         `json:"risk_or_blocker"`
	NextAction    *action.Raw `json:"next_action"`
}

// Plan один вызов модели. Ошибка разбора ответа возвращается как llm.CallError с кодом parse_failed.
func (p *Planner) Plan(ctx context.Context, in Input) (State, error) {
	in.VisibleText = clip(in.VisibleText, visibleTextLimit)

	resp, err := p.llm.Complete(ctx, llm.Request{
		Role:       "planner",
		System:     p.system,
		User:       UserPrompt(in, snapshot.Render(in.Snapshot)),
		Image:      in.Screenshot,
		StartModel: in.StartModel,
		JobID:      in.JobID,
	})
	if err != nil {
		return State{Status: StatusError, Summary: err.Error()}, err
	}

	state, err := Parse(resp.Text)
	state.Fingerprint = in.Fingerprint
	state.ModelIndex = resp.ModelIndex
	if err != nil {
		p.log.Warn("ответ планировщика не разобран", zap.String("model", resp.Model), zap.Error(err))
		return state, err
	}
	return state, nil
}

// Parse разбирает ответ модели. Текст без JSON с фразой о завершении даёт done-кандидата.
func Parse(raw string) (State, error) {
	var data rawState
	if err := llm.ParseJSON(raw, &data); err != nil {
		if outcome.ImpliesCompletion(raw) {
			return State{
				Status:           StatusDone,
				Summary:          "completion phrase in a non-JSON response",
				Raw:              raw,
				TerminalFallback: true,
			}, nil
		}
		return State{Status: StatusError, Summary: "unparseable planner response", Raw: raw},
			&llm.CallError{Code: llm.CodeParseFailed, Summary: clip(raw, 200), Err: err}
	}

	st := State{
		Status:        normalizeStatus(data.Status),
		Summary:       str(data.Summary),
		PageOverview:  str(data.PageOverview),
		FieldAudit:    str(data.FieldAudit),
		ActionPlan:    list(data.ActionPlan, actionPlanLimit),
		RiskOrBlocker: str(data.RiskOrBlocker),
		Raw:           raw,
	}

	if st.Status == StatusContinue && data.NextAction != nil && data.NextAction.Action != "" {
		a, err := action.Parse(*data.NextAction)
		if err != nil {
			st.Status = StatusError
			return st, &llm.CallError{Code: llm.CodeParseFailed, Summary: err.Error(), Err: err}
		}
		st.Next = &a
	}
	return st, nil
}

// IsParseError ошибка относится к разбору ответа, а не к вызову.
func IsParseError(err error) bool {
	var ce *llm.CallError
	return errors.As(err, &ce) && ce.Code == llm.CodeParseFailed
}

func normalizeStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusDone:
		return StatusDone
	case StatusStuck:
		return StatusStuck
	case StatusError:
		return StatusError
	default:
		return StatusContinue
	}
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func list(v any, limit int) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, min(len(items), limit))
	for _, it := range items {
		if len(out) == limit {
			break
		}
		out = append(out, fmt.Sprint(it))
	}
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
