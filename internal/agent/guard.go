package agent

import (
	"strings"

	"autojob/internal/action"
	"autojob/internal/snapshot"
)

const progressionIntent = "progression::submit_apply"

// SemanticPath решение по числу неудач одного смыслового действия.
type SemanticPath int

const (
	SemanticNone SemanticPath = iota
	SemanticReplan
	SemanticAlternate
	SemanticAlternateMissingReplan
	SemanticStop
)

func (p SemanticPath) String() string {
	switch p {
	case SemanticReplan:
		return "replan"
	case SemanticAlternate:
		return "alternate"
	case SemanticAlternateMissingReplan:
		return "alternate_missing_replan"
	case SemanticStop:
		return "stop"
	}
	return "none"
}

// SemanticDecision 1 неудача: перепланировать, 2: заменить действие (или перепланировать без замены), 3 и больше: стоп.
func SemanticDecision(failCount int, hasAlternate bool) SemanticPath {
	switch {
	case failCount >= 3:
		return SemanticStop
	case failCount == 2:
		if hasAlternate {
			return SemanticAlternate
		}
		return SemanticAlternateMissingReplan
	case failCount == 1:
		return SemanticReplan
	}
	return SemanticNone
}

// SkipPath решение для действия, дважды упавшего на том же состоянии страницы.
type SkipPath int

const (
	SkipNone SkipPath = iota
	SkipAlternate
	SkipReplan
	SkipStop
)

func (p SkipPath) String() string {
	switch p {
	case SkipAlternate:
		return "alternate"
	case SkipReplan:
		return "replan"
	case SkipStop:
		return "stop"
	}
	return "none"
}

// RepeatedSkipPath замена действия важнее счётчика пропусков.
func RepeatedSkipPath(skipCount int, hasAlternate bool) SkipPath {
	switch {
	case hasAlternate:
		return SkipAlternate
	case skipCount == 1:
		return SkipReplan
	case skipCount >= 3:
		return SkipStop
	}
	return SkipNone
}

// Recovery реакция на неудачи подряд.
type Recovery int

const (
	RecoveryNone Recovery = iota
	RecoveryRefresh
	RecoveryStopRefreshExhausted
	RecoveryStopMaxFailures
)

func (r Recovery) String() string {
	switch r {
	case RecoveryRefresh:
		return "refresh"
	case RecoveryStopRefreshExhausted:
		return "stop_refresh_exhausted"
	case RecoveryStopMaxFailures:
		return "stop_max_failures"
	}
	return "none"
}

// RecoveryInput счётчики для RecoveryPath.
type RecoveryInput struct {
	ConsecutiveFailures    int
	RefreshAfterFailures   int
	MaxConsecutiveFailures int
	RefreshAttempts        int
	MaxRefreshAttempts     int
	RefreshExhausted       bool
}

// RecoveryPath сначала перезагрузка, затем остановка при исчерпанных перезагрузках, затем потолок неудач.
func RecoveryPath(in RecoveryInput) Recovery {
	if in.ConsecutiveFailures >= in.RefreshAfterFailures {
		if in.RefreshAttempts < in.MaxRefreshAttempts {
			return RecoveryRefresh
		}
		if in.RefreshExhausted {
			return RecoveryStopRefreshExhausted
		}
	}
	if in.ConsecutiveFailures >= in.MaxConsecutiveFailures {
		return RecoveryStopMaxFailures
	}
	return RecoveryNone
}

// answerLabel yes/no из селектора или имени элемента снимка.
func answerLabel(a action.Action, snap snapshot.Snapshot) string {
	if a.Kind != action.Click {
		return ""
	}
	if label := action.YesNo(a.Selector); label != "" {
		return label
	}
	if a.Ref != "" {
		if item, ok := snap.Lookup(a.Ref); ok {
			return action.YesNo(item.Name)
		}
	}
	return ""
}

// SemanticKey scope|intent: ответ на конкретный вопрос или переход дальше. Пусто для прочих действий.
func SemanticKey(scope string, a action.Action, snap snapshot.Snapshot, progression bool) string {
	if label := answerLabel(a, snap); label != "" {
		question := strings.ToLower(strings.TrimSpace(a.TargetQuestion))
		if question == "" {
			question = "unknown"
		}
		return scope + "|answer::" + question + "::" + label
	}
	if progression {
		return scope + "|" + progressionIntent
	}
	return ""
}

// Alternate другая кнопка или ссылка отправки на той же странице.
func Alternate(a action.Action, snap snapshot.Snapshot, progression bool) *action.Action {
	if a.Kind != action.Click || !progression {
		return nil
	}
	for _, item := range snap.Items {
		if item.Ref == a.Ref || (a.Ref == "" && strings.EqualFold(item.Name, a.Selector)) {
			continue
		}
		if item.Role != "button" && item.Role != "link" {
			continue
		}
		label := strings.ToLower(item.Name)
		if !strings.Contains(label, "submit") && !strings.Contains(label, "apply") {
			continue
		}
		return &action.Action{
			Kind:        action.Click,
			Ref:         item.Ref,
			Selector:    item.Name,
			ElementType: item.Role,
			Reason:      "alternate submit control",
		}
	}
	return nil
}
