package browser

import (
	"context"
	"fmt"

	"autojob/internal/gate"
	"autojob/internal/page"
)

// ManualSignals видимое поле пароля и DOM признаки капчи.
func (s *Surface) ManualSignals(ctx context.Context) (page.ManualSignals, error) {
	var out page.ManualSignals
	p := s.getPage()
	if p == nil {
		return out, errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	raw, err := p.Evaluate(manualSignalsScript, gate.CaptchaSelectors)
	if err != nil {
		return out, fmt.Errorf("признаки ручного режима: %w", err)
	}
	return out, decode(raw, &out)
}

// FormEvidence структурные признаки ошибок формы и число слов-ошибок во всём тексте.
func (s *Surface) FormEvidence(ctx context.Context) (page.FormEvidence, error) {
	var out page.FormEvidence
	p := s.getPage()
	if p == nil {
		return out, errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	raw, err := p.Evaluate(formEvidenceScript, gate.ErrorKeywords)
	if err != nil {
		return out, fmt.Errorf("признаки формы: %w", err)
	}
	if err := decode(raw, &out); err != nil {
		return out, fmt.Errorf("разбор признаков формы: %w", err)
	}
	if text, err := s.VisibleText(ctx); err == nil {
		out.GlobalKeywordHits = gate.KeywordHits(text)
	}
	return out, nil
}

type answerResult struct {
	OK      bool   `json:"ok"`
	Matched bool   `json:"matched"`
	Reason  string `json:"reason"`
}

// ClickAnswer кликает вариант ответа, ближайший к тексту вопроса.
func (s *Surface) ClickAnswer(ctx context.Context, question, label string) (bool, error) {
	res, err := s.evalAnswer(ctx, clickAnswerScript, map[string]string{"question": question, "answer": label})
	if err != nil {
		return false, err
	}
	return res.OK, nil
}

// AnswerSelected true, если в блоке вопроса отмечен ожидаемый вариант.
func (s *Surface) AnswerSelected(ctx context.Context, question, label string) (bool, error) {
	res, err := s.evalAnswer(ctx, answerSelectedScript, map[string]string{"question": question, "expected": label})
	if err != nil {
		return false, err
	}
	return res.Matched && res.OK, nil
}

func (s *Surface) evalAnswer(ctx context.Context, script string, arg map[string]string) (answerResult, error) {
	var res answerResult
	p := s.getPage()
	if p == nil {
		return res, errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	raw, err := p.Evaluate(script, arg)
	if err != nil {
		return res, fmt.Errorf("привязка ответа к вопросу: %w", err)
	}
	return res, decode(raw, &res)
}
