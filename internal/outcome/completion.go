package outcome

import (
	"math"
	"strings"
)

// DefaultSuccessConfidence порог уверенности по умолчанию.
const DefaultSuccessConfidence = 0.72

var extraSuccessPhrases = []string{
	"we'll be in touch",
	"we will review your application",
}

var errorIndicators = []string{
	"this field is required",
	"please fill",
	"is required",
	"missing required",
	"please complete",
	"invalid",
}

var urlSuccessHints = []string{"/thanks", "/thank-you", "/success", "/submitted", "/complete", "/confirmation"}

// CompletionInput наблюдения после сигнала done от планировщика.
type CompletionInput struct {
	Text          string
	URL           string
	SubmitVisible bool
	HasError      bool
}

// Signals слагаемые оценки, для журнала.
type Signals struct {
	SuccessText     bool    `json:"success_text"`
	SubmitVisible   bool    `json:"submit_button_visible"`
	HasError        bool    `json:"has_error"`
	URLSuccessHint  bool    `json:"url_success_hint"`
	ExternalBlocked bool    `json:"external_blocked"`
	Score           float64 `json:"score"`
}

type Completion struct {
	Confirmed bool
	Score     float64
	Reason    string
	Signals   Signals
}

// AssessCompletion взвешивает признаки завершения. threshold <= 0 означает порог по умолчанию.
func AssessCompletion(in CompletionInput, threshold float64) Completion {
	if threshold <= 0 {
		threshold = DefaultSuccessConfidence
	}
	lower := strings.ToLower(in.Text)
	urlLower := strings.ToLower(in.URL)

	sig := Signals{
		SuccessText:     containsAny(lower, successPhrases) || containsAny(lower, extraSuccessPhrases),
		SubmitVisible:   in.SubmitVisible,
		HasError:        in.HasError,
		URLSuccessHint:  containsAny(urlLower, urlSuccessHints),
		ExternalBlocked: containsAny(lower, externalPhrases),
	}

	score := 0.0
	if sig.SuccessText {
		score += 0.68
	}
	if sig.SubmitVisible {
		score -= 0.30
	} else {
		score += 0.16
	}
	if sig.HasError {
		score -= 0.48
	} else {
		score += 0.10
	}
	if sig.URLSuccessHint {
		score += 0.12
	}
	if sig.ExternalBlocked {
		score -= 0.60
	}
	score = math.Max(0, math.Min(1, score))
	sig.Score = math.Round(score*1000) / 1000

	out := Completion{
		Confirmed: score >= threshold && !sig.HasError && !sig.ExternalBlocked,
		Score:     score,
		Signals:   sig,
		Reason:    "not_confident_enough",
	}
	if out.Confirmed {
		out.Reason = "high_confidence_success"
	}
	return out
}

// HasErrorText на странице остались сообщения об ошибках заполнения.
func HasErrorText(text string) bool {
	return containsAny(strings.ToLower(text), errorIndicators)
}
