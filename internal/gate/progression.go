package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"autojob/internal/llm"
	"autojob/internal/logger"
	"autojob/internal/page"

	"go.uber.org/zap"
)

const (
	ReasonConfirmed    = "form validation error confirmed"
	ReasonErrorVisible = "error message visible"

	snippetLimit     = 180
	confirmTextLimit = 1200
	confirmMaxTokens = 160
)

// ErrorKeywords слова, по которым текст считается похожим на ошибку формы.
var ErrorKeywords = []string{
	"required",
	"missing",
	"invalid",
	"needs corrections",
	"please complete",
	"please fill",
	"error",
}

// KeywordHits сколько разных слов из ErrorKeywords встречается в тексте.
func KeywordHits(text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range ErrorKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

// Decision итог проверки перед переходом дальше.
type Decision struct {
	Block  bool
	Reason string
	// Escalate есть только общий текстовый сигнал, нужна семантическая проверка.
	Escalate  bool
	AllowedBy string
	BlockedBy string
}

// Evaluate применяет правила к собранным признакам по порядку. Без обращений к модели.
func Evaluate(ev page.FormEvidence) Decision {
	otherErrors := ev.ErrorContainerHits > 0 || ev.RedTextHits > 0 || ev.LocalKeywordHits > 0
	enabledSubmit := HasEnabledSubmit(ev.SubmitCandidates)
	allInvalidFile := allFiles(ev.InvalidSamples)

	if ev.InvalidCount > 0 {
		if allInvalidFile && uploadReady(ev.FileUploads) && enabledSubmit &&
			(ev.RequiredEmptyCount <= 0 || allFiles(ev.RequiredEmptySamples)) && !otherErrors {
			return Decision{AllowedBy: "file_only_invalid_with_upload_ready"}
		}
		if ev.InvalidCount == 1 && !allInvalidFile && ev.RequiredEmptyCount <= 0 && !otherErrors && enabledSubmit {
			return Decision{AllowedBy: "single_invalid_without_other_errors"}
		}
		return Decision{Block: true, Reason: plural(ev.InvalidCount, "invalid field"), BlockedBy: "invalid_field_count"}
	}
	if ev.RequiredEmptyCount > 0 {
		return Decision{Block: true, Reason: plural(ev.RequiredEmptyCount, "required field") + " empty", BlockedBy: "required_empty_count"}
	}
	if ev.ErrorContainerHits > 0 && (ev.RedTextHits > 0 || ev.LocalKeywordHits > 0) {
		return Decision{Block: true, Reason: ReasonErrorVisible, BlockedBy: "error_container_with_visual_or_local_keyword"}
	}
	if ev.GlobalKeywordHits > 0 {
		return Decision{Escalate: true, AllowedBy: "global_keyword_unconfirmed"}
	}
	return Decision{AllowedBy: "no_blocking_evidence"}
}

// HasEnabledSubmit есть доступная кнопка отправки: submit/apply в тексте или type=submit.
func HasEnabledSubmit(candidates []page.SubmitCandidate) bool {
	for _, c := range candidates {
		text := strings.ToLower(c.Text)
		if !strings.Contains(text, "submit") && !strings.Contains(text, "apply") && !strings.EqualFold(c.Type, "submit") {
			continue
		}
		aria := strings.ToLower(strings.TrimSpace(c.AriaDisabled))
		if !c.Disabled && aria != "true" && aria != "1" {
			return true
		}
	}
	return false
}

func allFiles(samples []page.FieldSample) bool {
	if len(samples) == 0 {
		return false
	}
	for _, s := range samples {
		if !strings.EqualFold(s.Type, "file") {
			return false
		}
	}
	return true
}

func uploadReady(uploads []page.FileUpload) bool {
	for _, u := range uploads {
		if u.HasReplaceText || u.HasUploadedFileName {
			return true
		}
	}
	return false
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// FixHint подсказка для истории планировщика после блокировки.
func FixHint(reason string, snippets []string) string {
	hint := fmt.Sprintf("progression blocked: %s; fix the flagged fields before submitting", reason)
	clipped := Snippets(snippets, 3)
	if len(clipped) > 0 {
		hint += "; errors: " + strings.Join(clipped, " | ")
	}
	return hint
}

// Snippets первые n фрагментов ошибок, обрезанные.
func Snippets(snippets []string, n int) []string {
	var out []string
	for _, s := range snippets {
		if len(out) == n {
			break
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, clip(s, snippetLimit))
	}
	return out
}

// Confirmer семантически подтверждает, что общий текст ошибки относится к форме.
type Confirmer interface {
	Confirm(ctx context.Context, ev page.FormEvidence, text string) bool
}

// LLMConfirmer кэширует вердикты по признакам и началу текста.
type LLMConfirmer struct {
	llm   llm.Completer
	jobID *uint
	log   *logger.Zap
	cache map[string]bool
}

func NewLLMConfirmer(completer llm.Completer, jobID *uint, log *logger.Zap) *LLMConfirmer {
	if log == nil {
		log = logger.Nop()
	}
	return &LLMConfirmer{llm: completer, jobID: jobID, log: log, cache: make(map[string]bool)}
}

// Reset сбрасывает кэш вердиктов, например после перезагрузки страницы.
func (c *LLMConfirmer) Reset() {
	c.cache = make(map[string]bool)
}

type confirmPrompt struct {
	Task     string          `json:"task"`
	Rules    []string        `json:"rules"`
	Evidence confirmEvidence `json:"evidence"`
	Excerpt  string          `json:"visible_text_excerpt"`
	Return   map[string]any  `json:"return_json_only"`
}

type confirmEvidence struct {
	InvalidCount       int      `json:"invalid_field_count"`
	RequiredEmptyCount int      `json:"required_empty_count"`
	ErrorContainerHits int      `json:"error_container_hits"`
	LocalKeywordHits   int      `json:"local_error_keyword_hits"`
	RedTextHits        int      `json:"red_error_hits"`
	GlobalKeywordHits  int      `json:"global_error_keyword_hits"`
	Snippets           []string `json:"error_snippets"`
}

func (c *LLMConfirmer) Confirm(ctx context.Context, ev page.FormEvidence, text string) bool {
	if c.llm == nil {
		return false
	}

	keyDoc, _ := json.Marshal(struct {
		Evidence page.FormEvidence `json:"evidence"`
		Text     string            `json:"text"`
	}{ev, clip(text, confirmTextLimit)})
	sum := sha256.Sum256(keyDoc)
	key := hex.EncodeToString(sum[:])
	if v, ok := c.cache[key]; ok {
		return v
	}

	prompt, _ := json.Marshal(confirmPrompt{
		Task: "Decide if current page has blocking form-validation errors",
		Rules: []string{
			"Return true only if errors are clearly about form validation/submission.",
			"Ignore job description text such as 'required skills'.",
			"Prefer field/error-container evidence over generic wording.",
		},
		Evidence: confirmEvidence{
			InvalidCount:       ev.InvalidCount,
			RequiredEmptyCount: ev.RequiredEmptyCount,
			ErrorContainerHits: ev.ErrorContainerHits,
			LocalKeywordHits:   ev.LocalKeywordHits,
			RedTextHits:        ev.RedTextHits,
			GlobalKeywordHits:  ev.GlobalKeywordHits,
			Snippets:           Snippets(ev.Snippets, 6),
		},
		Excerpt: clip(text, 1000),
		Return:  map[string]any{"is_blocking_error": true, "reason": "brief"},
	})

	verdict := false
	resp, err := c.llm.Complete(ctx, llm.Request{
		Role:        "gate_confirm",
		System:      "You validate form error context. Return strict JSON only.",
		User:        string(prompt),
		Temperature: llm.Temp(0),
		MaxTokens:   confirmMaxTokens,
		JobID:       c.jobID,
	})
	if err != nil {
		c.log.Warn("проверка контекста ошибки не удалась", zap.Error(err))
	} else {
		var parsed struct {
			IsBlockingError bool   `json:"is_blocking_error"`
			Reason          string `json:"reason"`
		}
		if err := llm.ParseJSON(resp.Text, &parsed); err == nil {
			verdict = parsed.IsBlockingError
		}
	}

	c.cache[key] = verdict
	return verdict
}

// Result решение вместе с собранными признаками.
type Result struct {
	Decision
	Evidence page.FormEvidence
}

// Gate собирает признаки со страницы и применяет Evaluate.
type Gate struct {
	confirmer Confirmer
	log       *logger.Zap
}

// New confirmer может быть nil, тогда общий сигнал никогда не блокирует.
func New(confirmer Confirmer, log *logger.Zap) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{confirmer: confirmer, log: log}
}

// Reset сбрасывает кэш подтверждений, если confirmer его держит.
func (g *Gate) Reset() {
	if r, ok := g.confirmer.(interface{ Reset() }); ok {
		r.Reset()
	}
}

func (g *Gate) Check(ctx context.Context, s page.Surface) (Result, error) {
	ev, err := s.FormEvidence(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("сбор признаков формы: %w", err)
	}

	d := Evaluate(ev)
	if d.Escalate && g.confirmer != nil {
		text, _ := s.VisibleText(ctx)
		if g.confirmer.Confirm(ctx, ev, text) {
			d = Decision{Block: true, Reason: ReasonConfirmed, BlockedBy: "global_keyword_confirmed_by_llm"}
		}
	}

	g.log.Debug("проверка перехода",
		zap.Bool("block", d.Block),
		zap.String("reason", d.Reason),
		zap.Int("invalid", ev.InvalidCount),
		zap.Int("required_empty", ev.RequiredEmptyCount),
		zap.Int("global_hits", ev.GlobalKeywordHits),
	)
	return Result{Decision: d, Evidence: ev}, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
