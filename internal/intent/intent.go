// Package intent размечает кнопки, ссылки и текст страницы закрытым набором намерений.
// Дешёвая модель вызывается один раз на набор подписей, при ошибке работает словарь.
package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"autojob/internal/llm"
	"autojob/internal/logger"
	"autojob/internal/snapshot"

	"go.uber.org/zap"
)

type Intent string

const (
	ApplyEntry        Intent = "apply_entry"
	LoginAction       Intent = "login_action"
	ProgressionAction Intent = "progression_action"
	UploadRequest     Intent = "upload_request"
)

var labelIntents = map[Intent]bool{
	ApplyEntry:        true,
	LoginAction:       true,
	ProgressionAction: true,
	UploadRequest:     true,
}

var textIntents = map[Intent]bool{
	LoginAction:   true,
	UploadRequest: true,
}

const (
	maxLabels      = 40
	labelContext   = 600
	snapshotText   = 800
	textLimit      = 1200
	labelMaxTokens = 500
	textMaxTokens  = 220
)

// Set набор намерений одного элемента.
type Set map[Intent]bool

func (s Set) Has(i Intent) bool { return s[i] }

// Sorted намерения в алфавитном порядке, для логов и кэша.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for i := range s {
		out = append(out, string(i))
	}
	sort.Strings(out)
	return out
}

func setOf(names []string) Set {
	s := Set{}
	for _, n := range names {
		s[Intent(n)] = true
	}
	return s
}

// Classifier кэширует результаты в пределах одной сессии агента.
type Classifier struct {
	llm   llm.Completer
	model string
	jobID *uint
	log   *logger.Zap

	cache map[string]map[string][]string
}

// New completer может быть nil, тогда используется только словарь.
func New(completer llm.Completer, model string, jobID *uint, log *logger.Zap) *Classifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Classifier{
		llm:   completer,
		model: model,
		jobID: jobID,
		log:   log,
		cache: make(map[string]map[string][]string),
	}
}

// Reset очищает кэш, вызывается при обновлении страницы.
func (c *Classifier) Reset() {
	c.cache = make(map[string]map[string][]string)
}

// CacheKey ключ кэша для набора подписей и контекста.
func CacheKey(labels []string, pageContext string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	base := strings.Join(sorted, "\n") + "\n--ctx--\n" + clip(pageContext, labelContext)
	sum := sha256.Sum256([]byte(base))
	return "labels::" + hex.EncodeToString(sum[:])
}

// Labels намерения для каждой подписи. Подписи без ответа модели получают словарные намерения.
func (c *Classifier) Labels(ctx context.Context, labels []string, pageContext string) map[string]Set {
	cleaned := unique(labels)
	if len(cleaned) == 0 {
		return map[string]Set{}
	}

	key := CacheKey(cleaned, pageContext)
	if cached, ok := c.cache[key]; ok {
		out := make(map[string]Set, len(cached))
		for label, names := range cached {
			out[label] = setOf(names)
		}
		return out
	}

	result, err := c.labelsWithLLM(ctx, cleaned, pageContext)
	if err != nil {
		c.log.Debug("классификатор подписей недоступен, словарь", zap.Error(err))
		result = make(map[string]Set, len(cleaned))
	}
	for _, label := range cleaned {
		if _, ok := result[label]; !ok {
			result[label] = Fallback(label)
		}
	}

	stored := make(map[string][]string, len(result))
	for label, s := range result {
		stored[label] = s.Sorted()
	}
	c.cache[key] = stored
	return result
}

type labelItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type labelResponse struct {
	Items []struct {
		ID      string   `json:"id"`
		Intents []string `json:"intents"`
	} `json:"items"`
}

func (c *Classifier) labelsWithLLM(ctx context.Context, labels []string, pageContext string) (map[string]Set, error) {
	if c.llm == nil {
		return nil, fmt.Errorf("модель намерений не настроена")
	}

	limit := labels
	if len(limit) > maxLabels {
		limit = limit[:maxLabels]
	}
	payload := make([]labelItem, 0, len(limit))
	byID := make(map[string]string, len(limit))
	for i, text := range limit {
		id := fmt.Sprintf("l%d", i+1)
		payload = append(payload, labelItem{ID: id, Text: text})
		byID[id] = text
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	user := "Classify each UI label into zero or more intents.\n" +
		"Allowed intents:\n" +
		"- apply_entry: enter/start job application\n" +
		"- login_action: sign in/authenticate/account access\n" +
		"- progression_action: next/continue/review/submit/proceed steps\n" +
		"- upload_request: upload/attach file or resume\n" +
		"Rules:\n" +
		"1) Use semantic meaning, not literal keyword matching.\n" +
		"2) Support variants and other languages.\n" +
		"3) Be conservative; if uncertain, return empty intents for that label.\n" +
		"Page context (may help): " + clip(pageContext, labelContext) + "\n" +
		"Labels JSON:\n" + string(raw) + "\n" +
		`Return JSON: {"items":[{"id":"l1","intents":["apply_entry"]}]}`

	resp, err := c.llm.Complete(ctx, llm.Request{
		Role:        "intent_labels",
		System:      "You classify browser UI label intents for job application automation. Return strict JSON only.",
		User:        user,
		Model:       c.model,
		Temperature: llm.Temp(0),
		MaxTokens:   labelMaxTokens,
		JobID:       c.jobID,
	})
	if err != nil {
		return nil, err
	}

	var parsed labelResponse
	if err := llm.ParseJSON(resp.Text, &parsed); err != nil {
		return nil, err
	}
	if parsed.Items == nil {
		return nil, fmt.Errorf("в ответе нет items")
	}

	out := make(map[string]Set, len(byID))
	for _, text := range byID {
		out[text] = Set{}
	}
	for _, item := range parsed.Items {
		text, ok := byID[strings.TrimSpace(item.ID)]
		if !ok {
			continue
		}
		for _, name := range item.Intents {
			i := Intent(strings.TrimSpace(name))
			if labelIntents[i] {
				out[text][i] = true
			}
		}
	}
	return out, nil
}

// Text глобальные намерения страницы: только логин и загрузка файла.
func (c *Classifier) Text(ctx context.Context, text string) Set {
	snippet := clip(strings.TrimSpace(text), textLimit)
	if snippet == "" {
		return Set{}
	}

	sum := sha256.Sum256([]byte(snippet))
	key := "text::" + hex.EncodeToString(sum[:])
	if cached, ok := c.cache[key]; ok {
		return setOf(cached["__text__"])
	}

	intents, err := c.textWithLLM(ctx, snippet)
	if err != nil {
		c.log.Debug("классификатор текста недоступен, словарь", zap.Error(err))
	}
	if len(intents) == 0 {
		intents = TextFallback(snippet)
	}

	c.cache[key] = map[string][]string{"__text__": intents.Sorted()}
	return intents
}

func (c *Classifier) textWithLLM(ctx context.Context, snippet string) (Set, error) {
	if c.llm == nil {
		return nil, nil
	}
	resp, err := c.llm.Complete(ctx, llm.Request{
		Role:   "intent_text",
		System: "Classify page text intents for job application flow. Return strict JSON.",
		User: "Allowed intents: login_action, upload_request.\n" +
			"Use semantic meaning and multilingual understanding.\n" +
			"Text:\n" + snippet + "\n" +
			`Return JSON: {"intents":["login_action"]}`,
		Model:       c.model,
		Temperature: llm.Temp(0),
		MaxTokens:   textMaxTokens,
		JobID:       c.jobID,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Intents []string `json:"intents"`
	}
	if err := llm.ParseJSON(resp.Text, &parsed); err != nil {
		return nil, err
	}
	out := Set{}
	for _, name := range parsed.Intents {
		i := Intent(strings.TrimSpace(name))
		if textIntents[i] {
			out[i] = true
		}
	}
	return out, nil
}

// Snapshot намерения кнопок и ссылок снимка по их ref.
func (c *Classifier) Snapshot(ctx context.Context, snap snapshot.Snapshot, visibleText string) map[string]Set {
	refToLabel := make(map[string]string)
	var labels []string
	for _, item := range snap.Items {
		if item.Role != "button" && item.Role != "link" {
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		refToLabel[item.Ref] = name
		labels = append(labels, name)
	}
	if len(refToLabel) == 0 {
		return map[string]Set{}
	}

	byLabel := c.Labels(ctx, labels, clip(visibleText, snapshotText))
	out := make(map[string]Set, len(refToLabel))
	for ref, label := range refToLabel {
		if s, ok := byLabel[label]; ok {
			out[ref] = s
		} else {
			out[ref] = Set{}
		}
	}
	return out
}

// Fallback словарные намерения подписи.
func Fallback(label string) Set {
	text := strings.ToLower(strings.TrimSpace(label))
	out := Set{}
	if text == "" {
		return out
	}
	if containsAny(text, "apply", "application", "candidature") {
		out[ApplyEntry] = true
		out[ProgressionAction] = true
	}
	if containsAny(text, "next", "continue", "submit", "proceed", "review") {
		out[ProgressionAction] = true
	}
	if containsAny(text, "sign in", "log in", "login", "authenticate") {
		out[LoginAction] = true
	}
	if containsAny(text, "upload", "attach", "resume", "cv", "file") {
		out[UploadRequest] = true
	}
	return out
}

// TextFallback словарные намерения текста страницы.
func TextFallback(text string) Set {
	lower := strings.ToLower(text)
	out := Set{}
	if containsAny(lower, "upload", "attach", "resume", "cv") {
		out[UploadRequest] = true
	}
	if containsAny(lower, "sign in", "log in", "login") {
		out[LoginAction] = true
	}
	return out
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func unique(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
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
