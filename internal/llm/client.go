package llm

import (
	"context"
	"encoding/base64"
	"math"
	"strings"
	"sync"
	"time"

	"autojob/internal/logger"
	"autojob/internal/sanitizer"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultTemperature = float32(0.2)
	defaultMaxTokens   = 1000
	defaultTopP        = float32(0.8)
	imageTokenEstimate = 85
)

// Options параметры клиента.
type Options struct {
	APIKey            string
	BaseURL           string
	Models            []string
	Temperature       float32
	MaxTokens         int
	RequestsPerMinute int
	TokensPerHour     int
	// FallbackDelay пауза перед следующей моделью после 429.
	FallbackDelay time.Duration
}

type Client struct {
	client      *openai.Client
	logger      Logger
	sanitizer   *sanitizer.DataSanitizer
	rateLimiter *RateLimiter
	log         *logger.Zap

	mu            sync.RWMutex
	models        []string
	temperature   float32
	maxTokens     int
	fallbackDelay time.Duration
}

func NewClient(opts Options, reqLogger Logger, log *logger.Zap) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		client:        openai.NewClientWithConfig(cfg),
		logger:        reqLogger,
		sanitizer:     sanitizer.New(),
		rateLimiter:   NewRateLimiter(opts.RequestsPerMinute, opts.TokensPerHour),
		log:           log,
		models:        append([]string(nil), opts.Models...),
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxTokens,
		fallbackDelay: opts.FallbackDelay,
	}
	if c.temperature == 0 {
		c.temperature = defaultTemperature
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c
}

// Models текущая цепочка моделей.
func (c *Client) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.models...)
}

// SetPreferredModel ставит модель первой в цепочке.
func (c *Client) SetPreferredModel(model string) {
	model = strings.TrimSpace(model)
	if model == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	chain := []string{model}
	for _, m := range c.models {
		if m != model {
			chain = append(chain, m)
		}
	}
	c.models = chain
}

// Complete выполняет вызов, перебирая модели при 429 и несовместимости.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	chain := c.chainFor(req)
	if len(chain) == 0 {
		return Response{}, &CallError{Code: CodeNoResult, Summary: "цепочка моделей пуста"}
	}

	start := req.StartModel
	if start < 0 || start >= len(chain) {
		start = 0
	}

	var lastErr error
	var lastKind errorKind
	for i := start; i < len(chain); i++ {
		model := chain[i]

		resp, err := c.createChatCompletionWithRateLimit(ctx, c.buildRequest(model, req))
		if err == nil {
			if len(resp.Choices) == 0 {
				return Response{}, &CallError{Code: CodeNoResult, Summary: "пустой ответ модели", Model: model, ModelIndex: i}
			}
			out := Response{
				Text:       resp.Choices[0].Message.Content,
				Model:      model,
				Tokens:     resp.Usage.TotalTokens,
				ModelIndex: i,
			}
			c.record(ctx, req, out)
			return out, nil
		}

		if ctx.Err() != nil {
			return Response{}, &CallError{Code: CodeCallFailed, Summary: summarize(err), Model: model, ModelIndex: i, Err: ctx.Err()}
		}

		lastErr, lastKind = err, classify(err)
		switch lastKind {
		case kindRateLimit:
			c.log.Warn("лимит модели, переключаемся", zap.String("model", model), zap.String("role", req.Role))
			if i+1 < len(chain) {
				if err := sleep(ctx, c.fallbackDelay); err != nil {
					return Response{}, &CallError{Code: CodeCallFailed, Summary: "контекст отменён", Model: model, ModelIndex: i, Err: err}
				}
			}
		case kindUnsupported:
			c.log.Warn("модель не поддерживает запрос, переключаемся", zap.String("model", model), zap.String("role", req.Role), zap.Error(err))
		default:
			return Response{}, &CallError{Code: CodeCallFailed, Summary: summarize(err), Model: model, ModelIndex: i, Err: err}
		}
	}

	code := CodeRateLimitExhausted
	if lastKind == kindUnsupported {
		code = CodeModelUnsupportedExhausted
	}
	return Response{}, &CallError{Code: code, Summary: summarize(lastErr), Model: chain[len(chain)-1], ModelIndex: 0, Err: lastErr}
}

func (c *Client) chainFor(req Request) []string {
	if req.Model != "" {
		return []string{req.Model}
	}
	return c.Models()
}

func (c *Client) buildRequest(model string, req Request) openai.ChatCompletionRequest {
	c.mu.RLock()
	temperature, maxTokens := c.temperature, c.maxTokens
	c.mu.RUnlock()

	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	// нулевая температура иначе выпадает из запроса по omitempty
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User}
	if len(req.Image) > 0 {
		user = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.User},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image),
					Detail: openai.ImageURLDetailLow,
				}},
			},
		}
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		TopP:        defaultTopP,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			user,
		},
	}
	if req.JSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

// createChatCompletionWithRateLimit выполняет запрос с проверкой rate limit
func (c *Client) createChatCompletionWithRateLimit(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	// грубая оценка: ~4 символа на токен
	estimated := req.MaxTokens
	for _, msg := range req.Messages {
		estimated += len(msg.Content) / 4
		for _, part := range msg.MultiContent {
			estimated += len(part.Text) / 4
			if part.ImageURL != nil {
				estimated += imageTokenEstimate
			}
		}
	}

	if err := c.rateLimiter.Wait(ctx, estimated); err != nil {
		return openai.ChatCompletionResponse{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return resp, err
	}
	c.rateLimiter.Consume(resp.Usage.TotalTokens - estimated)
	return resp, nil
}

func (c *Client) record(ctx context.Context, req Request, resp Response) {
	if c.logger == nil {
		return
	}
	prompt := c.sanitizer.Sanitize(req.System + "\n\n" + req.User)
	answer := c.sanitizer.Sanitize(resp.Text)
	if err := c.logger.LogLLMRequest(ctx, req.JobID, req.StepID, req.Role, prompt, answer, resp.Model, resp.Tokens); err != nil {
		c.log.Warn("не удалось записать llm лог", zap.Error(err))
	}
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
