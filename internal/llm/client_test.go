package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"autojob/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedLog struct {
	role, prompt, response, model string
	tokens                        int
}

type memoryLogger struct {
	mu   sync.Mutex
	logs []recordedLog
}

func (m *memoryLogger) LogLLMRequest(_ context.Context, _ *uint, _ *uint, role, prompt, response, model string, tokens int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, recordedLog{role, prompt, response, model, tokens})
	return nil
}

// fakeAPI отвечает по имени модели: статус и текст ошибки либо содержимое ответа.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	bodies []map[string]any
	reply  func(model string) (int, string)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	model, _ := body["model"].(string)

	f.mu.Lock()
	f.calls = append(f.calls, model)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	status, text := f.reply(model)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status != http.StatusOK {
		fmt.Fprintf(w, `{"error":{"message":%q,"type":"invalid_request_error"}}`, text)
		return
	}
	content, _ := json.Marshal(text)
	fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":%q,
		"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`, model, content)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) Body(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[i]
}

func newTestClient(t *testing.T, api *fakeAPI, models []string, reqLogger Logger) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		APIKey:            "test",
		BaseURL:           srv.URL + "/v1",
		Models:            models,
		RequestsPerMinute: 6000,
		TokensPerHour:     1_000_000,
	}, reqLogger, logger.Wrap(zaptest.NewLogger(t)))
}

func TestComplete_RateLimitFallsThroughToNextModel(t *testing.T) {
	api := &fakeAPI{reply: func(model string) (int, string) {
		if model == "first" {
			return http.StatusTooManyRequests, "Rate limit reached"
		}
		return http.StatusOK, `{"ok":true}`
	}}
	logs := &memoryLogger{}
	c := newTestClient(t, api, []string{"first", "second"}, logs)

	resp, err := c.Complete(context.Background(), Request{Role: "planner", System: "sys", User: "email jane@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "second", resp.Model)
	assert.Equal(t, 1, resp.ModelIndex)
	assert.Equal(t, 8, resp.Tokens)
	assert.Equal(t, []string{"first", "second"}, api.Calls())

	require.Len(t, logs.logs, 1)
	assert.Equal(t, "planner", logs.logs[0].role)
	assert.NotContains(t, logs.logs[0].prompt, "jane@example.com")
}

func TestComplete_StartsFromStickyIndex(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) { return http.StatusOK, "{}" }}
	c := newTestClient(t, api, []string{"a", "b", "c"}, nil)

	resp, err := c.Complete(context.Background(), Request{StartModel: 2})
	require.NoError(t, err)
	assert.Equal(t, "c", resp.Model)

	resp, err = c.Complete(context.Background(), Request{StartModel: 7})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Model, "индекс вне цепочки сбрасывается")
}

func TestComplete_RateLimitExhausted(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) { return http.StatusTooManyRequests, "slow down" }}
	c := newTestClient(t, api, []string{"a", "b"}, nil)

	_, err := c.Complete(context.Background(), Request{})
	code, ok := IsCallError(err)
	require.True(t, ok)
	assert.Equal(t, CodeRateLimitExhausted, code)
	assert.Len(t, api.Calls(), 2)
}

func TestComplete_UnsupportedModelExhausted(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) {
		return http.StatusBadRequest, "This model does not support image_url content"
	}}
	c := newTestClient(t, api, []string{"a", "b"}, nil)

	_, err := c.Complete(context.Background(), Request{Image: []byte("png")})
	code, ok := IsCallError(err)
	require.True(t, ok)
	assert.Equal(t, CodeModelUnsupportedExhausted, code)
	assert.Len(t, api.Calls(), 2)
}

func TestComplete_OtherErrorStopsImmediately(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) { return http.StatusInternalServerError, "boom" }}
	c := newTestClient(t, api, []string{"a", "b"}, nil)

	_, err := c.Complete(context.Background(), Request{})
	code, ok := IsCallError(err)
	require.True(t, ok)
	assert.Equal(t, CodeCallFailed, code)
	assert.Equal(t, []string{"a"}, api.Calls())
}

func TestComplete_FixedModelAndZeroTemperature(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) { return http.StatusOK, "{}" }}
	c := newTestClient(t, api, []string{"a"}, nil)

	_, err := c.Complete(context.Background(), Request{Model: "intent", Temperature: Temp(0), MaxTokens: 160, JSON: true})
	require.NoError(t, err)

	require.Len(t, api.Calls(), 1)
	body := api.Body(0)
	assert.Equal(t, "intent", body["model"])
	assert.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 1e-6)
	assert.EqualValues(t, 160, body["max_tokens"])
	assert.NotNil(t, body["response_format"])
}

func TestComplete_VisionAttachesImage(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) { return http.StatusOK, "{}" }}
	c := newTestClient(t, api, []string{"a"}, nil)

	_, err := c.Complete(context.Background(), Request{User: "look", Image: []byte{0x89, 'P', 'N', 'G'}})
	require.NoError(t, err)

	raw, _ := json.Marshal(api.Body(0)["messages"])
	assert.Contains(t, string(raw), "data:image/png;base64,")
	assert.Contains(t, string(raw), `"detail":"low"`)
}

func TestSetPreferredModel(t *testing.T) {
	c := NewClient(Options{Models: []string{"a", "b", "c"}}, nil, nil)
	c.SetPreferredModel("b")
	assert.Equal(t, []string{"b", "a", "c"}, c.Models())
	c.SetPreferredModel(" ")
	assert.Equal(t, []string{"b", "a", "c"}, c.Models())
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"plain", `{"status":"continue"}`, true},
		{"json fence", "Here:\n```json\n{\"status\":\"done\"}\n```", true},
		{"bare fence", "```\n{\"status\":\"done\"}\n```", true},
		{"embedded", `Sure! {"status":"stuck"} hope it helps`, true},
		{"no object", "I could not decide", false},
		{"empty", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := ParseJSON(tt.raw, &out)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, out["status"])
		})
	}
}

func TestRateLimiter_ClampsToBurst(t *testing.T) {
	rl := NewRateLimiter(60, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, rl.Wait(ctx, 10_000))
	_, tokens := rl.Available()
	assert.Less(t, tokens, 1.0)
	assert.Equal(t, 1, rl.clamp(0))
}
