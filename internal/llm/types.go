// Package llm вызывает chat completion API с перебором моделей, лимитами и журналом запросов.
package llm

import "context"

// Logger определяет интерфейс для логирования LLM запросов.
type Logger interface {
	// LogLLMRequest сохраняет информацию о запросе к LLM в базу данных.
	LogLLMRequest(ctx context.Context, jobID *uint, stepID *uint, role, promptText, responseText, model string, tokensUsed int) error
}

// Completer один вызов модели. Его реализуют Client и фейки в тестах.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request параметры одного вызова.
type Request struct {
	Role   string // planner, intent_labels, gate_confirm и т.п., идёт в llm_logs
	System string
	User   string
	// Image PNG скриншот для vision запроса.
	Image []byte

	Temperature *float32
	MaxTokens   int
	// Model фиксирует модель и отключает перебор цепочки.
	Model string
	// StartModel индекс в цепочке, с которого начинается перебор.
	StartModel int
	JSON       bool

	JobID  *uint
	StepID *uint
}

// Response ответ модели.
type Response struct {
	Text   string
	Model  string
	Tokens int
	// ModelIndex индекс ответившей модели, сессия начинает с него следующий вызов.
	ModelIndex int
}

// Temp удобный указатель на температуру.
func Temp(v float32) *float32 { return &v }
