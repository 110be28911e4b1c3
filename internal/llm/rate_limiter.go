package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает запросы в минуту и токены в час.
type RateLimiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewRateLimiter создает новый rate limiter
func NewRateLimiter(requestsPerMinute, tokensPerHour int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if tokensPerHour <= 0 {
		tokensPerHour = 90000
	}
	return &RateLimiter{
		requests: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute),
		tokens:   rate.NewLimiter(rate.Limit(float64(tokensPerHour)/3600), tokensPerHour),
	}
}

// Wait блокирует до появления квоты на запрос и оценку токенов.
func (rl *RateLimiter) Wait(ctx context.Context, estimatedTokens int) error {
	if err := rl.requests.Wait(ctx); err != nil {
		return fmt.Errorf("ожидание лимита запросов: %w", err)
	}
	if err := rl.tokens.WaitN(ctx, rl.clamp(estimatedTokens)); err != nil {
		return fmt.Errorf("ожидание лимита токенов: %w", err)
	}
	return nil
}

// Consume списывает токены сверх оценки после ответа.
func (rl *RateLimiter) Consume(extra int) {
	if extra <= 0 {
		return
	}
	rl.tokens.ReserveN(time.Now(), rl.clamp(extra))
}

// Available остаток квоты запросов и токенов.
func (rl *RateLimiter) Available() (requests, tokens float64) {
	return rl.requests.Tokens(), rl.tokens.Tokens()
}

func (rl *RateLimiter) clamp(n int) int {
	if n < 1 {
		return 1
	}
	if b := rl.tokens.Burst(); n > b {
		return b
	}
	return n
}
