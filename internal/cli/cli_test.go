package cli

import (
	"bytes"
	"context"
	"testing"

	"autojob/internal/cli/ui"
	"autojob/internal/logger"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func testCLI(t *testing.T) (*CLI, *bytes.Buffer) {
	var out bytes.Buffer
	c := &CLI{log: &logger.Zap{Logger: zaptest.NewLogger(t)}, out: &out}
	c.wire(Deps{})
	return c, &out
}

func TestHandleCommand(t *testing.T) {
	c, out := testCLI(t)
	ctx := context.Background()

	assert.True(t, c.handleCommand(ctx, "unknown"))
	assert.Contains(t, out.String(), "Доступные команды")

	out.Reset()
	assert.True(t, c.handleCommand(ctx, "start"))
	assert.Contains(t, out.String(), "Планировщик не инициализирован")

	out.Reset()
	assert.True(t, c.handleCommand(ctx, "model   gpt-4o"))
	assert.Contains(t, out.String(), "LLM клиент не инициализирован")

	out.Reset()
	assert.True(t, c.handleCommand(ctx, "status"))
	assert.Contains(t, out.String(), "Очередь остановлена")

	out.Reset()
	assert.False(t, c.handleCommand(ctx, "exit"))
	assert.Contains(t, out.String(), "До свидания")
}

func TestFormatStatus(t *testing.T) {
	for status, want := range map[string]string{
		"applied":         "отклик отправлен",
		"manual_required": "нужен человек",
		"failed":          "ошибка",
		"in_progress":     "в работе",
		"paused":          "на паузе",
		"pending":         "ожидает",
		"mystery":         "mystery",
	} {
		_, _, text := ui.FormatStatus(status)
		assert.Equal(t, want, text, status)
	}
	assert.Equal(t, "абв…", ui.Truncate("абвгд", 3))
	assert.Equal(t, "abc", ui.Truncate("abc", 3))
}
