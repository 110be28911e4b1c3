package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"autojob/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAggregateFailures(t *testing.T) {
	jobs := []Job{
		{Status: StatusFailed, FailureClass: "validation_error", FailureCode: "missing_required_field"},
		{Status: StatusFailed, FailureClass: "validation_error", FailureCode: "missing_required_field"},
		{Status: StatusManualRequired, FailureClass: "manual_required", FailureCode: "captcha"},
		{Status: StatusFailed},
		{Status: StatusApplied, FailureClass: "ignored"},
	}

	stats := AggregateFailures(jobs, 2)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, map[string]int{"validation_error": 2, "manual_required": 1, "unknown": 1}, stats.ByClass)
	require.Len(t, stats.TopCode, 2)
	assert.Equal(t, CodeCount{Key: "validation_error:missing_required_field", Count: 2}, stats.TopCode[0])
	assert.Equal(t, "manual_required:captcha", stats.TopCode[1].Key)
}

func TestAggregateFailures_DefaultTop(t *testing.T) {
	var jobs []Job
	for i := 0; i < 12; i++ {
		jobs = append(jobs, Job{Status: StatusFailed, FailureClass: "c", FailureCode: string(rune('a' + i))})
	}
	assert.Len(t, AggregateFailures(jobs, 0).TopCode, 8)
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusManualRequired))
	assert.False(t, ValidStatus("done"))
}

type memoryWriter struct {
	mu   sync.Mutex
	logs []JobLog
	err  error
}

func (w *memoryWriter) AppendLog(_ context.Context, l *JobLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.logs = append(w.logs, *l)
	return nil
}

func TestLogSink_WritesSanitizedEntries(t *testing.T) {
	w := &memoryWriter{}
	sink := NewLogSink(w, logger.Wrap(zaptest.NewLogger(t)), 8)

	sink.Log(7, "info", "filled email jane.doe@example.com")
	sink.Log(0, "info", "no job id")
	sink.Log(7, "warn", "")
	sink.Close()

	require.Len(t, w.logs, 1)
	assert.Equal(t, uint(7), w.logs[0].JobID)
	assert.NotContains(t, w.logs[0].Message, "jane.doe@example.com")
}

func TestLogSink_WriterErrorsDoNotStopSink(t *testing.T) {
	w := &memoryWriter{err: errors.New("db down")}
	sink := NewLogSink(w, logger.Wrap(zaptest.NewLogger(t)), 4)
	sink.Log(1, "info", "first")
	sink.Log(1, "info", "second")
	sink.Close()
	sink.Close()

	sink.Log(1, "info", "after close")
	assert.Empty(t, w.logs)
}
