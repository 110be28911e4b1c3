package database

import (
	"context"
	"sync"
	"time"

	"autojob/internal/logger"
	"autojob/internal/sanitizer"

	"go.uber.org/zap"
)

type logWriter interface {
	AppendLog(ctx context.Context, l *JobLog) error
}

// LogSink пишет журнал вакансии в фоне. Log никогда не блокирует вызывающего:
// при переполнении буфера запись отбрасывается.
type LogSink struct {
	w         logWriter
	log       *logger.Zap
	sanitizer *sanitizer.DataSanitizer
	ch        chan JobLog
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewLogSink(w logWriter, log *logger.Zap, buffer int) *LogSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &LogSink{
		w:         w,
		log:       log,
		sanitizer: sanitizer.New(),
		ch:        make(chan JobLog, buffer),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *LogSink) Log(jobID uint, level, message string) {
	if jobID == 0 || message == "" {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	entry := JobLog{JobID: jobID, Level: level, Message: s.sanitizer.Sanitize(message)}
	select {
	case s.ch <- entry:
	default:
		s.log.Warn("Буфер журнала переполнен, запись отброшена", zap.Uint("job_id", jobID))
	}
}

// Close дожидается записи буфера.
func (s *LogSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *LogSink) run() {
	defer s.wg.Done()
	for entry := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.w.AppendLog(ctx, &entry); err != nil {
			s.log.Warn("Ошибка записи журнала вакансии", zap.Uint("job_id", entry.JobID), zap.Error(err))
		}
		cancel()
	}
}
