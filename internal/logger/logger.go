// Package logger собирает zap логгер приложения.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Zap обёртка над *zap.Logger, которую получают все пакеты.
type Zap struct {
	*zap.Logger
}

// FileOptions параметры ротации файла логов.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New создаёт консольный логгер: цветной в dev, JSON в prod.
func New(env, level string) (*Zap, error) {
	return NewWithFile(env, level, FileOptions{})
}

// NewWithFile добавляет к консольному выводу JSON файл с ротацией через lumberjack.
func NewWithFile(env, level string, file FileOptions) (*Zap, error) {
	lvl := zap.NewAtomicLevel()
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("неизвестный уровень логирования %q: %w", level, err)
		}
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(env), zapcore.Lock(os.Stdout), lvl),
	}

	if file.Path != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), writer, lvl))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if env != "prod" {
		opts = append(opts, zap.AddCaller())
	}

	return &Zap{Logger: zap.New(zapcore.NewTee(cores...), opts...)}, nil
}

// Wrap оборачивает готовый логгер, например zaptest.
func Wrap(l *zap.Logger) *Zap {
	return &Zap{Logger: l}
}

// Nop логгер без вывода.
func Nop() *Zap {
	return &Zap{Logger: zap.NewNop()}
}

func consoleEncoder(env string) zapcore.Encoder {
	if env == "prod" {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(cfg)
}
