package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New("dev", "loud")
	assert.Error(t, err)
}

func TestNewWithFile_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := NewWithFile("prod", "info", FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("запуск")
	log.Debug("скрыто")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"запуск"`)
	assert.NotContains(t, string(data), "скрыто")
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Info("ничего") })
}
