package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/web/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("非法级别回退为 info", func(t *testing.T) {
		log, err := NewLogger(Config{Level: "verbose"})

		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(0))   // info
		assert.False(t, log.Core().Enabled(-1)) // debug
	})

	t.Run("写入日志文件", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "logs", "web.log")
		log, err := NewLogger(FromConfig(config.LogConfig{Level: "debug", File: file}))

		require.NoError(t, err)
		log.Info("hello")
		_ = log.Sync()
		assert.FileExists(t, file)
	})
}

func TestNamed(t *testing.T) {
	assert.NotNil(t, Named(nil, "session"))
}
