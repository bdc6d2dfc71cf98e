package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/candlekeep/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("stdout json", func(t *testing.T) {
		m, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		defer m.Close()

		assert.NotNil(t, m.Logger())
		m.Component("test").Info("hello")
	})

	t.Run("file output writes and creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "candlekeep.log")
		m, err := New(config.LoggingConfig{
			Level:     "debug",
			Format:    "text",
			Output:    "file",
			FilePath:  path,
			MaxSizeMB: 1,
		})
		require.NoError(t, err)

		m.Logger().Info("to file", "key", "value")
		require.NoError(t, m.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
		assert.Contains(t, string(data), "INFO")
	})

	t.Run("file output requires a path", func(t *testing.T) {
		_, err := New(config.LoggingConfig{Output: "file"})
		assert.Error(t, err)
	})
}

func TestRunIDs(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)

	m, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	defer m.Close()
	WithRun(m.Logger(), a).Info("tagged")
}
