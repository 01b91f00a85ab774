package observability

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":       zapcore.InfoLevel,
		"debug":  zapcore.DebugLevel,
		" WARN ": zapcore.WarnLevel,
		"chatty": zapcore.InfoLevel,
		"error":  zapcore.ErrorLevel,
	}
	for in, want := range cases {
		logger, err := NewLogger(in)
		require.NoError(t, err)
		require.True(t, logger.Core().Enabled(want), "level %q", in)
		if want > zapcore.DebugLevel {
			require.False(t, logger.Core().Enabled(want-1), "level %q", in)
		}
	}
}
