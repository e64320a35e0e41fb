package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, Level(0))
	assert.Equal(t, zapcore.DebugLevel, Level(1))
	assert.Equal(t, zapcore.DebugLevel, Level(3))
}

func TestNew(t *testing.T) {
	for _, json := range []bool{false, true} {
		logger, err := New(1, json)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	logger, err := New(0, false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
