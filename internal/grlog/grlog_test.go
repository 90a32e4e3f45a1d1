package grlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelForVerbosity(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, levelForVerbosity(0))
	assert.Equal(t, zapcore.DebugLevel, levelForVerbosity(1))
	assert.Equal(t, zapcore.DebugLevel-1, levelForVerbosity(2))
}

func TestInitAndNamed(t *testing.T) {
	require.NoError(t, Init(Options{Verbosity: 1}))
	l := Named("dispatch")
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	Sync()
}

func TestInitFileSink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(Options{FilePath: dir + "/groutd.log"}))
	Named("test").Info("hello")
	Sync()
}
