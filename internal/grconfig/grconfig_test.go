package grconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	os.Unsetenv(SockPathEnvVar)
	cfg, _, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSockPath, cfg.APISockPath)
	assert.Equal(t, 0, cfg.Verbosity)
	assert.False(t, cfg.TestMode)
}

func TestParseSocketFlagOverridesEnv(t *testing.T) {
	t.Setenv(SockPathEnvVar, "/run/env.sock")
	cfg, _, err := Parse([]string{"-s", "/run/flag.sock"})
	require.NoError(t, err)
	assert.Equal(t, "/run/flag.sock", cfg.APISockPath)
}

func TestParseSocketEnvFallback(t *testing.T) {
	t.Setenv(SockPathEnvVar, "/run/env.sock")
	cfg, _, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "/run/env.sock", cfg.APISockPath)
}

func TestParseVerbosityCounts(t *testing.T) {
	cfg, _, err := Parse([]string{"-vvv"})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Verbosity)
}

func TestParseHelp(t *testing.T) {
	_, _, err := Parse([]string{"-h"})
	assert.ErrorIs(t, err, ErrHelpRequested)
}

func TestParseVersion(t *testing.T) {
	_, _, err := Parse([]string{"--version"})
	assert.ErrorIs(t, err, ErrVersionRequested)
}

func TestParseRejectsPositionalArgs(t *testing.T) {
	_, _, err := Parse([]string{"bogus"})
	assert.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	cfg, _, err := Parse([]string{"-t", "-p", "-x"})
	require.NoError(t, err)
	assert.True(t, cfg.TestMode)
	assert.True(t, cfg.PollMode)
	assert.True(t, cfg.TracePkts)
}
