package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.APIListenAddr)
	assert.Equal(t, ":6969", cfg.WSListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.StatusInterval)
	assert.Equal(t, 30*time.Second, cfg.LivenessInterval)
	assert.Empty(t, cfg.TerminationURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RELAY_LOG_LEVEL", "warn")
	t.Setenv("RELAY_WS_LISTEN_ADDR", ":7777")
	t.Setenv("RELAY_LIVENESS_INTERVAL", "10s")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":7777", cfg.WSListenAddr)
	assert.Equal(t, 10*time.Second, cfg.LivenessInterval)
}

func TestLoad_FlagOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "debug", "")
	fs.Duration("status-interval", 0, "")
	require.NoError(t, fs.Parse([]string{"--log-level=error", "--status-interval=5s"}))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.StatusInterval)
}
