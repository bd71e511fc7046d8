package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	cli "github.com/jawher/mow.cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runFlags parses args through a throwaway app and returns the loaded config.
func runFlags(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	app := cli.App("picolink-test", "")
	flags := Bind(app)

	var (
		cfg     *Config
		loadErr error
	)
	app.Action = func() {
		cfg, loadErr = flags.Load()
	}

	require.NoError(t, app.Run(append([]string{"picolink-test"}, args...)))
	return cfg, loadErr
}

func TestFlags_NoneGivesDefaults(t *testing.T) {
	cfg, err := runFlags(t)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestFlags_OverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "picolink.yaml")
	data := "locator: udp/224.0.0.225:7000\nkeep_alive: 2s\nlog_level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := runFlags(t,
		"--config", path,
		"--log-level", "debug",
		"--timeout", "40",
		"--metrics-addr", "127.0.0.1:9102",
	)
	require.NoError(t, err)

	assert.Equal(t, "udp/224.0.0.225:7000", cfg.Locator, "file value kept")
	assert.Equal(t, 2*time.Second, cfg.KeepAlive.Std(), "file value kept")
	assert.Equal(t, "debug", cfg.LogLevel, "flag wins over file")
	assert.Equal(t, 40*time.Millisecond, cfg.Timeout.Std())
	assert.Equal(t, "127.0.0.1:9102", cfg.MetricsAddr)
}

func TestFlags_Environment(t *testing.T) {
	t.Setenv("PICOLINK_LOCATOR", "udp/[ff02::1]:7447")
	t.Setenv("PICOLINK_JOIN_INTERVAL", "5s")

	cfg, err := runFlags(t)
	require.NoError(t, err)
	assert.Equal(t, "udp/[ff02::1]:7447", cfg.Locator)
	assert.Equal(t, 5*time.Second, cfg.JoinInterval.Std())
}

func TestFlags_Invalid(t *testing.T) {
	_, err := runFlags(t, "--keep-alive", "often")
	assert.ErrorContains(t, err, "--keep-alive")

	_, err = runFlags(t, "--locator", "udp/nowhere")
	assert.ErrorContains(t, err, "locator:")
}
