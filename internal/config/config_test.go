package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "picolink.yaml")
	data := `
locator: "udp/[ff02::1]:7447#iface=lo"
mode: open
timeout: 250ms
keep_alive: 500
join_interval: 2s
log_level: debug
log_format: json
metrics_addr: ":9102"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "udp/[ff02::1]:7447#iface=lo", cfg.Locator)
	assert.Equal(t, ModeOpen, cfg.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.KeepAlive.Std(), "bare integers are milliseconds")
	assert.Equal(t, 2*time.Second, cfg.JoinInterval.Std())
	assert.Equal(t, ":9102", cfg.MetricsAddr)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("mode: open\n"))
	require.NoError(t, err)

	want := Default()
	want.Mode = ModeOpen
	assert.Equal(t, want, cfg)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "locatr: udp/224.0.0.224:7447\n"},
		{"bad duration", "timeout: soon\n"},
		{"duration mapping", "timeout: {ms: 5}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad locator", func(c *Config) { c.Locator = "udp/224.0.0.224" }, "locator"},
		{"bad mode", func(c *Config) { c.Mode = "broadcast" }, "mode"},
		{"negative timeout", func(c *Config) { c.Timeout = Duration(-time.Second) }, "timeout"},
		{"zero keep-alive", func(c *Config) { c.KeepAlive = 0 }, "keep_alive"},
		{"zero join", func(c *Config) { c.JoinInterval = 0 }, "join_interval"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.HasPrefix(err.Error(), tt.field+":"), err.Error())
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Mode = ""
	cfg.LogLevel = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode:")
	assert.Contains(t, err.Error(), "log_level:")
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	log, err := cfg.Logger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestOptions(t *testing.T) {
	cfg := Default()
	log := logrus.New()

	assert.Len(t, cfg.LinkOptions(log), 2)
	assert.Len(t, cfg.SessionOptions(log), 3)
}

func TestDuration_MarshalYAML(t *testing.T) {
	v, err := Duration(1500 * time.Millisecond).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", v)
}
