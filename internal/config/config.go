// Package config loads the settings shared by the example programs from a
// YAML file and turns them into link and session options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/joshuafuller/picolink/endpoint"
	"github.com/joshuafuller/picolink/internal/transport"
	"github.com/joshuafuller/picolink/link"
	"github.com/joshuafuller/picolink/session"
)

// Link modes.
const (
	ModeListen = "listen"
	ModeOpen   = "open"
)

// Duration is a time.Duration that reads from YAML either as a Go duration
// string ("250ms") or as a bare integer of milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}

	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

// ParseDuration accepts a Go duration string or a bare integer of
// milliseconds, the same forms a locator timeout key uses.
func ParseDuration(s string) (Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return Duration(d), nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the settings of one example program.
type Config struct {
	Locator      string   `yaml:"locator"`
	Mode         string   `yaml:"mode"`
	Timeout      Duration `yaml:"timeout"`
	KeepAlive    Duration `yaml:"keep_alive"`
	JoinInterval Duration `yaml:"join_interval"`
	LogLevel     string   `yaml:"log_level"`
	LogFormat    string   `yaml:"log_format"`
	MetricsAddr  string   `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Locator:      "udp/224.0.0.224:7447",
		Mode:         ModeListen,
		Timeout:      Duration(transport.DefaultSocketTimeout),
		KeepAlive:    Duration(session.DefaultKeepAliveInterval),
		JoinInterval: Duration(session.DefaultJoinInterval),
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads the configuration from the given YAML file path on top of the
// defaults. An empty path or a missing file yields the defaults. Unknown keys
// are rejected.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every field is usable.
func (c *Config) Validate() error {
	var errs []error

	if _, err := endpoint.Parse(c.Locator); err != nil {
		errs = append(errs, fmt.Errorf("locator: %w", err))
	}
	if c.Mode != ModeListen && c.Mode != ModeOpen {
		errs = append(errs, fmt.Errorf("mode: want %q or %q, got %q", ModeListen, ModeOpen, c.Mode))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout: negative %v", c.Timeout.Std()))
	}
	if c.KeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("keep_alive: must be positive, got %v", c.KeepAlive.Std()))
	}
	if c.JoinInterval <= 0 {
		errs = append(errs, fmt.Errorf("join_interval: must be positive, got %v", c.JoinInterval.Std()))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: want text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Logger builds a logger at the configured level and format, writing to out.
func (c *Config) Logger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// LinkOptions threads the configured timeout and the given logger into a
// link. A locator timeout key still takes precedence over it.
func (c *Config) LinkOptions(log logrus.FieldLogger) []link.Option {
	return []link.Option{
		link.WithLogger(log),
		link.WithDefaultTimeout(c.Timeout.Std()),
	}
}

// SessionOptions returns the configured session intervals and logger.
func (c *Config) SessionOptions(log logrus.FieldLogger) []session.Option {
	return []session.Option{
		session.WithLogger(log),
		session.WithKeepAlive(c.KeepAlive.Std()),
		session.WithJoinInterval(c.JoinInterval.Std()),
	}
}
