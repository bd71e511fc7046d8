package config

import (
	"fmt"

	cli "github.com/jawher/mow.cli"
)

// Flags are the command line options shared by the example programs. Each
// can also be set from the environment. A non-empty value overrides the
// config file.
type Flags struct {
	path         *string
	locator      *string
	timeout      *string
	keepAlive    *string
	joinInterval *string
	logLevel     *string
	logFormat    *string
	metricsAddr  *string
}

// Bind declares the shared options on app.
func Bind(app *cli.Cli) *Flags {
	return &Flags{
		path: app.String(cli.StringOpt{
			Name:   "c config",
			Desc:   "YAML config file",
			EnvVar: "PICOLINK_CONFIG",
		}),
		locator: app.String(cli.StringOpt{
			Name:   "l locator",
			Desc:   "link locator, e.g. udp/224.0.0.224:7447#iface=eth0",
			EnvVar: "PICOLINK_LOCATOR",
		}),
		timeout: app.String(cli.StringOpt{
			Name:   "timeout",
			Desc:   "socket read timeout when the locator has none (250ms, or bare milliseconds)",
			EnvVar: "PICOLINK_TIMEOUT",
		}),
		keepAlive: app.String(cli.StringOpt{
			Name:   "keep-alive",
			Desc:   "keep-alive interval",
			EnvVar: "PICOLINK_KEEP_ALIVE",
		}),
		joinInterval: app.String(cli.StringOpt{
			Name:   "join-interval",
			Desc:   "join interval",
			EnvVar: "PICOLINK_JOIN_INTERVAL",
		}),
		logLevel: app.String(cli.StringOpt{
			Name:   "log-level",
			Desc:   "log level",
			EnvVar: "PICOLINK_LOG_LEVEL",
		}),
		logFormat: app.String(cli.StringOpt{
			Name:   "log-format",
			Desc:   "log format, text or json",
			EnvVar: "PICOLINK_LOG_FORMAT",
		}),
		metricsAddr: app.String(cli.StringOpt{
			Name:   "metrics-addr",
			Desc:   "address to serve /metrics on, empty to disable",
			EnvVar: "PICOLINK_METRICS_ADDR",
		}),
	}
}

// Load reads the config file named by the flags, applies the flag overrides
// and validates the result. Call it from the app action.
func (f *Flags) Load() (*Config, error) {
	cfg, err := Load(*f.path)
	if err != nil {
		return nil, err
	}

	if err := f.apply(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *Flags) apply(cfg *Config) error {
	setString := func(dst *string, v *string) {
		if *v != "" {
			*dst = *v
		}
	}
	setDuration := func(name string, dst *Duration, v *string) error {
		if *v == "" {
			return nil
		}
		d, err := ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		*dst = d
		return nil
	}

	setString(&cfg.Locator, f.locator)
	setString(&cfg.LogLevel, f.logLevel)
	setString(&cfg.LogFormat, f.logFormat)
	setString(&cfg.MetricsAddr, f.metricsAddr)

	if err := setDuration("timeout", &cfg.Timeout, f.timeout); err != nil {
		return err
	}
	if err := setDuration("keep-alive", &cfg.KeepAlive, f.keepAlive); err != nil {
		return err
	}
	return setDuration("join-interval", &cfg.JoinInterval, f.joinInterval)
}
