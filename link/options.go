package link

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joshuafuller/picolink/internal/transport"
)

// Settings carries the construction-time options to a transport factory.
type Settings struct {
	// Logger receives lifecycle and socket events.
	Logger logrus.FieldLogger
	// Registerer receives link metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// DefaultTimeout bounds reads when the locator has no timeout key.
	DefaultTimeout time.Duration
}

func defaultSettings() Settings {
	return Settings{
		Logger:         logrus.StandardLogger(),
		DefaultTimeout: transport.DefaultSocketTimeout,
	}
}

// Option is a functional option for configuring a Link.
//
// Example:
//
//	l, err := link.New("udp/224.0.0.224:7447",
//	    link.WithLogger(log.WithField("peer", "sensor-1")),
//	    link.WithDefaultTimeout(250*time.Millisecond),
//	)
type Option func(*Settings) error

// WithLogger sets the logger used by the link and its transport.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Settings) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}
		s.Logger = l
		return nil
	}
}

// WithMetrics registers datagram and error counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Settings) error {
		s.Registerer = reg
		return nil
	}
}

// WithDefaultTimeout sets the read timeout used when the locator carries no
// timeout key. It replaces the transport's built-in default.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Settings) error {
		if d < 0 {
			return fmt.Errorf("negative timeout %v", d)
		}
		s.DefaultTimeout = d
		return nil
	}
}
