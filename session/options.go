package session

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Option is a functional option for configuring a Session.
//
// Example:
//
//	s, err := session.New(l, handler,
//	    session.WithKeepAlive(500*time.Millisecond),
//	    session.WithLogger(log),
//	)
type Option func(*Session) error

// WithLogger sets the session logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}
		s.log = l
		return nil
	}
}

// WithKeepAlive sets the keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("keep-alive interval must be positive, got %v", d)
		}
		s.keepAlive = d
		return nil
	}
}

// WithJoinInterval sets the join interval.
func WithJoinInterval(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("join interval must be positive, got %v", d)
		}
		s.joinInterval = d
		return nil
	}
}

// WithEncoder replaces the DefaultEncoder.
func WithEncoder(e ControlEncoder) Option {
	return func(s *Session) error {
		if e == nil {
			return fmt.Errorf("nil encoder")
		}
		s.encoder = e
		return nil
	}
}

// WithMetrics registers session counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Session) error {
		s.reg = reg
		return nil
	}
}
