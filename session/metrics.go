package session

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Control frame kinds, used as metric labels and log fields.
const (
	kindKeepAlive = "keep_alive"
	kindJoin      = "join"
)

type metrics struct {
	framesReceived  prometheus.Counter
	controlSent     *prometheus.CounterVec
	controlFailures *prometheus.CounterVec
}

// register registers c, or returns the collector already registered under
// its descriptor. A foreign collector type under the same name is an error.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("registered as %T, want %T", are.ExistingCollector, c)
	}
	return existing, nil
}

// newMetrics returns nil when reg is nil.
func newMetrics(reg prometheus.Registerer, locator string) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	received, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picolink",
		Subsystem: "session",
		Name:      "frames_received_total",
		Help:      "Frames handed to the session handler",
	}, []string{"locator"}))
	if err != nil {
		return nil, fmt.Errorf("register frames_received_total: %w", err)
	}

	sent, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picolink",
		Subsystem: "session",
		Name:      "control_frames_sent_total",
		Help:      "Control frames written to the link",
	}, []string{"locator", "kind"}))
	if err != nil {
		return nil, fmt.Errorf("register control_frames_sent_total: %w", err)
	}

	failed, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picolink",
		Subsystem: "session",
		Name:      "control_failures_total",
		Help:      "Control frames that could not be encoded or written",
	}, []string{"locator", "kind"}))
	if err != nil {
		return nil, fmt.Errorf("register control_failures_total: %w", err)
	}

	return &metrics{
		framesReceived:  received.WithLabelValues(locator),
		controlSent:     sent.MustCurryWith(prometheus.Labels{"locator": locator}),
		controlFailures: failed.MustCurryWith(prometheus.Labels{"locator": locator}),
	}, nil
}

func (m *metrics) received() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *metrics) controlSentInc(kind string) {
	if m == nil {
		return
	}
	m.controlSent.WithLabelValues(kind).Inc()
}

func (m *metrics) controlFailed(kind string) {
	if m == nil {
		return
	}
	m.controlFailures.WithLabelValues(kind).Inc()
}
