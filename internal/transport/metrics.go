package transport

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters for one transport instance. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	datagramsSent     prometheus.Counter
	datagramsReceived prometheus.Counter
	datagramsForeign  prometheus.Counter
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	socketErrors      prometheus.Counter
	readTimeouts      prometheus.Counter
}

// NewMetrics registers the link counters with reg and returns the set bound
// to locator. A nil reg yields nil metrics. Several transports may share one
// registerer; each gets its own label value. A collector already registered
// under the same name with a different shape is an error.
func NewMetrics(reg prometheus.Registerer, locator string) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	var errs []error
	counter := func(name, help string) prometheus.Counter {
		vec, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picolink",
			Subsystem: "link",
			Name:      name,
			Help:      help,
		}, []string{"locator"}))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return vec.WithLabelValues(locator)
	}

	m := &Metrics{
		datagramsSent:     counter("datagrams_sent_total", "Datagrams written to the link"),
		datagramsReceived: counter("datagrams_received_total", "Datagrams read from the link"),
		datagramsForeign:  counter("datagrams_foreign_total", "Datagrams for another group on the same port, dropped"),
		bytesSent:         counter("bytes_sent_total", "Payload bytes written to the link"),
		bytesReceived:     counter("bytes_received_total", "Payload bytes read from the link"),
		socketErrors:      counter("socket_errors_total", "Fatal socket errors on read or write"),
		readTimeouts:      counter("read_timeouts_total", "Reads that returned without data"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("register link metrics: %w", err)
	}
	return m, nil
}

// registerCounterVec registers vec, or returns the vector already registered
// under its descriptor. vec is returned alongside any error so callers can
// still build their label set.
func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(vec)
	if err == nil {
		return vec, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return vec, err
	}
	existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
	if !ok {
		return vec, fmt.Errorf("registered as %T, want *prometheus.CounterVec", are.ExistingCollector)
	}
	return existing, nil
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.datagramsSent.Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}
	m.datagramsReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) foreign() {
	if m == nil {
		return
	}
	m.datagramsForeign.Inc()
}

func (m *Metrics) socketError() {
	if m == nil {
		return
	}
	m.socketErrors.Inc()
}

func (m *Metrics) readTimeout() {
	if m == nil {
		return
	}
	m.readTimeouts.Inc()
}
