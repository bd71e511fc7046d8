package link

import (
	"sync"

	"github.com/joshuafuller/picolink/endpoint"
	"github.com/joshuafuller/picolink/internal/transport"
)

// Factory builds an unopened transport for an endpoint.
type Factory func(ep endpoint.Endpoint, s Settings) (Transport, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"udp": newUDPMulticast,
	}
)

// Register makes a transport available under scheme, replacing any previous
// factory for it. It is meant to be called from init functions.
func Register(scheme string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = f
}

func lookup(scheme string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[scheme]
	return f, ok
}

// newUDPMulticast serves the "udp" scheme. Only group addresses are accepted;
// a unicast address fails construction.
func newUDPMulticast(ep endpoint.Endpoint, s Settings) (Transport, error) {
	m, err := transport.NewMetrics(s.Registerer, ep.String())
	if err != nil {
		return nil, err
	}
	return transport.NewUDPMulticast(ep,
		transport.WithLogger(s.Logger),
		transport.WithDefaultTimeout(s.DefaultTimeout),
		transport.WithMetrics(m),
	)
}
