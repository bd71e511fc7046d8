// Package transport provides the concrete transports behind a link.
//
// Every transport satisfies the same Transport contract so that the link and
// session layers never need to know which one they are driving. The UDP
// multicast implementation keeps two physically distinct sockets: one joined
// to the group for receiving, one unconnected socket for sending to it.
package transport

import (
	"context"
	"net/netip"
	"strings"
)

// Capability is a bit set describing delivery properties of a transport.
// It is fixed when the transport is constructed.
type Capability uint8

const (
	// CapUnicast marks point-to-point transports.
	CapUnicast Capability = 1 << iota
	// CapMulticast marks group transports.
	CapMulticast
	// CapReliable marks transports that retransmit and order on their own.
	CapReliable
	// CapBestEffort marks transports that may drop, duplicate or reorder.
	CapBestEffort
)

// Has reports whether all bits of other are set in c.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// String returns a '|' separated list of capability names.
func (c Capability) String() string {
	var parts []string
	for _, cp := range []struct {
		bit  Capability
		name string
	}{
		{CapUnicast, "unicast"},
		{CapMulticast, "multicast"},
		{CapReliable, "reliable"},
		{CapBestEffort, "best-effort"},
	} {
		if c&cp.bit != 0 {
			parts = append(parts, cp.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Transport is the uniform contract every concrete transport implements.
//
// Operations are not reentrant: a single caller issues them sequentially, and
// concurrent use from several goroutines requires external locking.
//
// Read and ReadExact block at most for the configured socket timeout or until
// ctx is done, whichever comes first. A timeout is reported as
// errors.ErrTimeout (transient). Any other socket failure is fatal to the
// transport.
type Transport interface {
	// Open establishes the transport as a communication initiator.
	Open(ctx context.Context) error

	// Listen establishes the transport as a passive member.
	Listen(ctx context.Context) error

	// Close releases the sockets. Failures are logged, not returned.
	Close()

	// Free drops the resolved endpoint records. Only valid after Close.
	Free()

	// Read receives one datagram into p and reports who sent it.
	Read(ctx context.Context, p []byte) (int, netip.AddrPort, error)

	// ReadExact fills exactly len(p) bytes. Datagram transports take one
	// datagram and report a short one with errors.ErrShortDatagram.
	ReadExact(ctx context.Context, p []byte) (int, netip.AddrPort, error)

	// Write sends p, possibly partially for stream transports.
	Write(ctx context.Context, p []byte) (int, error)

	// WriteAll sends all of p or fails.
	WriteAll(ctx context.Context, p []byte) (int, error)

	// MTU returns the largest frame the transport carries.
	MTU() uint16

	// Capabilities returns the fixed capability set.
	Capabilities() Capability

	// LocalAddr returns the bound local address, valid after Open or Listen.
	LocalAddr() (netip.AddrPort, bool)

	// RemoteAddr returns the peer or group address derived from the locator.
	RemoteAddr() netip.AddrPort
}
