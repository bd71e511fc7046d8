// Package link is the uniform transport contract the session layer drives.
//
// A Link is built from a locator, owns exactly one concrete transport, and
// moves through a strict lifecycle:
//
//	constructed → opened | listening → (read/write)* → closed → freed
//
// Open and Listen are mutually exclusive. Destruction is two-phase: Close
// releases the sockets, Free releases the endpoint records. A closed link can
// still be inspected (Endpoint, State, MTU, RemoteAddr) until it is freed,
// which is what logging on teardown relies on.
//
// Operations issued outside the valid lifecycle never reach the socket; they
// return an error of class errors.ClassState. A Link is not safe for
// concurrent use: one goroutine issues operations, others must lock.
//
// Example:
//
//	l, err := link.New("udp/224.0.0.224:7447#iface=eth0")
//	if err != nil {
//	    return err
//	}
//	if err := l.Listen(ctx); err != nil {
//	    _ = l.Close()
//	    return err
//	}
//	defer func() { _ = l.Close(); _ = l.Free() }()
//
//	buf := make([]byte, l.MTU())
//	n, from, err := l.Read(ctx, buf)
package link

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/joshuafuller/picolink/endpoint"
	"github.com/joshuafuller/picolink/internal/errors"
	"github.com/joshuafuller/picolink/internal/transport"
)

// Capability describes delivery properties of a link.
type Capability = transport.Capability

// Transport is the contract a concrete transport implements.
type Transport = transport.Transport

// Capability bits.
const (
	CapUnicast    = transport.CapUnicast
	CapMulticast  = transport.CapMulticast
	CapReliable   = transport.CapReliable
	CapBestEffort = transport.CapBestEffort
)

// State is the lifecycle position of a Link.
type State int

const (
	// StateConstructed: parsed, no sockets.
	StateConstructed State = iota
	// StateOpened: opened as an initiator.
	StateOpened
	// StateListening: opened as a passive member.
	StateListening
	// StateFailed: Open or Listen failed; only Close is valid.
	StateFailed
	// StateClosed: sockets released; only Free is valid.
	StateClosed
	// StateFreed: endpoint records released; nothing is valid.
	StateFreed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateOpened:
		return "opened"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	case StateFreed:
		return "freed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Link is one transport instance behind the uniform contract.
type Link struct {
	endpoint  endpoint.Endpoint
	caps      Capability
	mtu       uint16
	transport Transport
	state     State
	log       logrus.FieldLogger
}

// New parses locator and builds an unopened Link for its scheme.
func New(locator string, opts ...Option) (*Link, error) {
	ep, err := endpoint.Parse(locator)
	if err != nil {
		return nil, err
	}
	return FromEndpoint(ep, opts...)
}

// FromEndpoint builds an unopened Link for an already parsed endpoint.
// Capabilities and MTU are taken from the transport once and never change.
func FromEndpoint(ep endpoint.Endpoint, opts ...Option) (*Link, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, fmt.Errorf("link option: %w", err)
		}
	}

	factory, ok := lookup(ep.Locator.Protocol)
	if !ok {
		return nil, fmt.Errorf("new link %s: %w", ep, errors.ErrUnsupportedScheme)
	}

	t, err := factory(ep, s)
	if err != nil {
		return nil, fmt.Errorf("new link %s: %w", ep, err)
	}

	return &Link{
		endpoint:  ep,
		caps:      t.Capabilities(),
		mtu:       t.MTU(),
		transport: t,
		state:     StateConstructed,
		log:       s.Logger.WithField("locator", ep.String()),
	}, nil
}

func (l *Link) stateError(op string, err error) error {
	return &errors.StateError{Operation: op, State: l.state.String(), Err: err}
}

// ioError reports why an I/O operation is invalid in the current state, or
// nil if it is allowed.
func (l *Link) ioError(op string) error {
	switch l.state {
	case StateOpened, StateListening:
		return nil
	case StateClosed:
		return l.stateError(op, errors.ErrLinkClosed)
	case StateFreed:
		return l.stateError(op, errors.ErrLinkFreed)
	default:
		return l.stateError(op, errors.ErrNotOpen)
	}
}

// Open establishes the link as a communication initiator. On failure the
// link moves to StateFailed; call Close to release anything half-open.
func (l *Link) Open(ctx context.Context) error {
	if l.state != StateConstructed {
		return l.stateError("open", errors.ErrAlreadyOpen)
	}

	if err := l.transport.Open(ctx); err != nil {
		l.state = StateFailed
		l.log.WithError(err).Warn("link open failed")
		return err
	}

	l.state = StateOpened
	l.log.Info("link opened")
	return nil
}

// Listen establishes the link as a passive member. On failure the link moves
// to StateFailed; call Close to release anything half-open.
func (l *Link) Listen(ctx context.Context) error {
	if l.state != StateConstructed {
		return l.stateError("listen", errors.ErrAlreadyOpen)
	}

	if err := l.transport.Listen(ctx); err != nil {
		l.state = StateFailed
		l.log.WithError(err).Warn("link listen failed")
		return err
	}

	l.state = StateListening
	l.log.Info("link listening")
	return nil
}

// Close releases the sockets. Socket-level failures are logged by the
// transport; the only errors returned are lifecycle ones, such as closing a
// link twice.
func (l *Link) Close() error {
	switch l.state {
	case StateClosed:
		return l.stateError("close", errors.ErrLinkClosed)
	case StateFreed:
		return l.stateError("close", errors.ErrLinkFreed)
	}

	l.transport.Close()
	l.state = StateClosed
	l.log.Debug("link closed")
	return nil
}

// Free releases the endpoint records. The link must be closed first.
func (l *Link) Free() error {
	if l.state != StateClosed {
		return l.stateError("free", errors.ErrNotOpen)
	}

	l.transport.Free()
	l.endpoint = endpoint.Endpoint{}
	l.state = StateFreed
	return nil
}

// Read returns as soon as one frame arrives, reporting its sender. A timeout
// returns zero bytes and an error for which errors.IsTransient holds.
func (l *Link) Read(ctx context.Context, p []byte) (int, netip.AddrPort, error) {
	if err := l.ioError("read"); err != nil {
		return 0, netip.AddrPort{}, err
	}
	return l.transport.Read(ctx, p)
}

// ReadExact reads exactly len(p) bytes. For datagram transports one datagram
// is one frame; see the transport for short-datagram behaviour.
func (l *Link) ReadExact(ctx context.Context, p []byte) (int, netip.AddrPort, error) {
	if err := l.ioError("read exact"); err != nil {
		return 0, netip.AddrPort{}, err
	}
	return l.transport.ReadExact(ctx, p)
}

// Write sends p. Stream transports may write partially.
func (l *Link) Write(ctx context.Context, p []byte) (int, error) {
	if err := l.ioError("write"); err != nil {
		return 0, err
	}
	return l.transport.Write(ctx, p)
}

// WriteAll sends all of p or fails.
func (l *Link) WriteAll(ctx context.Context, p []byte) (int, error) {
	if err := l.ioError("write all"); err != nil {
		return 0, err
	}
	return l.transport.WriteAll(ctx, p)
}

// MTU returns the transport's fixed maximum frame size.
func (l *Link) MTU() uint16 {
	return l.mtu
}

// Capabilities returns the capability set fixed at construction.
func (l *Link) Capabilities() Capability {
	return l.caps
}

// State returns the lifecycle state.
func (l *Link) State() State {
	return l.state
}

// Endpoint returns the endpoint the link was built from. It is the zero
// value after Free.
func (l *Link) Endpoint() endpoint.Endpoint {
	return l.endpoint
}

// RemoteAddr returns the peer or group address derived from the locator.
func (l *Link) RemoteAddr() netip.AddrPort {
	return l.transport.RemoteAddr()
}

// LocalAddr returns the local endpoint recorded when the link opened. It
// stays available after Close, for logging, and is dropped by Free.
func (l *Link) LocalAddr() (netip.AddrPort, bool) {
	return l.transport.LocalAddr()
}

// String identifies the link for logs.
func (l *Link) String() string {
	return fmt.Sprintf("%s [%s, mtu %d, %s]", l.endpoint, l.caps, l.mtu, l.state)
}
