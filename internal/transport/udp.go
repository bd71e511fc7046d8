package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joshuafuller/picolink/endpoint"
	"github.com/joshuafuller/picolink/internal/errors"
)

const (
	// MulticastMTU is the practical application-layer MTU of the multicast
	// transport: an Ethernet frame minus IP and UDP headers, with headroom
	// for tunnelling overheads. Higher layers size frames against it.
	MulticastMTU uint16 = 1450

	// DefaultSocketTimeout bounds each Read when the locator carries no
	// timeout key.
	DefaultSocketTimeout = 100 * time.Millisecond

	// receiveBufferSize is the SO_RCVBUF requested for the group socket.
	receiveBufferSize = 64 * 1024
)

// udpSocket is one half of the multicast pair. valid is the only source of
// truth for whether conn may be used.
type udpSocket struct {
	conn  *net.UDPConn
	group groupConn
	valid bool
}

// UDPMulticastTransport implements Transport over UDP multicast.
//
// It keeps two sockets. The receive socket is bound to the group port and
// joined to the group; the send socket is an unconnected socket on an
// ephemeral port with the outgoing interface, TTL and loopback configured.
// Group reception and group transmission have different join/bind semantics
// on every platform, so the two are never the same handle.
//
// The receive socket is bound to the wildcard address on the group port, so
// the kernel delivers datagrams for every group joined on that port. Where
// destination control messages are available, Read drops those addressed to
// another group.
//
// A pending Read returns when its context is cancelled. Closing the receive
// socket from another goroutine unblocks it with a fatal error.
type UDPMulticastTransport struct {
	ep endpoint.Endpoint

	remote     netip.AddrPort // group address, valid from construction
	local      netip.AddrPort // send socket endpoint, kept from Open/Listen until Free
	localValid bool
	filterDst  bool
	v6         bool

	recv udpSocket
	send udpSocket

	joined []*net.Interface

	defaultTimeout time.Duration
	readTimeout    time.Duration
	log            logrus.FieldLogger
	metrics        *Metrics
}

var _ Transport = (*UDPMulticastTransport)(nil)

// Option configures a UDPMulticastTransport.
type Option func(*UDPMulticastTransport) error

// WithLogger sets the logger. The transport adds its own fields.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *UDPMulticastTransport) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}
		t.log = l
		return nil
	}
}

// WithMetrics records datagram and error counters into m.
func WithMetrics(m *Metrics) Option {
	return func(t *UDPMulticastTransport) error {
		t.metrics = m
		return nil
	}
}

// WithDefaultTimeout replaces DefaultSocketTimeout for locators without a
// timeout key. Zero disables the per-read deadline; a read then waits for a
// datagram or for its context to end.
func WithDefaultTimeout(d time.Duration) Option {
	return func(t *UDPMulticastTransport) error {
		if d < 0 {
			return fmt.Errorf("negative timeout %v", d)
		}
		t.defaultTimeout = d
		return nil
	}
}

// NewUDPMulticast builds an unopened multicast transport for ep.
//
// The group address and port are resolved immediately; a locator that does
// not resolve to a multicast group fails here and no transport is returned.
// Both sockets start out invalid.
func NewUDPMulticast(ep endpoint.Endpoint, opts ...Option) (*UDPMulticastTransport, error) {
	host, err := endpoint.AddressSegment(ep.Locator.Address)
	if err != nil {
		return nil, err
	}
	port, err := endpoint.PortSegment(ep.Locator.Address)
	if err != nil {
		return nil, err
	}

	remote, err := resolveGroup(host, port)
	if err != nil {
		return nil, err
	}

	t := &UDPMulticastTransport{
		ep:             ep,
		remote:         remote,
		v6:             remote.Addr().Is6(),
		defaultTimeout: DefaultSocketTimeout,
		log:            logrus.StandardLogger(),
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, fmt.Errorf("udp multicast option: %w", err)
		}
	}
	t.log = t.log.WithFields(logrus.Fields{
		"transport": "udp-multicast",
		"group":     remote.String(),
	})

	return t, nil
}

func resolveGroup(host, port string) (netip.AddrPort, error) {
	input := net.JoinHostPort(host, port)

	ua, err := net.ResolveUDPAddr("udp", input)
	if err != nil {
		return netip.AddrPort{}, &errors.ParseError{Input: input, Reason: err.Error()}
	}

	addr, ok := netip.AddrFromSlice(ua.IP)
	if !ok {
		return netip.AddrPort{}, &errors.ParseError{Input: input, Reason: "unusable address"}
	}
	addr = addr.Unmap().WithZone(ua.Zone)

	if !addr.IsMulticast() {
		return netip.AddrPort{}, &errors.ParseError{Input: input, Reason: errors.ErrNotMulticast.Error()}
	}

	return netip.AddrPortFrom(addr, uint16(ua.Port)), nil
}

// socketParams are the per-open settings read from the endpoint config.
type socketParams struct {
	timeout  time.Duration
	iface    *net.Interface
	ttl      int
	loopback bool
}

func (t *UDPMulticastTransport) params() (socketParams, error) {
	cfg := t.ep.Config

	timeout, err := cfg.Duration(endpoint.KeyTimeout, t.defaultTimeout)
	if err != nil {
		return socketParams{}, err
	}
	ttl, err := cfg.Int(endpoint.KeyTTL, 0)
	if err != nil {
		return socketParams{}, err
	}
	loopback, err := cfg.Bool(endpoint.KeyLoopback, true)
	if err != nil {
		return socketParams{}, err
	}

	ifaceName := cfg.String(endpoint.KeyIface, "")
	iface, err := resolveInterface(ifaceName)
	if err != nil {
		return socketParams{}, &errors.NetworkError{
			Operation: "resolve interface",
			Err:       err,
			Details:   ifaceName,
			Class:     errors.ClassResource,
		}
	}

	return socketParams{timeout: timeout, iface: iface, ttl: ttl, loopback: loopback}, nil
}

func (t *UDPMulticastTransport) network() string {
	if t.v6 {
		return "udp6"
	}
	return "udp4"
}

func (t *UDPMulticastTransport) groupAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(t.remote)
}

// Open establishes the transport as an initiator: the send socket towards the
// group and a receive socket joined to it for replies. Either failing fails
// the whole operation and leaves both sockets invalid.
func (t *UDPMulticastTransport) Open(ctx context.Context) error {
	p, err := t.params()
	if err != nil {
		return err
	}

	if err := t.openSend(ctx, p); err != nil {
		return err
	}
	if err := t.openReceive(ctx, p); err != nil {
		t.closeSend()
		t.local, t.localValid = netip.AddrPort{}, false
		return err
	}

	t.log.WithField("local", t.local.String()).Debug("multicast link opened")
	return nil
}

// Listen establishes the transport as a passive group member: a receive
// socket joined to the group and, separately, a send socket so the listener
// can reply. If one half fails the operation fails, but the half that did
// open stays assigned; Close releases whatever is valid.
func (t *UDPMulticastTransport) Listen(ctx context.Context) error {
	p, err := t.params()
	if err != nil {
		return err
	}

	recvErr := t.openReceive(ctx, p)
	sendErr := t.openSend(ctx, p)

	if recvErr != nil {
		return recvErr
	}
	if sendErr != nil {
		return sendErr
	}

	t.log.WithField("local", t.local.String()).Debug("multicast link listening")
	return nil
}

func (t *UDPMulticastTransport) listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var optErr error
			if err := c.Control(func(fd uintptr) {
				optErr = setSocketOptions(fd)
			}); err != nil {
				return err
			}
			return optErr
		},
	}
}

func (t *UDPMulticastTransport) openReceive(ctx context.Context, p socketParams) error {
	bindAddr := net.JoinHostPort("", fmt.Sprint(t.remote.Port()))

	lc := t.listenConfig()
	pc, err := lc.ListenPacket(ctx, t.network(), bindAddr)
	if err != nil {
		return &errors.NetworkError{
			Operation: "open receive socket",
			Err:       err,
			Details:   "bind " + bindAddr,
			Class:     errors.ClassResource,
		}
	}
	conn := pc.(*net.UDPConn)

	if err := conn.SetReadBuffer(receiveBufferSize); err != nil {
		t.log.WithError(err).Debug("could not enlarge receive buffer")
	}

	gc := newGroupConn(conn, t.v6)
	joined, err := joinGroup(gc, p.iface, t.groupAddr())
	if err != nil {
		_ = conn.Close()
		return &errors.NetworkError{
			Operation: "join group",
			Err:       err,
			Details:   t.remote.Addr().String(),
			Class:     errors.ClassResource,
		}
	}

	t.filterDst = gc.SetDestinationControl(true) == nil
	if !t.filterDst {
		t.log.Debug("destination control messages unavailable; datagrams for other groups on the port are not dropped")
	}

	t.joined = joined
	t.recv = udpSocket{conn: conn, group: gc, valid: true}
	t.readTimeout = p.timeout
	return nil
}

func (t *UDPMulticastTransport) openSend(ctx context.Context, p socketParams) error {
	wildcard := "0.0.0.0:0"
	if t.v6 {
		wildcard = "[::]:0"
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, t.network(), wildcard)
	if err != nil {
		return &errors.NetworkError{
			Operation: "open send socket",
			Err:       err,
			Details:   "bind " + wildcard,
			Class:     errors.ClassResource,
		}
	}
	conn := pc.(*net.UDPConn)

	fail := func(op string, err error) error {
		_ = conn.Close()
		return &errors.NetworkError{
			Operation: op,
			Err:       err,
			Details:   t.remote.String(),
			Class:     errors.ClassResource,
		}
	}

	gc := newGroupConn(conn, t.v6)
	if p.iface != nil {
		if err := gc.SetMulticastInterface(p.iface); err != nil {
			return fail("set multicast interface", err)
		}
	}
	if p.ttl > 0 {
		if err := gc.SetMulticastHops(p.ttl); err != nil {
			return fail("set multicast ttl", err)
		}
	}
	if err := gc.SetMulticastLoopback(p.loopback); err != nil {
		return fail("set multicast loopback", err)
	}

	t.send = udpSocket{conn: conn, group: gc, valid: true}
	t.local = localEndpoint(conn, p.iface, t.v6)
	t.localValid = true
	return nil
}

// localEndpoint pairs the send socket's port with the first address of the
// chosen interface in the group's family. Without an interface the OS picks
// the source per datagram and the wildcard binding is returned.
func localEndpoint(conn *net.UDPConn, ifi *net.Interface, v6 bool) netip.AddrPort {
	bound := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	if ifi == nil {
		return bound
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return bound
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.Is6() != v6 {
			continue
		}
		if addr.Is6() && addr.IsLinkLocalUnicast() {
			addr = addr.WithZone(ifi.Name)
		}
		return netip.AddrPortFrom(addr, bound.Port())
	}
	return bound
}

// Close leaves the group and releases both sockets. Invalid halves are
// skipped; failures are logged because a retried close is not meaningful.
// The local endpoint stays readable until Free.
func (t *UDPMulticastTransport) Close() {
	if t.recv.valid {
		for _, ifi := range t.joined {
			if err := t.recv.group.LeaveGroup(ifi, t.groupAddr()); err != nil {
				t.log.WithError(err).Debug("leave group failed")
			}
		}
		if err := t.recv.conn.Close(); err != nil {
			t.log.WithError(err).Warn("closing receive socket failed")
		}
	}
	t.recv = udpSocket{}
	t.joined = nil

	t.closeSend()
	t.log.Debug("multicast link closed")
}

func (t *UDPMulticastTransport) closeSend() {
	if t.send.valid {
		if err := t.send.conn.Close(); err != nil {
			t.log.WithError(err).Warn("closing send socket failed")
		}
	}
	t.send = udpSocket{}
}

// Free drops the resolved local and remote endpoint records. The transport
// cannot be reopened afterwards.
func (t *UDPMulticastTransport) Free() {
	t.remote = netip.AddrPort{}
	t.local = netip.AddrPort{}
	t.localValid = false
	t.ep = endpoint.Endpoint{}
}

// Read receives one datagram for the group into p. A datagram larger than p
// is truncated. A read that times out returns zero bytes and
// errors.ErrTimeout; a cancelled context ends the read with ctx.Err().
func (t *UDPMulticastTransport) Read(ctx context.Context, p []byte) (int, netip.AddrPort, error) {
	if !t.recv.valid {
		return 0, netip.AddrPort{}, &errors.NetworkError{
			Operation: "read",
			Err:       errors.ErrSocketInvalid,
			Class:     errors.ClassFatal,
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, netip.AddrPort{}, err
	}

	if err := t.armDeadline(ctx); err != nil {
		return 0, netip.AddrPort{}, err
	}

	conn := t.recv.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		n, dst, src, err := t.recv.group.ReadDatagram(p)
		if err != nil {
			return 0, netip.AddrPort{}, t.readError(ctx, err)
		}
		if !t.forGroup(dst) {
			t.metrics.foreign()
			continue
		}

		t.metrics.received(n)
		return n, senderOf(src), nil
	}
}

// forGroup reports whether a datagram with destination dst belongs to this
// link. Without destination information every datagram is accepted.
func (t *UDPMulticastTransport) forGroup(dst net.IP) bool {
	if !t.filterDst || dst == nil {
		return true
	}
	addr, ok := netip.AddrFromSlice(dst)
	if !ok {
		return true
	}
	return addr.Unmap() == t.remote.Addr().WithZone("")
}

func senderOf(a net.Addr) netip.AddrPort {
	ua, ok := a.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	ap := ua.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// ReadExact receives one datagram and copies exactly len(p) bytes of it.
//
// Multicast frames are self-contained datagrams; bytes are never accumulated
// across datagrams. A datagram shorter than len(p) is copied, its length is
// returned together with the sender and errors.ErrShortDatagram. Bytes
// beyond len(p) are discarded.
func (t *UDPMulticastTransport) ReadExact(ctx context.Context, p []byte) (int, netip.AddrPort, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	n, from, err := t.Read(ctx, *buf)
	if err != nil {
		return 0, from, err
	}

	copied := copy(p, (*buf)[:n])
	if copied < len(p) {
		return copied, from, &errors.NetworkError{
			Operation: "read exact",
			Err:       errors.ErrShortDatagram,
			Details:   fmt.Sprintf("got %d of %d bytes from %s", copied, len(p), from),
			Class:     errors.ClassFatal,
		}
	}
	return copied, from, nil
}

func (t *UDPMulticastTransport) armDeadline(ctx context.Context) error {
	var deadline time.Time
	if t.readTimeout > 0 {
		deadline = time.Now().Add(t.readTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	if err := t.recv.conn.SetReadDeadline(deadline); err != nil {
		t.metrics.socketError()
		return &errors.NetworkError{
			Operation: "set read deadline",
			Err:       err,
			Class:     errors.ClassFatal,
		}
	}
	return nil
}

func (t *UDPMulticastTransport) readError(ctx context.Context, err error) error {
	var netErr net.Error
	if stderrors.Is(err, os.ErrDeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		t.metrics.readTimeout()
		return &errors.NetworkError{
			Operation: "read",
			Err:       errors.ErrTimeout,
			Class:     errors.ClassTransient,
		}
	}

	t.metrics.socketError()
	return &errors.NetworkError{
		Operation: "read",
		Err:       err,
		Details:   "group " + t.remote.String(),
		Class:     errors.ClassFatal,
	}
}

// Write sends p to the group as one datagram.
func (t *UDPMulticastTransport) Write(ctx context.Context, p []byte) (int, error) {
	if !t.send.valid {
		return 0, &errors.NetworkError{
			Operation: "write",
			Err:       errors.ErrSocketInvalid,
			Class:     errors.ClassFatal,
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := t.send.conn.WriteToUDPAddrPort(p, t.remote)
	if err != nil {
		t.metrics.socketError()
		return n, &errors.NetworkError{
			Operation: "write",
			Err:       err,
			Details:   fmt.Sprintf("%d bytes to %s", len(p), t.remote),
			Class:     errors.ClassFatal,
		}
	}
	if n != len(p) {
		t.metrics.socketError()
		return n, &errors.NetworkError{
			Operation: "write",
			Err:       fmt.Errorf("partial write: %d/%d bytes", n, len(p)),
			Class:     errors.ClassFatal,
		}
	}

	t.metrics.sent(n)
	return n, nil
}

// WriteAll is Write: a datagram is either sent whole or not at all.
func (t *UDPMulticastTransport) WriteAll(ctx context.Context, p []byte) (int, error) {
	return t.Write(ctx, p)
}

// MTU returns MulticastMTU.
func (t *UDPMulticastTransport) MTU() uint16 {
	return MulticastMTU
}

// Capabilities returns multicast|best-effort.
func (t *UDPMulticastTransport) Capabilities() Capability {
	return CapMulticast | CapBestEffort
}

// LocalAddr returns the send socket endpoint recorded by Open or Listen. It
// survives Close and is dropped by Free.
func (t *UDPMulticastTransport) LocalAddr() (netip.AddrPort, bool) {
	return t.local, t.localValid
}

// RemoteAddr returns the multicast group address and port.
func (t *UDPMulticastTransport) RemoteAddr() netip.AddrPort {
	return t.remote
}

// ReceiveValid reports whether the receive socket is open.
func (t *UDPMulticastTransport) ReceiveValid() bool {
	return t.recv.valid
}

// SendValid reports whether the send socket is open.
func (t *UDPMulticastTransport) SendValid() bool {
	return t.send.valid
}

// Timeout returns the read timeout in effect after Open or Listen.
func (t *UDPMulticastTransport) Timeout() time.Duration {
	return t.readTimeout
}
