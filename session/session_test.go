package session

import (
	"bytes"
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/picolink/endpoint"
	"github.com/joshuafuller/picolink/internal/errors"
	"github.com/joshuafuller/picolink/link"
)

var peerAddr = netip.MustParseAddrPort("192.0.2.7:40000")

// loopTransport delivers queued inbound frames and records outbound ones.
// It is safe for the concurrent reader and writers Run uses.
type loopTransport struct {
	inbound chan []byte
	readErr chan error

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newLoopTransport() *loopTransport {
	return &loopTransport{
		inbound: make(chan []byte, 16),
		readErr: make(chan error, 1),
	}
}

func (f *loopTransport) Open(context.Context) error   { return nil }
func (f *loopTransport) Listen(context.Context) error { return nil }
func (f *loopTransport) Close()                       {}
func (f *loopTransport) Free()                        {}

func (f *loopTransport) Read(ctx context.Context, p []byte) (int, netip.AddrPort, error) {
	select {
	case frame := <-f.inbound:
		return copy(p, frame), peerAddr, nil
	case err := <-f.readErr:
		return 0, netip.AddrPort{}, err
	case <-ctx.Done():
		return 0, netip.AddrPort{}, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return 0, netip.AddrPort{}, &errors.NetworkError{Operation: "read", Err: errors.ErrTimeout, Class: errors.ClassTransient}
	}
}

func (f *loopTransport) ReadExact(ctx context.Context, p []byte) (int, netip.AddrPort, error) {
	return f.Read(ctx, p)
}

func (f *loopTransport) Write(_ context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *loopTransport) WriteAll(ctx context.Context, p []byte) (int, error) {
	return f.Write(ctx, p)
}

func (f *loopTransport) MTU() uint16                       { return 64 }
func (f *loopTransport) Capabilities() link.Capability     { return link.CapMulticast | link.CapBestEffort }
func (f *loopTransport) LocalAddr() (netip.AddrPort, bool) { return netip.AddrPort{}, false }
func (f *loopTransport) RemoteAddr() netip.AddrPort        { return peerAddr }

func (f *loopTransport) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// countHeader returns how many written frames start with header.
func (f *loopTransport) countHeader(header byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.written {
		if len(w) > 0 && w[0] == header {
			n++
		}
	}
	return n
}

func (f *loopTransport) lastWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

// frameRecorder is a Handler that keeps copies of what it sees.
type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	from   []netip.AddrPort
}

func (r *frameRecorder) HandleFrame(payload []byte, from netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), payload...))
	r.from = append(r.from, from)
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func newOpenLink(t *testing.T) (*link.Link, *loopTransport) {
	t.Helper()

	fake := newLoopTransport()
	link.Register("loop", func(endpoint.Endpoint, link.Settings) (link.Transport, error) {
		return fake, nil
	})

	l, err := link.New("loop/192.0.2.1:7447")
	require.NoError(t, err)
	require.NoError(t, l.Listen(context.Background()))
	t.Cleanup(func() { _ = l.Close() })
	return l, fake
}

func TestNew_Validation(t *testing.T) {
	l, _ := newOpenLink(t)
	h := &frameRecorder{}

	_, err := New(nil, h)
	assert.Error(t, err)

	_, err = New(l, nil)
	assert.Error(t, err)

	for name, opt := range map[string]Option{
		"nil logger":    WithLogger(nil),
		"zero interval": WithKeepAlive(0),
		"negative join": WithJoinInterval(-time.Second),
		"nil encoder":   WithEncoder(nil),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(l, h, opt)
			assert.Error(t, err)
		})
	}
}

func TestRead_HandsFrameToHandler(t *testing.T) {
	l, fake := newOpenLink(t)
	h := &frameRecorder{}
	s, err := New(l, h)
	require.NoError(t, err)

	fake.inbound <- []byte("sample")

	n, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	require.Equal(t, 1, h.count())
	assert.Equal(t, []byte("sample"), h.frames[0])
	assert.Equal(t, peerAddr, h.from[0])
}

func TestRead_TimeoutIsRoutine(t *testing.T) {
	l, _ := newOpenLink(t)
	h := &frameRecorder{}
	s, err := New(l, h)
	require.NoError(t, err)

	n, err := s.Read(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.count())
}

func TestRead_FatalIsReported(t *testing.T) {
	l, fake := newOpenLink(t)
	s, err := New(l, &frameRecorder{})
	require.NoError(t, err)

	fake.readErr <- &errors.NetworkError{Operation: "read", Err: errors.ErrSocketInvalid, Class: errors.ClassFatal}

	_, err = s.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrSocketInvalid)
}

func TestRead_ClosedLink(t *testing.T) {
	l, _ := newOpenLink(t)
	s, err := New(l, &frameRecorder{})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = s.Read(context.Background())
	assert.ErrorIs(t, err, errors.ErrLinkClosed)
}

func TestControlFrames(t *testing.T) {
	l, fake := newOpenLink(t)
	enc := NewDefaultEncoder()
	s, err := New(l, &frameRecorder{}, WithEncoder(enc))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SendKeepAlive(ctx))
	ka := fake.lastWritten()
	require.Len(t, ka, 1+PeerIDSize)
	assert.Equal(t, HeaderKeepAlive, ka[0])
	assert.Equal(t, enc.ID[:], ka[1:])

	require.NoError(t, s.SendJoin(ctx))
	join := fake.lastWritten()
	assert.Equal(t, HeaderJoin, join[0])
	assert.Equal(t, enc.ID[:], join[1:])
}

func TestDefaultEncoder_RandomPeerID(t *testing.T) {
	a, b := NewDefaultEncoder(), NewDefaultEncoder()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID.String(), 2*PeerIDSize)
}

type oversizeEncoder struct{}

func (oversizeEncoder) KeepAlive(dst []byte) ([]byte, error) {
	return append(dst, bytes.Repeat([]byte{1}, 65)...), nil
}

func (oversizeEncoder) Join(dst []byte) ([]byte, error) { return append(dst, 2), nil }

func TestControlFrames_Failures(t *testing.T) {
	l, fake := newOpenLink(t)
	reg := prometheus.NewRegistry()
	s, err := New(l, &frameRecorder{}, WithEncoder(oversizeEncoder{}), WithMetrics(reg))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, s.SendKeepAlive(ctx), "frame larger than mtu")
	assert.Zero(t, fake.countHeader(1))

	require.NoError(t, s.SendJoin(ctx))

	fake.failWrites(&errors.NetworkError{Operation: "write", Err: errors.ErrSocketInvalid, Class: errors.ClassFatal})
	assert.Error(t, s.SendJoin(ctx))

	failures := s.metrics.controlFailures
	assert.Equal(t, 1.0, testutil.ToFloat64(failures.WithLabelValues(kindKeepAlive)))
	assert.Equal(t, 1.0, testutil.ToFloat64(failures.WithLabelValues(kindJoin)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.controlSent.WithLabelValues(kindJoin)))
}

func TestPoll(t *testing.T) {
	l, fake := newOpenLink(t)
	h := &frameRecorder{}
	s, err := New(l, h, WithKeepAlive(20*time.Millisecond), WithJoinInterval(time.Hour))
	require.NoError(t, err)
	ctx := context.Background()

	fake.inbound <- []byte{0xAA}
	require.NoError(t, s.Poll(ctx))
	assert.Equal(t, 1, h.count())
	assert.Equal(t, 1, fake.countHeader(HeaderJoin), "first poll sends join")
	assert.Equal(t, 1, fake.countHeader(HeaderKeepAlive), "first poll sends keep-alive")

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Poll(ctx))
	assert.Equal(t, 2, fake.countHeader(HeaderKeepAlive))
	assert.Equal(t, 1, fake.countHeader(HeaderJoin), "join interval not elapsed")
}

func TestPoll_WriteFailureDoesNotStop(t *testing.T) {
	l, fake := newOpenLink(t)
	s, err := New(l, &frameRecorder{})
	require.NoError(t, err)

	fake.failWrites(&errors.NetworkError{Operation: "write", Err: errors.ErrSocketInvalid, Class: errors.ClassFatal})
	assert.NoError(t, s.Poll(context.Background()))
}

func TestSend(t *testing.T) {
	l, fake := newOpenLink(t)
	s, err := New(l, &frameRecorder{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, []byte("reading=21.5")))
	assert.Equal(t, []byte("reading=21.5"), fake.lastWritten())

	assert.Error(t, s.Send(ctx, make([]byte, 65)), "larger than mtu")

	require.NoError(t, l.Close())
	assert.ErrorIs(t, s.Send(ctx, []byte("x")), errors.ErrLinkClosed)
}

func TestNew_ConflictingMetrics(t *testing.T) {
	l, _ := newOpenLink(t)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "picolink",
		Subsystem: "session",
		Name:      "frames_received_total",
		Help:      "Frames handed to the session handler",
	}, []string{"locator"}))

	_, err := New(l, &frameRecorder{}, WithMetrics(reg))
	assert.Error(t, err)

	again := prometheus.NewRegistry()
	_, err = New(l, &frameRecorder{}, WithMetrics(again))
	require.NoError(t, err)
	_, err = New(l, &frameRecorder{}, WithMetrics(again))
	assert.NoError(t, err, "a second session on one registry reuses the counters")
}
