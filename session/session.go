// Package session drives a link: it reads frames into a handler and emits
// periodic keep-alive and join control frames so that peers on the group can
// track this endpoint.
//
// The cycle can be driven three ways. Run blocks and runs the read loop and
// both timers concurrently. Start and Stop do the same on a background task
// (not available in picolink_singlethread builds). Poll performs one step of
// a cooperative loop for callers that own their scheduling:
//
//	for ctx.Err() == nil {
//	    if err := s.Poll(ctx); err != nil {
//	        return err
//	    }
//	    // other work
//	}
//
// Read timeouts are routine and never surface. A fatal link error ends the
// cycle and is returned wrapped; reconnecting is left to the caller.
package session

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joshuafuller/picolink/internal/errors"
	"github.com/joshuafuller/picolink/internal/system"
	"github.com/joshuafuller/picolink/link"
)

// Default control frame intervals.
const (
	DefaultKeepAliveInterval = time.Second
	DefaultJoinInterval      = 2500 * time.Millisecond
)

// Handler consumes received frames. The payload is only valid for the
// duration of the call.
type Handler interface {
	HandleFrame(payload []byte, from netip.AddrPort)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(payload []byte, from netip.AddrPort)

// HandleFrame calls f.
func (f HandlerFunc) HandleFrame(payload []byte, from netip.AddrPort) {
	f(payload, from)
}

// Session runs the I/O cycle over one opened link.
type Session struct {
	link    *link.Link
	handler Handler
	encoder ControlEncoder

	keepAlive    time.Duration
	joinInterval time.Duration

	log     logrus.FieldLogger
	reg     prometheus.Registerer
	metrics *metrics

	// scratch is owned by the reader; ctrl by whoever holds writeMu.
	scratch []byte
	ctrl    []byte
	writeMu writeLock

	lastKeepAlive system.Clock
	lastJoin      system.Clock
	sentOnce      bool

	task *taskHandle
}

// New builds a session over l, which the caller opens before running the
// cycle and closes after it ends. The scratch buffer is sized to the link MTU
// once, here.
func New(l *link.Link, h Handler, opts ...Option) (*Session, error) {
	if l == nil {
		return nil, fmt.Errorf("session: nil link")
	}
	if h == nil {
		return nil, fmt.Errorf("session: nil handler")
	}

	s := &Session{
		link:         l,
		handler:      h,
		keepAlive:    DefaultKeepAliveInterval,
		joinInterval: DefaultJoinInterval,
		log:          logrus.StandardLogger(),
		scratch:      make([]byte, l.MTU()),
		ctrl:         make([]byte, 0, l.MTU()),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("session option: %w", err)
		}
	}

	if s.encoder == nil {
		s.encoder = NewDefaultEncoder()
	}

	locator := l.Endpoint().String()
	s.log = s.log.WithField("locator", locator)
	if enc, ok := s.encoder.(*DefaultEncoder); ok {
		s.log = s.log.WithField("peer", enc.ID.String())
	}
	m, err := newMetrics(s.reg, locator)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.metrics = m

	return s, nil
}

// Link returns the link the session drives.
func (s *Session) Link() *link.Link {
	return s.link
}

// Read performs one read step. It returns the number of bytes handed to the
// handler, zero when the read timed out. Any other link error is returned
// wrapped, except context cancellation, which is returned as is.
func (s *Session) Read(ctx context.Context) (int, error) {
	n, from, err := s.link.Read(ctx, s.scratch)
	if err != nil {
		if errors.IsTransient(err) {
			return 0, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("session read: %w", err)
	}

	s.metrics.received()
	s.handler.HandleFrame(s.scratch[:n], from)
	return n, nil
}

// Send writes one application frame. It shares the write path with the
// control frames, so it may be called while Run is active.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if len(payload) > int(s.link.MTU()) {
		return fmt.Errorf("send: frame of %d bytes exceeds mtu %d", len(payload), s.link.MTU())
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.link.WriteAll(ctx, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendKeepAlive writes one keep-alive frame.
func (s *Session) SendKeepAlive(ctx context.Context) error {
	return s.sendControl(ctx, kindKeepAlive, s.encoder.KeepAlive)
}

// SendJoin writes one join frame.
func (s *Session) SendJoin(ctx context.Context) error {
	return s.sendControl(ctx, kindJoin, s.encoder.Join)
}

func (s *Session) sendControl(ctx context.Context, kind string, encode func([]byte) ([]byte, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	frame, err := encode(s.ctrl[:0])
	if err != nil {
		s.metrics.controlFailed(kind)
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if len(frame) > int(s.link.MTU()) {
		s.metrics.controlFailed(kind)
		return fmt.Errorf("encode %s: frame of %d bytes exceeds mtu %d", kind, len(frame), s.link.MTU())
	}
	// Keep a grown buffer for next time.
	s.ctrl = frame[:0]

	if _, err := s.link.WriteAll(ctx, frame); err != nil {
		s.metrics.controlFailed(kind)
		return fmt.Errorf("send %s: %w", kind, err)
	}

	s.metrics.controlSentInc(kind)
	return nil
}

// control sends a control frame from inside the cycle, where failures are
// logged and counted but do not stop anything.
func (s *Session) control(ctx context.Context, kind string) {
	var err error
	if kind == kindJoin {
		err = s.SendJoin(ctx)
	} else {
		err = s.SendKeepAlive(ctx)
	}
	if err != nil && ctx.Err() == nil {
		s.log.WithError(err).WithField("kind", kind).Warn("control frame not sent")
	}
}

// Poll runs one step of a cooperative cycle: a single bounded read, then any
// control frame whose interval has elapsed. The first call sends both.
func (s *Session) Poll(ctx context.Context) error {
	if _, err := s.Read(ctx); err != nil {
		return err
	}

	if !s.sentOnce {
		s.sentOnce = true
		s.lastKeepAlive = system.ClockNow()
		s.lastJoin = s.lastKeepAlive
		s.control(ctx, kindJoin)
		s.control(ctx, kindKeepAlive)
		return nil
	}

	if s.lastKeepAlive.Elapsed() >= s.keepAlive {
		s.lastKeepAlive = system.ClockNow()
		s.control(ctx, kindKeepAlive)
	}
	if s.lastJoin.Elapsed() >= s.joinInterval {
		s.lastJoin = system.ClockNow()
		s.control(ctx, kindJoin)
	}
	return nil
}
