//go:build !picolink_singlethread

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/joshuafuller/picolink/internal/system"
)

// The reader and the two timers write concurrently; the send path is
// serialised on a mutex.
type (
	writeLock  = system.Mutex
	taskHandle = system.Task
)

// Run drives the cycle until ctx is cancelled or the link fails. A join frame
// is sent immediately so peers discover the endpoint without waiting a full
// interval. Cancellation returns nil. A fatal link error is returned.
//
// Cancellation also ends a read in progress, so Run returns promptly even on
// a link configured without a read timeout.
func (s *Session) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"keep_alive": s.keepAlive,
		"join":       s.joinInterval,
	}).Info("session running")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			if _, err := s.Read(gctx); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	})

	g.Go(func() error {
		s.control(gctx, kindJoin)
		return s.every(gctx, s.joinInterval, kindJoin)
	})

	g.Go(func() error {
		return s.every(gctx, s.keepAlive, kindKeepAlive)
	})

	err := g.Wait()
	if err != nil {
		s.log.WithError(err).Error("session stopped on link failure")
		return err
	}

	s.log.Info("session stopped")
	return nil
}

func (s *Session) every(ctx context.Context, interval time.Duration, kind string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.control(ctx, kind)
		}
	}
}

// Start runs the cycle on a background task. It fails if the session is
// already running.
func (s *Session) Start(ctx context.Context) error {
	if s.task != nil {
		select {
		case <-s.task.Done():
		default:
			return fmt.Errorf("session already started")
		}
	}

	s.task = system.NewTask(ctx, s.Run)
	return nil
}

// Stop cancels a task started by Start, waits for it, and returns the error
// that ended it, if any. Stop without Start is a no-op.
func (s *Session) Stop() error {
	if s.task == nil {
		return nil
	}

	task := s.task
	s.task = nil
	task.Cancel()
	return task.Join()
}

// Done is closed when a task started by Start ends, whether by Stop or by a
// link failure. It is nil if the session was never started.
func (s *Session) Done() <-chan struct{} {
	if s.task == nil {
		return nil
	}
	return s.task.Done()
}
