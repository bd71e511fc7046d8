//go:build !picolink_singlethread

package system

import (
	"context"
	"sync"
)

// MultiThread reports whether the threading primitives are available in this
// build.
const MultiThread = true

// Task is a unit of work running on its own goroutine. The function receives
// a context that is cancelled by Cancel; it must return promptly after that.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewTask starts fn on a new goroutine.
func NewTask(ctx context.Context, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		t.err = fn(ctx)
	}()

	return t
}

// Join waits for the task to return and reports its error.
func (t *Task) Join() error {
	<-t.done
	return t.err
}

// Cancel asks the task to stop. It does not wait; call Join for that.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Mutex is a mutual exclusion lock with a non-blocking acquire.
type Mutex struct {
	mu sync.Mutex
}

// Lock acquires m, blocking until it is available.
func (m *Mutex) Lock() {
	m.mu.Lock()
}

// TryLock acquires m if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	return m.mu.TryLock()
}

// Unlock releases m.
func (m *Mutex) Unlock() {
	m.mu.Unlock()
}

// Condvar is a condition variable bound to a Mutex at creation.
type Condvar struct {
	c *sync.Cond
}

// NewCondvar returns a condition variable associated with m.
func NewCondvar(m *Mutex) *Condvar {
	return &Condvar{c: sync.NewCond(&m.mu)}
}

// Wait atomically unlocks the associated mutex and suspends until signalled.
// The mutex is held again when Wait returns.
func (cv *Condvar) Wait() {
	cv.c.Wait()
}

// Signal wakes one waiter, if any.
func (cv *Condvar) Signal() {
	cv.c.Signal()
}

// Broadcast wakes all waiters.
func (cv *Condvar) Broadcast() {
	cv.c.Broadcast()
}
