// Package system provides the platform primitives the link layer and the
// session cycle are built on: randomness, monotonic and wall clocks, sleeps,
// and (when the target supports them) tasks, mutexes and condition variables.
//
// Platform selection happens at build time. Linux reads entropy with
// getrandom(2); other targets use crypto/rand. Building with the
// picolink_singlethread tag removes the threading primitives for targets that
// have no scheduler to back them.
package system

import "time"

// SleepUs blocks the calling goroutine for us microseconds.
func SleepUs(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// SleepMs blocks the calling goroutine for ms milliseconds.
func SleepMs(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// SleepS blocks the calling goroutine for s seconds.
func SleepS(s uint32) {
	time.Sleep(time.Duration(s) * time.Second)
}
