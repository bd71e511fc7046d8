//go:build picolink_singlethread

package session

// Only one goroutine drives the session, through Poll.
type writeLock struct{}

func (writeLock) Lock()   {}
func (writeLock) Unlock() {}

type taskHandle struct{}
