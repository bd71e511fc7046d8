package session

import (
	"encoding/hex"

	"github.com/joshuafuller/picolink/internal/system"
)

// PeerIDSize is the length of the random identifier a DefaultEncoder stamps
// on its control frames.
const PeerIDSize = 16

// Control frame header bytes written by DefaultEncoder.
const (
	HeaderKeepAlive byte = 0x01
	HeaderJoin      byte = 0x02
)

// ControlEncoder produces the control frames a Session emits. Each method
// appends one complete frame to dst and returns the extended slice. The frame
// must fit the link MTU.
type ControlEncoder interface {
	KeepAlive(dst []byte) ([]byte, error)
	Join(dst []byte) ([]byte, error)
}

// PeerID identifies one session on the group.
type PeerID [PeerIDSize]byte

// String returns the id in hex.
func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// DefaultEncoder writes a header byte followed by the peer id. That is enough
// for a peer to notice liveness; it is not a message format.
type DefaultEncoder struct {
	ID PeerID
}

// NewDefaultEncoder returns an encoder with a fresh random peer id.
func NewDefaultEncoder() *DefaultEncoder {
	e := &DefaultEncoder{}
	system.RandomFill(e.ID[:])
	return e
}

// KeepAlive implements ControlEncoder.
func (e *DefaultEncoder) KeepAlive(dst []byte) ([]byte, error) {
	dst = append(dst, HeaderKeepAlive)
	return append(dst, e.ID[:]...), nil
}

// Join implements ControlEncoder.
func (e *DefaultEncoder) Join(dst []byte) ([]byte, error) {
	dst = append(dst, HeaderJoin)
	return append(dst, e.ID[:]...), nil
}
