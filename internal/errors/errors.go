// Package errors defines the error taxonomy shared by the link layer.
//
// Low-level platform errors are translated at the transport boundary into a
// small fixed set of classes so that callers can decide between retrying in
// place, tearing the link down, or fixing their input:
//
//   - ClassParse: malformed locator, no Endpoint produced
//   - ClassResource: socket creation, bind or group join failed
//   - ClassTransient: read/write timeout, retry
//   - ClassFatal: socket reset or invalidated, rebuild the link
//   - ClassState: operation issued outside the link lifecycle
package errors

import (
	"errors"
	"fmt"
)

// Class classifies an error for handling purposes.
type Class int

const (
	// ClassUnknown is returned for nil or unclassified errors.
	ClassUnknown Class = iota
	// ClassParse marks malformed locator or configuration input.
	ClassParse
	// ClassResource marks socket creation, bind or multicast-join failures.
	ClassResource
	// ClassTransient marks timeouts that the I/O cycle retries.
	ClassTransient
	// ClassFatal marks socket errors that require tearing the link down.
	ClassFatal
	// ClassState marks operations issued in the wrong lifecycle state.
	ClassState
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case ClassParse:
		return "parse"
	case ClassResource:
		return "resource"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	case ClassState:
		return "state"
	default:
		return "unknown"
	}
}

// Sentinel errors. Compare with errors.Is.
var (
	ErrTimeout           = errors.New("i/o timeout")
	ErrNotOpen           = errors.New("link not open")
	ErrLinkClosed        = errors.New("link closed")
	ErrLinkFreed         = errors.New("link freed")
	ErrAlreadyOpen       = errors.New("link already open")
	ErrSocketInvalid     = errors.New("socket invalid")
	ErrShortDatagram     = errors.New("datagram shorter than requested length")
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
	ErrNotMulticast      = errors.New("address is not a multicast group")
)

// ParseError reports a malformed locator.
type ParseError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse locator %q: %s", e.Input, e.Reason)
}

// NetworkError represents a socket-level failure.
//
// Operation names the step that failed ("open send socket", "read"), Details
// carries the addresses involved.
type NetworkError struct {
	Operation string
	Err       error
	Details   string
	Class     Class
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	msg := "network error during " + e.Operation
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StateError reports an operation issued outside the link lifecycle.
type StateError struct {
	Operation string
	State     string
	Err       error
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s: %v", e.Operation, e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *StateError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, walking wrapped errors.
func ClassOf(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var pe *ParseError
	if errors.As(err, &pe) {
		return ClassParse
	}

	var se *StateError
	if errors.As(err, &se) {
		return ClassState
	}

	var ne *NetworkError
	if errors.As(err, &ne) && ne.Class != ClassUnknown {
		return ne.Class
	}

	if errors.Is(err, ErrTimeout) {
		return ClassTransient
	}
	if errors.Is(err, ErrShortDatagram) || errors.Is(err, ErrSocketInvalid) {
		return ClassFatal
	}

	return ClassUnknown
}

// IsTransient reports whether err is a timeout the caller may retry in place.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsFatal reports whether err requires the link to be torn down and rebuilt.
func IsFatal(err error) bool {
	return ClassOf(err) == ClassFatal
}
