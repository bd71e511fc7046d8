package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ClassUnknown},
		{name: "plain error", err: errors.New("boom"), want: ClassUnknown},
		{name: "parse error", err: &ParseError{Input: "udp/x", Reason: "missing port"}, want: ClassParse},
		{
			name: "wrapped parse error",
			err:  fmt.Errorf("new link: %w", &ParseError{Input: "udp/x", Reason: "missing port"}),
			want: ClassParse,
		},
		{name: "timeout sentinel", err: ErrTimeout, want: ClassTransient},
		{
			name: "network error carrying class",
			err:  &NetworkError{Operation: "join group", Err: errors.New("no such device"), Class: ClassResource},
			want: ClassResource,
		},
		{
			name: "network error wrapping timeout",
			err:  &NetworkError{Operation: "read", Err: ErrTimeout},
			want: ClassTransient,
		},
		{name: "short datagram", err: ErrShortDatagram, want: ClassFatal},
		{name: "state error", err: &StateError{Operation: "read", State: "closed", Err: ErrLinkClosed}, want: ClassState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Error(t *testing.T) {
	err := &NetworkError{
		Operation: "open send socket",
		Err:       errors.New("address in use"),
		Details:   "group 224.0.0.224:7447",
		Class:     ClassResource,
	}

	want := "network error during open send socket (group 224.0.0.224:7447): address in use"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(err, err.Err) {
		t.Error("errors.Is(err, err.Err) = false, want true")
	}
}

func TestIsTransientIsFatal(t *testing.T) {
	timeout := &NetworkError{Operation: "read", Err: ErrTimeout, Class: ClassTransient}
	if !IsTransient(timeout) {
		t.Error("IsTransient(timeout) = false, want true")
	}
	if IsFatal(timeout) {
		t.Error("IsFatal(timeout) = true, want false")
	}

	reset := &NetworkError{Operation: "read", Err: errors.New("connection reset"), Class: ClassFatal}
	if !IsFatal(reset) {
		t.Error("IsFatal(reset) = false, want true")
	}
	if IsTransient(reset) {
		t.Error("IsTransient(reset) = true, want false")
	}
}

func TestClass_String(t *testing.T) {
	for class, want := range map[Class]string{
		ClassUnknown:   "unknown",
		ClassParse:     "parse",
		ClassResource:  "resource",
		ClassTransient: "transient",
		ClassFatal:     "fatal",
		ClassState:     "state",
	} {
		if got := class.String(); got != want {
			t.Errorf("Class(%d).String() = %q, want %q", class, got, want)
		}
	}
}
