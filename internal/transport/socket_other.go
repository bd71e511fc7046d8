//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package transport

// setSocketOptions is a no-op on platforms without SO_REUSEPORT; only one
// receive socket per group port can exist there.
func setSocketOptions(uintptr) error {
	return nil
}
