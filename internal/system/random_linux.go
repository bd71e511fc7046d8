//go:build linux

package system

import (
	"crypto/rand"

	"golang.org/x/sys/unix"
)

// fillRandom reads from the kernel entropy pool with getrandom(2), retrying
// on EINTR and short reads. Kernels older than 3.17 lack the syscall; those
// fall back to crypto/rand.
func fillRandom(buf []byte) {
	for len(buf) > 0 {
		n, err := unix.Getrandom(buf, 0)
		if err == unix.ENOSYS {
			fillCrypto(buf)
			return
		}
		if err != nil || n <= 0 {
			continue
		}
		buf = buf[n:]
	}
}

func fillCrypto(buf []byte) {
	for len(buf) > 0 {
		n, err := rand.Read(buf)
		if err != nil {
			continue
		}
		buf = buf[n:]
	}
}
