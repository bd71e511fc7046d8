//go:build !linux

package system

import "crypto/rand"

// fillRandom uses the platform CSPRNG (arc4random on BSD/macOS,
// ProcessPrng on Windows) through crypto/rand.
func fillRandom(buf []byte) {
	for len(buf) > 0 {
		n, err := rand.Read(buf)
		if err != nil {
			continue
		}
		buf = buf[n:]
	}
}
