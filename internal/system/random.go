package system

import "encoding/binary"

// RandomFill fills buf with cryptographically secure random bytes. It blocks
// until the platform entropy source can satisfy the request.
func RandomFill(buf []byte) {
	fillRandom(buf)
}

// RandomU8 returns a random uint8.
func RandomU8() uint8 {
	var b [1]byte
	fillRandom(b[:])
	return b[0]
}

// RandomU16 returns a random uint16.
func RandomU16() uint16 {
	var b [2]byte
	fillRandom(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

// RandomU32 returns a random uint32.
func RandomU32() uint32 {
	var b [4]byte
	fillRandom(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// RandomU64 returns a random uint64.
func RandomU64() uint64 {
	var b [8]byte
	fillRandom(b[:])
	return binary.LittleEndian.Uint64(b[:])
}
