package transport

import "sync"

// maxDatagram is the largest UDP payload over IPv4.
const maxDatagram = 65507

// bufferPool holds datagram-sized scratch buffers for the receive path so
// that steady-state reads do not allocate.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxDatagram)
		return &buf
	},
}

// GetBuffer takes a scratch buffer from the pool. Return it with PutBuffer.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}
