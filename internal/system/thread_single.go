//go:build picolink_singlethread

package system

// MultiThread reports whether the threading primitives are available in this
// build. Single-threaded targets drive the session cycle from one polling loop.
const MultiThread = false
