// Package transport abstracts the byte streams the modem sessions talk over.
package transport

import "io"

// Transport is a byte stream to a single device. Reads never block: Available
// reports how many bytes can be read right now and Read returns at most that
// many. Write errors are returned as is, the sessions never retry.
type Transport interface {
	io.ReadWriter

	// Available returns the number of bytes readable without blocking
	Available() int
	// Clear drops everything received but not read yet
	Clear() error
}
