// Package modem holds what the serial device sessions share: the Session
// contract, the error taxonomy and small line helpers.
package modem

import (
	"bytes"
	"strings"
)

// Session is a protocol session bound to one device
type Session interface {
	// Update drains the bytes currently available and dispatches complete
	// frames. It never blocks and reports whether new data for the caller arrived.
	Update() bool
	// Pending reports whether a request still waits for its response
	Pending() bool
}

// TrimCRLF strips line terminators from both ends
func TrimCRLF(s string) string {
	return strings.Trim(s, "\r\n")
}

// Line returns b as string without a trailing NUL padding and line terminators
func Line(b []byte) string {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		b = b[:n]
	}

	return TrimCRLF(string(b))
}
