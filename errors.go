// Package rudp implements a reliable, ordered byte-stream transport layered
// over UDP datagrams. The wire format and reliability engine live in the
// stream package; the dgram package provides the datagram port the engine
// runs over.
package rudp

import "errors"

// Generic errors shared by rudp subpackages.
var (
	// ErrShortBuffer is returned when a buffer is too small to hold a segment header.
	ErrShortBuffer = errors.New("rudp: short buffer")
)
