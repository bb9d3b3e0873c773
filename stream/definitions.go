// Package stream implements a reliable, ordered byte-stream transport over an
// unreliable datagram substrate. Every byte handed to one peer's
// [Endpoint.Submit] appears exactly once and in order in the other peer's
// [Endpoint.Consume] output despite datagram loss, duplication and reordering.
//
// The engine is single threaded with cooperative blocking I/O: an Endpoint
// owns exactly one [PacketPort] and is not safe for concurrent use.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teserk/rudp"
)

var (
	// ErrMalformedSegment reports a datagram shorter than the segment header.
	// Returned by [NewFrame]; the engine drops such datagrams silently since
	// there is no backchannel to report them on. Matches
	// [rudp.ErrShortBuffer] under errors.Is.
	ErrMalformedSegment = fmt.Errorf("stream: malformed segment: %w", rudp.ErrShortBuffer)
	// ErrPeerUnresponsive is returned by [Endpoint.Submit] alongside the
	// partial byte count when the consecutive failed ACK poll cap is reached.
	// The endpoint remains usable; the caller may re-submit the remainder.
	ErrPeerUnresponsive = errors.New("stream: peer unresponsive")
	// ErrInvariantViolation reports corrupted internal bookkeeping, such as an
	// in-flight segment sequenced beyond the sent-bytes counter. An endpoint
	// that returned it should be considered poisoned.
	ErrInvariantViolation = errors.New("stream: invariant violation")

	errNilPort = errors.New("stream: nil packet port")
)

// Defaults applied by [Config.withDefaults] for zero-valued fields.
const (
	// DefaultMaxSegmentSize is the default maximum payload carried by a single segment.
	DefaultMaxSegmentSize = 1500
	// DefaultWindowScale is the default window size expressed in segments: the
	// window in bytes is DefaultWindowScale*MaxSegmentSize.
	DefaultWindowScale = 12
	// DefaultAckTimeout bounds ACK waits and is the sole retransmission trigger.
	DefaultAckTimeout = 10 * time.Millisecond
	// DefaultMaxPollAttempts is how many consecutive failed ACK polls a Submit
	// call tolerates before giving up with partial progress.
	DefaultMaxPollAttempts = 20
)

// PacketPort is the datagram substrate an [Endpoint] runs over: an
// address-bound send/receive primitive connected to a single fixed remote.
//
// Send transmits b as one datagram and returns the byte count actually handed
// to the network, which may be short. Recv fills b with a single datagram:
// a negative timeout blocks, zero polls for an already-queued datagram, and a
// positive timeout bounds the wait. A timed-out Recv returns an error
// satisfying errors.Is(err, os.ErrDeadlineExceeded); a closed port returns
// errors satisfying errors.Is(err, net.ErrClosed).
type PacketPort interface {
	Send(b []byte) (int, error)
	Recv(b []byte, timeout time.Duration) (int, error)
	Close() error
}

// Config parametrizes an [Endpoint]. The zero value selects the defaults.
type Config struct {
	// MaxSegmentSize is the maximum payload bytes carried per segment. Default 1500.
	MaxSegmentSize int
	// WindowSize is the window lock threshold in bytes: new payload is not
	// emitted while sent-but-unconfirmed bytes exceed it.
	// Default 12*MaxSegmentSize.
	WindowSize int
	// AckTimeout bounds ACK waits inside Submit and is the age past which the
	// oldest in-flight segment is retransmitted. Default 10ms.
	AckTimeout time.Duration
	// MaxPollAttempts is the consecutive failed ACK poll cap per Submit call.
	// Default 20.
	MaxPollAttempts int
	// Logger receives engine events. Nil disables logging.
	Logger *slog.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxSegmentSize <= 0 {
		cfg.MaxSegmentSize = DefaultMaxSegmentSize
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowScale * cfg.MaxSegmentSize
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}
	return cfg
}

// segment is an in-flight or pending unit of the byte stream. seq is the
// stream offset of the first payload byte from the sender's perspective; ack
// is the next offset the sender expected from its peer when the segment was
// built. A zero-payload segment is a pure ACK and is never parked in a window.
type segment struct {
	seq     uint64
	ack     uint64
	payload []byte
	// sentAt is the wall-clock moment of the most recent transmission.
	sentAt time.Time
}

func (seg *segment) String() string {
	return fmt.Sprintf("seg seq=%d ack=%d len=%d", seg.seq, seg.ack, len(seg.payload))
}
