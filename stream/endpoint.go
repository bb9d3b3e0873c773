package stream

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/teserk/rudp/dgram"
	"github.com/teserk/rudp/internal"
)

// Endpoint is one side of a connected peer pair. It owns a single [PacketPort]
// and encapsulates the whole reliability engine: cumulative acknowledgements,
// the sliding send/receive windows and retransmission timing, interleaved in a
// single blocking loop.
//
// Both peers come up symmetrically with all stream counters at zero; there is
// no establishment handshake. An Endpoint is not safe for concurrent use: all
// operations are strictly serial.
type Endpoint struct {
	port PacketPort
	cfg  Config

	// sentBytes counts payload bytes ever handed to the port (monotonic).
	sentBytes uint64
	// confirmedBytes is the highest cumulative ACK observed from the peer.
	// Always confirmedBytes <= sentBytes.
	confirmedBytes uint64
	// receivedBytes counts in-order payload bytes delivered from the peer to
	// the receive buffer (monotonic).
	receivedBytes uint64

	// sendWindow holds every sent segment with seq >= confirmedBytes.
	sendWindow segmentQueue
	// recvWindow parks non-empty received segments with seq > receivedBytes.
	recvWindow segmentQueue
	// recvBuf holds delivered-but-not-yet-read bytes of the peer's stream.
	recvBuf bytes.Buffer

	scratchTx []byte
	scratchRx []byte
	closed    bool
	logger
}

// NewEndpoint builds an Endpoint over an existing packet port. The zero
// [Config] selects the documented defaults.
func NewEndpoint(port PacketPort, cfg Config) (*Endpoint, error) {
	if port == nil {
		return nil, errNilPort
	}
	cfg = cfg.withDefaults()
	e := &Endpoint{
		port:      port,
		cfg:       cfg,
		scratchTx: make([]byte, sizeHeader+cfg.MaxSegmentSize),
		scratchRx: make([]byte, sizeHeader+cfg.MaxSegmentSize),
	}
	e.logger.log = cfg.Logger
	return e, nil
}

// Open binds a UDP port to local, fixes remote as the peer and returns an
// Endpoint over it. Both addresses are fixed for the Endpoint's lifetime.
func Open(local, remote netip.AddrPort, cfg Config) (*Endpoint, error) {
	port, err := dgram.Open(local, remote)
	if err != nil {
		return nil, err
	}
	return NewEndpoint(port, cfg)
}

// Submit hands data to the engine and returns once every byte has been
// submitted and confirmed by the peer, or once the consecutive failed ACK
// poll cap is reached, in which case it returns the count of bytes handed to
// the port so far alongside [ErrPeerUnresponsive]. The endpoint remains
// usable after a partial return; re-submitting the remainder continues the
// stream where it left off.
//
// Submit(nil) and Submit of an empty slice return 0 without touching the
// network when nothing is in flight. While earlier bytes are still
// unconfirmed they keep driving the loop until those bytes are confirmed or
// the poll cap is reached, returning 0 and, in the latter case,
// [ErrPeerUnresponsive].
func (e *Endpoint) Submit(data []byte) (int, error) {
	if e.closed {
		return 0, net.ErrClosed
	}
	e.trace("submit:start", slog.Int("len", len(data)))
	submitted := 0
	attempts := 0
	for (len(data) > 0 || e.confirmedBytes < e.sentBytes) && attempts < e.cfg.MaxPollAttempts {
		windowLocked := e.sentBytes-e.confirmedBytes > uint64(e.cfg.WindowSize)
		if !windowLocked && len(data) > 0 {
			end := min(e.cfg.MaxSegmentSize, len(data))
			seg := &segment{
				seq:     e.sentBytes,
				ack:     e.receivedBytes,
				payload: bytes.Clone(data[:end]),
			}
			n, err := e.emit(seg)
			if err != nil {
				return submitted, err
			}
			data = data[n:]
			submitted += n
			// Opportunistic poll keeps the loop responsive to ACKs without a
			// second thread; without it the window fills before the ACKs that
			// would unlock it are seen.
			if _, err := e.poll(0); err != nil {
				return submitted, err
			}
		} else {
			got, err := e.poll(e.cfg.AckTimeout)
			if err != nil {
				return submitted, err
			}
			if got {
				attempts = 0
			} else {
				attempts++
			}
		}
		if err := e.resendOldest(); err != nil {
			return submitted, err
		}
	}
	if len(data) > 0 || e.confirmedBytes < e.sentBytes {
		e.info("submit:gave-up",
			slog.Int("submitted", submitted),
			slog.Uint64("unconfirmed", e.sentBytes-e.confirmedBytes),
		)
		return submitted, ErrPeerUnresponsive
	}
	e.traceCounters("submit:done")
	return submitted, nil
}

// Consume returns exactly n in-order bytes of the peer's stream, blocking on
// the port for as long as it takes. Consume(0) returns immediately with an
// empty slice. The returned error is non-nil only when the port fails hard,
// in which case the bytes read so far accompany it.
func (e *Endpoint) Consume(n int) ([]byte, error) {
	if e.closed {
		return nil, net.ErrClosed
	}
	out := make([]byte, 0, max(n, 0))
	if n <= 0 {
		return out, nil
	}
	out = e.drainRecvBuf(out, n)
	for len(out) < n {
		if _, err := e.poll(-1); err != nil {
			return out, err
		}
		out = e.drainRecvBuf(out, n)
	}
	e.traceCounters("consume:done")
	return out, nil
}

func (e *Endpoint) drainRecvBuf(out []byte, want int) []byte {
	take := min(want-len(out), e.recvBuf.Len())
	if take > 0 {
		out = append(out, e.recvBuf.Next(take)...)
	}
	return out
}

// Write implements [io.Writer] over [Endpoint.Submit].
func (e *Endpoint) Write(b []byte) (int, error) {
	return e.Submit(b)
}

// Read implements [io.Reader]: it blocks until at least one byte of the
// peer's stream is available and returns what is buffered, up to len(b).
// Unlike [Endpoint.Consume] it may return short.
func (e *Endpoint) Read(b []byte) (int, error) {
	if e.closed {
		return 0, net.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	for e.recvBuf.Len() == 0 {
		if _, err := e.poll(-1); err != nil {
			return 0, err
		}
	}
	return e.recvBuf.Read(b)
}

// Close releases the datagram port. Subsequent operations fail with an error
// satisfying errors.Is(err, net.ErrClosed). Bytes still in flight are lost;
// there is no close handshake.
func (e *Endpoint) Close() error {
	if e.closed {
		return net.ErrClosed
	}
	e.closed = true
	e.debug("endpoint:close")
	return e.port.Close()
}

// SentBytes returns the count of payload bytes ever handed to the port,
// including bytes not yet confirmed by the peer.
func (e *Endpoint) SentBytes() uint64 { return e.sentBytes }

// ConfirmedBytes returns the highest cumulative ACK observed from the peer.
func (e *Endpoint) ConfirmedBytes() uint64 { return e.confirmedBytes }

// ReceivedBytes returns the count of in-order payload bytes delivered from
// the peer into the receive buffer, whether or not they have been read.
func (e *Endpoint) ReceivedBytes() uint64 { return e.receivedBytes }

// BufferedInput returns the number of delivered bytes available to read
// without touching the network.
func (e *Endpoint) BufferedInput() int { return e.recvBuf.Len() }

// InFlight returns the number of sent segments not yet swept past by the
// peer's cumulative ACK.
func (e *Endpoint) InFlight() int { return e.sendWindow.Len() }

// poll receives and processes at most one datagram under the given timeout.
// It reports whether a datagram arrived. A timeout is not an error. Malformed
// datagrams shorter than the segment header are dropped silently: there is no
// backchannel to report them on.
func (e *Endpoint) poll(timeout time.Duration) (bool, error) {
	n, err := e.port.Recv(e.scratchRx, timeout)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	sfrm, err := NewFrame(e.scratchRx[:n])
	if err != nil {
		e.debug("rx:malformed", slog.Int("len", n))
		return true, nil
	}
	if e.logenabled(internal.LevelTrace) {
		e.trace("rx:segment", slog.String("frame", sfrm.String()))
	}
	// Every segment is an ACK carrier, payload-bearing or not.
	if ack := sfrm.Ack(); ack > e.confirmedBytes {
		e.confirmedBytes = ack
		e.sweepSendWindow()
	}
	if payload := sfrm.Payload(); len(payload) > 0 {
		e.recvWindow.Push(&segment{
			seq:     sfrm.Seq(),
			ack:     sfrm.Ack(),
			payload: bytes.Clone(payload),
		})
		if err := e.sweepRecvWindow(); err != nil {
			return true, err
		}
	}
	return true, nil
}

// emit encodes seg and hands it to the port. The port reports how many bytes
// it actually transmitted; the service length is subtracted to obtain payload
// bytes truly in flight, and a short datagram send truncates the parked
// payload to that count so the window never claims bytes the network never
// saw. New segments advance sentBytes; retransmissions, sequenced strictly
// below sentBytes, do not. Non-empty segments are (re)inserted into the send
// window with a fresh transmission timestamp.
func (e *Endpoint) emit(seg *segment) (int, error) {
	total := sizeHeader + len(seg.payload)
	sfrm, err := NewFrame(e.scratchTx[:total])
	if err != nil {
		return 0, err
	}
	sfrm.SetSeq(seg.seq)
	sfrm.SetAck(seg.ack)
	copy(sfrm.Payload(), seg.payload)
	n, err := e.port.Send(sfrm.RawData())
	if err != nil {
		return 0, err
	}
	justSent := n - sizeHeader
	if justSent < 0 {
		justSent = 0
	}
	switch {
	case seg.seq == e.sentBytes:
		e.sentBytes += uint64(justSent)
	case seg.seq > e.sentBytes:
		e.error("emit:beyond-sent", slog.Uint64("seq", seg.seq), slog.Uint64("sent", e.sentBytes))
		return 0, ErrInvariantViolation
	}
	if len(seg.payload) > 0 {
		seg.payload = seg.payload[:justSent]
		seg.sentAt = time.Now()
		e.sendWindow.Push(seg)
	}
	return justSent, nil
}

// sweepSendWindow drains fully acknowledged segments off the head of the send
// window in one pass: every segment sequenced below confirmedBytes is
// discarded, and the first survivor is put back untouched.
func (e *Endpoint) sweepSendWindow() {
	for {
		seg := e.sendWindow.Pop()
		if seg == nil {
			return
		}
		if seg.seq >= e.confirmedBytes {
			e.sendWindow.Push(seg)
			return
		}
	}
}

// sweepRecvWindow repeatedly pops the lowest-seq pending segment: stale
// duplicates are discarded, the segment matching receivedBytes is delivered
// to the receive buffer, and the first future segment is parked again. If any
// segment was examined a pure ACK carrying the updated counters goes out,
// stale-duplicate-only passes included; the ACK is correct either way and
// doubles as a retransmit hint to the peer.
func (e *Endpoint) sweepRecvWindow() error {
	swept := false
	for {
		seg := e.recvWindow.Pop()
		if seg == nil {
			break
		}
		swept = true
		if seg.seq < e.receivedBytes {
			e.trace("rx:stale", slog.Uint64("seq", seg.seq))
			continue
		}
		if seg.seq > e.receivedBytes {
			e.recvWindow.Push(seg)
			break
		}
		e.recvBuf.Write(seg.payload)
		e.receivedBytes += uint64(len(seg.payload))
		e.trace("rx:delivered", slog.Uint64("seq", seg.seq), slog.Int("len", len(seg.payload)))
	}
	if !swept {
		return nil
	}
	_, err := e.emit(&segment{seq: e.sentBytes, ack: e.receivedBytes})
	return err
}

// resendOldest pops the head of the send window and retransmits it if its age
// exceeds the ACK timeout, else reinserts it untouched. The fixed timeout is
// the sole retransmission trigger; unexpired segments are never resent.
func (e *Endpoint) resendOldest() error {
	seg := e.sendWindow.Pop()
	if seg == nil {
		return nil
	}
	if time.Since(seg.sentAt) > e.cfg.AckTimeout {
		e.debug("retransmit", slog.Uint64("seq", seg.seq), slog.Int("len", len(seg.payload)))
		_, err := e.emit(seg)
		return err
	}
	e.sendWindow.Push(seg)
	return nil
}
