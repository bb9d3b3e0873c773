package stream

import (
	"encoding/binary"
	"fmt"
)

const (
	// sizeHeader is the fixed service length of every segment on the wire:
	// two 64-bit big-endian unsigned counters.
	sizeHeader = 8 + 8
)

// NewFrame returns a new Frame with data set to buf.
// [ErrMalformedSegment] is returned if the buffer is smaller than the 16 byte
// header. The codec never validates seq or ack against endpoint state; that
// is the caller's responsibility.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{buf: nil}, ErrMalformedSegment
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of one on-wire segment and provides methods
// for manipulating and retrieving its fields and payload. Layout:
//
//	8 bytes big-endian seq ‖ 8 bytes big-endian ack ‖ 0..MaxSegmentSize payload
//
// There is no length field (derived from datagram size), no flags and no
// checksum beyond what the datagram substrate provides.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (sfrm Frame) RawData() []byte { return sfrm.buf }

// Seq returns the stream offset of the first payload byte from the sender's
// perspective.
func (sfrm Frame) Seq() uint64 {
	return binary.BigEndian.Uint64(sfrm.buf[0:8])
}

// SetSeq sets the seq field. See [Frame.Seq].
func (sfrm Frame) SetSeq(v uint64) {
	binary.BigEndian.PutUint64(sfrm.buf[0:8], v)
}

// Ack returns the cumulative acknowledgement: the next stream offset the
// sender of the frame expects to receive from its peer. Every frame is an ACK
// carrier, whether or not it carries payload.
func (sfrm Frame) Ack() uint64 {
	return binary.BigEndian.Uint64(sfrm.buf[8:16])
}

// SetAck sets the ack field. See [Frame.Ack].
func (sfrm Frame) SetAck(v uint64) {
	binary.BigEndian.PutUint64(sfrm.buf[8:16], v)
}

// Payload returns the payload section of the frame. It may be empty, in which
// case the frame is a pure ACK.
func (sfrm Frame) Payload() []byte {
	return sfrm.buf[sizeHeader:]
}

// IsPureACK reports whether the frame carries no payload.
func (sfrm Frame) IsPureACK() bool { return len(sfrm.buf) == sizeHeader }

// ClearHeader zeros out the header contents.
func (sfrm Frame) ClearHeader() {
	for i := range sfrm.buf[:sizeHeader] {
		sfrm.buf[i] = 0
	}
}

func (sfrm Frame) String() string {
	return fmt.Sprintf("STREAM seq=%d ack=%d len=%d", sfrm.Seq(), sfrm.Ack(), len(sfrm.Payload()))
}
