// Package dgram provides an address-bound UDP datagram port with a settable
// receive timeout. It is the substrate the stream package's reliability
// engine runs over: one local endpoint, one fixed remote endpoint.
package dgram

import (
	"net"
	"net/netip"
	"time"

	"github.com/pkg/errors"
)

var (
	errInvalidLocal  = errors.New("dgram: invalid local address")
	errInvalidRemote = errors.New("dgram: invalid remote address")
)

// immediatePollWindow substitutes for a zero receive timeout. Go fails reads
// whose deadline has already passed without attempting the read, so a true
// zero deadline would never pick up a datagram that is already queued.
const immediatePollWindow = 500 * time.Microsecond

// Port is a UDP socket bound to a local address and fixed to a single remote
// peer. Neither address may change over the Port's lifetime. Datagrams
// arriving from other senders are discarded.
//
// Receive timeout semantics of [Port.Recv]:
//   - timeout < 0 blocks until a datagram arrives or the port is closed.
//   - timeout == 0 polls for an already-queued datagram and returns almost
//     immediately otherwise.
//   - timeout > 0 waits at most that long.
//
// A timed-out Recv returns an error satisfying
// errors.Is(err, os.ErrDeadlineExceeded). Operations on a closed Port return
// errors satisfying errors.Is(err, net.ErrClosed).
type Port struct {
	conn   *net.UDPConn
	remote netip.AddrPort
	raddr  *net.UDPAddr
}

// Open binds a UDP socket to local and fixes remote as the only peer the
// returned Port exchanges datagrams with.
func Open(local, remote netip.AddrPort) (*Port, error) {
	if !remote.IsValid() || remote.Port() == 0 {
		return nil, errInvalidRemote
	}
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(local))
	if err != nil {
		return nil, errors.Wrap(err, "dgram: bind")
	}
	return FromConn(conn, remote)
}

// FromConn builds a Port over an already-bound UDP socket. Useful when the
// caller needs to know its ephemeral local address before the peer's address
// can be derived, as in tests binding two sockets to port 0.
func FromConn(conn *net.UDPConn, remote netip.AddrPort) (*Port, error) {
	if conn == nil {
		return nil, errInvalidLocal
	}
	if !remote.IsValid() || remote.Port() == 0 {
		return nil, errInvalidRemote
	}
	remote = netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port())
	return &Port{
		conn:   conn,
		remote: remote,
		raddr:  net.UDPAddrFromAddrPort(remote),
	}, nil
}

// LocalAddr returns the bound local address of the port.
func (p *Port) LocalAddr() netip.AddrPort {
	return p.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// RemoteAddr returns the fixed remote address of the port.
func (p *Port) RemoteAddr() netip.AddrPort { return p.remote }

// Send transmits b as a single datagram to the fixed remote address and
// returns the number of bytes handed to the network.
func (p *Port) Send(b []byte) (int, error) {
	n, err := p.conn.WriteToUDP(b, p.raddr)
	if err != nil {
		return n, errors.Wrap(err, "dgram: send")
	}
	return n, nil
}

// Recv receives a single datagram from the fixed remote into b under the
// timeout semantics documented on [Port]. Datagrams from other senders are
// dropped; the deadline set on entry is not extended for them, so it bounds
// the whole call.
func (p *Port) Recv(b []byte, timeout time.Duration) (int, error) {
	var deadline time.Time
	switch {
	case timeout < 0:
		// deadline stays zero: block.
	case timeout == 0:
		deadline = time.Now().Add(immediatePollWindow)
	default:
		deadline = time.Now().Add(timeout)
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, errors.Wrap(err, "dgram: set deadline")
	}
	for {
		n, addr, err := p.conn.ReadFromUDP(b)
		if err != nil {
			return 0, err
		}
		from := addr.AddrPort()
		if netip.AddrPortFrom(from.Addr().Unmap(), from.Port()) == p.remote {
			return n, nil
		}
	}
}

// Close releases the underlying socket. Blocked Recv calls return with an
// error satisfying errors.Is(err, net.ErrClosed).
func (p *Port) Close() error {
	return p.conn.Close()
}
