package dgram

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"
)

func newTestPair(t *testing.T) (*Port, *Port) {
	t.Helper()
	connA, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	connB, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	a, err := FromConn(connA, connB.LocalAddr().(*net.UDPAddr).AddrPort())
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromConn(connB, connA.LocalAddr().(*net.UDPAddr).AddrPort())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestPortExchange(t *testing.T) {
	a, b := newTestPair(t)
	msg := []byte("ping")
	n, err := a.Send(msg)
	if err != nil {
		t.Fatal(err)
	} else if n != len(msg) {
		t.Fatal("short send:", n)
	}
	var buf [64]byte
	n, err = b.Recv(buf[:], time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("received %q", buf[:n])
	}
}

func TestRecvTimeout(t *testing.T) {
	a, _ := newTestPair(t)
	const timeout = 20 * time.Millisecond
	start := time.Now()
	var buf [64]byte
	_, err := a.Recv(buf[:], timeout)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatal("expected deadline error, got", err)
	}
	if elapsed := time.Since(start); elapsed < timeout {
		t.Fatal("returned before the timeout:", elapsed)
	}
}

// A zero timeout must still pick up a datagram that is already queued.
func TestRecvImmediatePoll(t *testing.T) {
	a, b := newTestPair(t)
	if _, err := a.Send([]byte("queued")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond) // let the datagram land in b's socket buffer
	var buf [64]byte
	n, err := b.Recv(buf[:], 0)
	if err != nil {
		t.Fatal("zero-timeout poll missed a queued datagram:", err)
	}
	if string(buf[:n]) != "queued" {
		t.Fatalf("received %q", buf[:n])
	}
	// An empty queue polls out almost immediately.
	start := time.Now()
	if _, err = b.Recv(buf[:], 0); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatal("expected deadline error on empty queue, got", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatal("zero-timeout poll blocked:", elapsed)
	}
}

// Datagrams from senders other than the fixed remote are discarded.
func TestForeignSenderDropped(t *testing.T) {
	a, b := newTestPair(t)
	foreign, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer foreign.Close()
	if _, err := foreign.WriteToUDP([]byte("intruder"), net.UDPAddrFromAddrPort(a.LocalAddr())); err != nil {
		t.Fatal(err)
	}
	var buf [64]byte
	if _, err := a.Recv(buf[:], 50*time.Millisecond); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatal("foreign datagram was not dropped:", err)
	}
	// The legitimate peer still gets through.
	if _, err := b.Send([]byte("peer")); err != nil {
		t.Fatal(err)
	}
	n, err := a.Recv(buf[:], time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "peer" {
		t.Fatalf("received %q", buf[:n])
	}
}

func TestClosedPort(t *testing.T) {
	a, _ := newTestPair(t)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	var buf [16]byte
	if _, err := a.Recv(buf[:], time.Second); !errors.Is(err, net.ErrClosed) {
		t.Fatal("recv on closed port:", err)
	}
	if _, err := a.Send([]byte("x")); !errors.Is(err, net.ErrClosed) {
		t.Fatal("send on closed port:", err)
	}
}

func TestOpenRejectsInvalidRemote(t *testing.T) {
	if _, err := Open(netip.AddrPort{}, netip.AddrPort{}); err == nil {
		t.Fatal("expected error for invalid remote")
	}
	if _, err := FromConn(nil, netip.MustParseAddrPort("127.0.0.1:9")); err == nil {
		t.Fatal("expected error for nil conn")
	}
}
