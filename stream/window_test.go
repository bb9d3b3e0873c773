package stream

import (
	"math/rand"
	"testing"
)

func TestSegmentQueueOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	var q segmentQueue
	const n = 100
	for _, seq := range rng.Perm(n) {
		q.Push(&segment{seq: uint64(seq)})
	}
	if q.Len() != n {
		t.Fatal("queue length", q.Len())
	}
	for want := uint64(0); want < n; want++ {
		if head := q.Peek(); head.seq != want {
			t.Fatal("peek out of order:", head.seq)
		}
		if seg := q.Pop(); seg.seq != want {
			t.Fatal("pop out of order:", seg.seq)
		}
	}
	if q.Pop() != nil || q.Peek() != nil {
		t.Fatal("drained queue must return nil")
	}
}

func TestSegmentQueueReinsert(t *testing.T) {
	var q segmentQueue
	q.Push(&segment{seq: 10})
	q.Push(&segment{seq: 20})
	// The retransmit driver pops the head, inspects it and reinserts it
	// untouched when unexpired; ordering must survive the reshuffle.
	head := q.Pop()
	q.Push(head)
	if got := q.Pop(); got.seq != 10 {
		t.Fatal("reinserted head lost its position:", got.seq)
	}
	if got := q.Pop(); got.seq != 20 {
		t.Fatal("tail disturbed:", got.seq)
	}
}
