package orderbook

import (
	"container/heap"
	"testing"
)

func TestTickHeapOrdering(t *testing.T) {
	bids := newBidHeap()
	asks := newAskHeap()
	for _, tick := range []int64{15000000, 10000000, 20000000} {
		heap.Push(bids, tick)
		heap.Push(asks, tick)
	}

	if got := bids.Peek(); got != 20000000 {
		t.Errorf("best bid tick = %d, want 20000000", got)
	}
	if got := asks.Peek(); got != 10000000 {
		t.Errorf("best ask tick = %d, want 10000000", got)
	}

	heap.Pop(asks)
	if got := asks.Peek(); got != 15000000 {
		t.Errorf("ask tick after pop = %d, want 15000000", got)
	}
}

func TestTickHeapRemove(t *testing.T) {
	bids := newBidHeap()
	for _, tick := range []int64{15000000, 10000000, 20000000} {
		heap.Push(bids, tick)
	}

	bids.remove(15000000)
	if got := bids.Len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
	if got := heap.Pop(bids).(int64); got != 20000000 {
		t.Errorf("first pop = %d, want 20000000", got)
	}
	if got := heap.Pop(bids).(int64); got != 10000000 {
		t.Errorf("second pop = %d, want 10000000", got)
	}

	// Removing an absent tick is a no-op.
	bids.remove(99)
	if got := bids.Len(); got != 0 {
		t.Errorf("len = %d, want 0", got)
	}
}

func TestTickHeapPeekEmpty(t *testing.T) {
	if got := newAskHeap().Peek(); got != 0 {
		t.Errorf("empty peek = %d, want 0", got)
	}
}
