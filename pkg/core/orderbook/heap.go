package orderbook

import "container/heap"

// tickHeap tracks the live price ticks of one book side so the best
// level is an O(1) peek. The comparison decides which end is "best":
// highest tick for bids, lowest for asks. Mutate through
// container/heap (Push, Pop) or remove.
type tickHeap struct {
	ticks []int64
	less  func(a, b int64) bool
}

// newBidHeap keeps the highest tick on top.
func newBidHeap() *tickHeap {
	return &tickHeap{less: func(a, b int64) bool { return a > b }}
}

// newAskHeap keeps the lowest tick on top.
func newAskHeap() *tickHeap {
	return &tickHeap{less: func(a, b int64) bool { return a < b }}
}

func (h *tickHeap) Len() int           { return len(h.ticks) }
func (h *tickHeap) Less(i, j int) bool { return h.less(h.ticks[i], h.ticks[j]) }
func (h *tickHeap) Swap(i, j int)      { h.ticks[i], h.ticks[j] = h.ticks[j], h.ticks[i] }

func (h *tickHeap) Push(x interface{}) {
	h.ticks = append(h.ticks, x.(int64))
}

func (h *tickHeap) Pop() interface{} {
	old := h.ticks
	n := len(old)
	x := old[n-1]
	h.ticks = old[:n-1]
	return x
}

// Peek returns the top tick without removing it.
func (h *tickHeap) Peek() int64 {
	if len(h.ticks) == 0 {
		return 0
	}
	return h.ticks[0]
}

// remove drops an arbitrary tick, O(L). Only cancellation needs this;
// matching always pops the top.
func (h *tickHeap) remove(t int64) {
	for i, tick := range h.ticks {
		if tick == t {
			heap.Remove(h, i)
			return
		}
	}
}
