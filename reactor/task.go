package reactor

// Task is a unit of work submitted to a Reactor. It must not block: a
// blocking task stalls every channel owned by that reactor (spec §5
// "Suspension points").
type Task = func()

// timerEntry is a single scheduled task, ordered by deadline. Matches the
// teacher's timerHeap (eventloop/loop.go), generalized with a cancellation
// flag so cancelling a timer doesn't require a heap mutation from outside
// the reactor goroutine (spec §5 "cancellation does not remove them from the
// heap immediately - the reactor discards them on pop").
type timerEntry struct {
	deadline  int64 // UnixNano
	seq       uint64
	task      Task
	cancelled bool
}

// timerHeap is a min-heap of timerEntry ordered by deadline, then sequence
// number for FIFO tie-breaking. Only ever touched on the reactor goroutine.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
