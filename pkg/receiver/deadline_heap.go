package receiver

import (
	"container/heap"
	"time"
)

// deadlineEntry schedules either an assembly timeout or the purge of a
// closed-burst marker. One shared heap keys every pending deadline, so the
// receive loop can bound its socket wait by the earliest one.
type deadlineEntry struct {
	at      time.Time
	burstID uint64
	purge   bool
}

type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)        { *h = append(*h, x.(deadlineEntry)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h *deadlineHeap) push(e deadlineEntry) {
	heap.Push(h, e)
}

func (h *deadlineHeap) peek() (deadlineEntry, bool) {
	if len(*h) == 0 {
		return deadlineEntry{}, false
	}
	return (*h)[0], true
}

func (h *deadlineHeap) pop() deadlineEntry {
	return heap.Pop(h).(deadlineEntry)
}
