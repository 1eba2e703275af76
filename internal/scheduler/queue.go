package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/me/autograde/pkg/model"
)

type queued struct {
	item       WorkItem
	ticket     *Ticket
	seq        uint64
	enqueuedAt time.Time
	index      int
}

// itemHeap orders by priority, then SubmittedAt, then enqueue sequence.
type itemHeap []*queued

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.item.Priority != b.item.Priority {
		return a.item.Priority.Before(b.item.Priority)
	}
	if !a.item.SubmittedAt.Equal(b.item.SubmittedAt) {
		return a.item.SubmittedAt.Before(b.item.SubmittedAt)
	}
	return a.seq < b.seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	q := x.(*queued)
	q.index = len(*h)
	*h = append(*h, q)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	q := old[n-1]
	old[n-1] = nil
	q.index = -1
	*h = old[:n-1]
	return q
}

// Queue is a priority queue of work items, safe for concurrent use.
type Queue struct {
	mu  sync.Mutex
	h   itemHeap
	seq uint64
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push adds an entry and stamps its sequence number.
func (q *Queue) Push(e *queued) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e.seq = q.seq
	heap.Push(&q.h, e)
}

// Pop removes the highest priority entry, or returns nil if empty.
func (q *Queue) Pop() *queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*queued)
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Counts returns the number of queued entries per priority.
func (q *Queue) Counts() map[model.PriorityLevel]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := map[model.PriorityLevel]int{
		model.PriorityAuthenticated: 0,
		model.PriorityAnonymous:     0,
	}
	for _, e := range q.h {
		out[e.item.Priority]++
	}
	return out
}

// Drain removes and returns every entry in dispatch order.
func (q *Queue) Drain() []*queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*queued, 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(*queued))
	}
	return out
}
