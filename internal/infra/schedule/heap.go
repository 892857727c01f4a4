package schedule

import (
	"sync"
	"time"
)

// scheduledTask is one pending schedule_reevaluation entry (§4.8).
type scheduledTask struct {
	deadline time.Time
	pre      func()
	run      func() any
	post     func(any)

	mu        sync.Mutex
	cancelled bool
}

// deadlineHeap is a thread-safe binary min-heap keyed by deadline,
// adapted from the fixed-priority task queue pattern: here the ordering
// key is a deadline timestamp instead of an integer priority, so earlier
// deadlines always sort first and there is no starvation-boost term
// (a deadline queue's ordering already reflects urgency directly).
type deadlineHeap struct {
	mu    sync.Mutex
	items []*scheduledTask
}

func (h *deadlineHeap) Push(t *scheduledTask) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, t)
	h.siftUp(len(h.items) - 1)
}

// Pop removes and returns the earliest-deadline task.
func (h *deadlineHeap) Pop() (*scheduledTask, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return nil, false
	}
	top := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	h.items[last] = nil
	h.items = h.items[:last]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return top, true
}

// Peek returns the earliest-deadline task without removing it.
func (h *deadlineHeap) Peek() (*scheduledTask, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

func (h *deadlineHeap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

func (h *deadlineHeap) less(i, j int) bool {
	return h.items[i].deadline.Before(h.items[j].deadline)
}

func (h *deadlineHeap) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if h.less(idx, parent) {
			h.items[idx], h.items[parent] = h.items[parent], h.items[idx]
			idx = parent
		} else {
			break
		}
	}
}

func (h *deadlineHeap) siftDown(idx int) {
	n := len(h.items)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		h.items[idx], h.items[smallest] = h.items[smallest], h.items[idx]
		idx = smallest
	}
}
