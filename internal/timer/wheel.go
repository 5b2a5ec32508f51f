// Package timer implements the daemon's timer wheel: a min-heap of pending
// callbacks keyed by deadline, consumed exactly once each, always on the
// caller-designated main loop rather than the goroutine that observes the
// deadline has passed.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

const fallbackDeadline = 60 * time.Second

// Callback is invoked exactly once when its scheduled deadline fires.
type Callback func()

type entry struct {
	deadline time.Time
	cb       Callback
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel stores pending callbacks and answers "how long until the next one
// fires". It does not run any goroutine of its own: Schedule wakes an
// external waiter (see WakeChannel) and FireDue is called by that waiter's
// owner on the main loop.
type Wheel struct {
	mu   sync.Mutex
	h    entryHeap
	wake chan struct{}
}

// New creates an empty timer wheel.
func New() *Wheel {
	return &Wheel{
		h:    entryHeap{},
		wake: make(chan struct{}, 1),
	}
}

// Schedule inserts a callback to fire after d and wakes any goroutine
// waiting on WakeChannel.
func (w *Wheel) Schedule(d time.Duration, cb Callback) {
	w.mu.Lock()
	heap.Push(&w.h, &entry{deadline: time.Now().Add(d), cb: cb})
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// WakeChannel returns the channel that receives a value whenever Schedule
// inserts a timer that could change the nearest deadline. The timer thread
// selects on this channel alongside its own sleep timer.
func (w *Wheel) WakeChannel() <-chan struct{} {
	return w.wake
}

// NearestDeadline returns the duration until the earliest pending timer,
// or fallbackDeadline (60s) if the wheel is empty.
func (w *Wheel) NearestDeadline() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.h) == 0 {
		return fallbackDeadline
	}
	d := time.Until(w.h[0].deadline)
	if d < 0 {
		return 0
	}
	return d
}

// FireDue pops and invokes every callback whose deadline has passed. It
// must only be called from the main loop; the timer thread must never call
// this directly, only signal via WakeChannel.
func (w *Wheel) FireDue() {
	now := time.Now()
	for {
		w.mu.Lock()
		if len(w.h) == 0 || w.h[0].deadline.After(now) {
			w.mu.Unlock()
			return
		}
		e := heap.Pop(&w.h).(*entry)
		w.mu.Unlock()

		e.cb()
	}
}

// Pending reports the number of callbacks not yet fired. Used by tests.
func (w *Wheel) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.h)
}
