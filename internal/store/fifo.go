package store

import "sync"

const defaultCapacity = 16

// FIFO is a growable ring buffer guarded by its own mutex.
//
// Two FIFOs never share a lock, so a producer appending to one never blocks a
// consumer popping from the other. Callers that must keep a counter coherent
// with the FIFO contents (for example an in-flight counter) pass a callback to
// PopWith or PushWith; the callback runs inside the same critical section as
// the mutation.
//
// Every successful push closes the current signal channel and installs a new
// one. Waiters obtain the channel atomically with a failed pop through
// PopOrWait, which rules out lost wakeups.
type FIFO[E any] struct {
	mu     sync.Mutex
	ring   []E
	head   int
	size   int
	signal chan struct{}
}

// New creates an empty FIFO with the given initial capacity.
// A non-positive capacity selects a small default.
func New[E any](capacity int) *FIFO[E] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &FIFO[E]{
		ring:   make([]E, nextPowerOfTwo(capacity)),
		signal: make(chan struct{}),
	}
}

// Push appends e to the tail.
func (f *FIFO[E]) Push(e E) {
	f.PushWith([]E{e}, nil)
}

// PushMany appends all elements in order as one critical section.
func (f *FIFO[E]) PushMany(es []E) {
	f.PushWith(es, nil)
}

// PushWith appends es in order and runs fn while still holding the lock.
// Waiters are notified even when es is empty, so fn-only transitions
// (such as a task that produced no results) still wake them.
func (f *FIFO[E]) PushWith(es []E, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range es {
		f.pushLocked(e)
	}
	if fn != nil {
		fn()
	}
	f.notifyLocked()
}

// Pop removes the head element. It never blocks.
func (f *FIFO[E]) Pop() (E, bool) {
	return f.PopWith(nil)
}

// PopWith removes the head element and, if one was removed, runs fn with it
// before releasing the lock.
func (f *FIFO[E]) PopWith(fn func(E)) (E, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.popLocked()
	if ok && fn != nil {
		fn(e)
	}
	return e, ok
}

// PopOrWait removes the head element, or, when the FIFO is empty, returns a
// channel that is closed on the next push or Notify.
func (f *FIFO[E]) PopOrWait() (E, bool, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.popLocked(); ok {
		return e, true, nil
	}
	return *new(E), false, f.signal
}

// Notify wakes every current waiter without changing the contents.
func (f *FIFO[E]) Notify() {
	f.mu.Lock()
	f.notifyLocked()
	f.mu.Unlock()
}

// Len returns the number of queued elements.
func (f *FIFO[E]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Drain removes and returns every element in FIFO order.
func (f *FIFO[E]) Drain() []E {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]E, 0, f.size)
	for {
		e, ok := f.popLocked()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func (f *FIFO[E]) pushLocked(e E) {
	if f.size == len(f.ring) {
		f.grow()
	}
	f.ring[(f.head+f.size)&(len(f.ring)-1)] = e
	f.size++
}

func (f *FIFO[E]) popLocked() (E, bool) {
	var zero E
	if f.size == 0 {
		return zero, false
	}
	e := f.ring[f.head]
	f.ring[f.head] = zero
	f.head = (f.head + 1) & (len(f.ring) - 1)
	f.size--
	return e, true
}

func (f *FIFO[E]) notifyLocked() {
	close(f.signal)
	f.signal = make(chan struct{})
}

// grow doubles the ring, unrolling the live window to start at index 0.
func (f *FIFO[E]) grow() {
	next := make([]E, len(f.ring)<<1)
	for i := range f.size {
		next[i] = f.ring[(f.head+i)&(len(f.ring)-1)]
	}
	f.ring = next
	f.head = 0
}

// nextPowerOfTwo returns the next power of 2 >= n
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
