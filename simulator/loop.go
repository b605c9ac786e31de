// Package simulator provides a virtual-time event loop for
// simulating distributed systems, along with network models
// that deliver messages with configurable timing behavior.
package simulator

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/unixpickle/essentials"
)

// An Event is a value delivered through an EventStream at some
// virtual timestamp.
type Event struct {
	Payload any

	stream *EventStream
}

// An EventStream is a mailbox for Events.
//
// Streams are created by an EventLoop and may only be used with
// Handles belonging to the same loop.
type EventStream struct {
	loop    *EventLoop
	pending []*Event
}

// A Timer is a scheduled Event delivery.
//
// It may be cancelled at any virtual time before it fires.
type Timer struct {
	event   *Event
	fireAt  float64
	salt    uint64
	heapIdx int
}

// Time returns the virtual time at which the Timer fires.
func (t *Timer) Time() float64 {
	return t.fireAt
}

// timerHeap orders Timers by fire time, breaking ties with a
// random per-Timer salt so that simultaneous deliveries are
// shuffled rather than ordered by creation.
type timerHeap []*Timer

func (t timerHeap) Len() int {
	return len(t)
}

func (t timerHeap) Less(i, j int) bool {
	if t[i].fireAt != t[j].fireAt {
		return t[i].fireAt < t[j].fireAt
	}
	return t[i].salt < t[j].salt
}

func (t timerHeap) Swap(i, j int) {
	t[i], t[j] = t[j], t[i]
	t[i].heapIdx = i
	t[j].heapIdx = j
}

func (t *timerHeap) Push(x any) {
	timer := x.(*Timer)
	timer.heapIdx = len(*t)
	*t = append(*t, timer)
}

func (t *timerHeap) Pop() any {
	old := *t
	n := len(old)
	timer := old[n-1]
	old[n-1] = nil
	timer.heapIdx = -1
	*t = old[:n-1]
	return timer
}

// An EventLoop runs Goroutines against a virtual clock.
//
// Virtual time advances only when every Goroutine started with
// Go is blocked in Poll or Sleep, at which point the earliest
// pending Timer fires. Ties between simultaneous Timers, and
// between Handles polling the same stream, are broken randomly.
type EventLoop struct {
	lock    sync.Mutex
	wake    chan struct{}
	timers  timerHeap
	handles []*Handle
	time    float64
	running bool
}

// NewEventLoop creates an EventLoop with no Goroutines and a
// clock at time zero.
func NewEventLoop() *EventLoop {
	return &EventLoop{wake: make(chan struct{}, 1)}
}

// Stream creates an EventStream owned by the loop.
func (e *EventLoop) Stream() *EventStream {
	return &EventStream{loop: e}
}

// Time returns the current virtual time, in seconds.
func (e *EventLoop) Time() float64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.time
}

// Go runs f in a new Goroutine with its own Handle.
//
// The loop will not advance virtual time while f runs, so f
// must only block by means of its Handle.
func (e *EventLoop) Go(f func(h *Handle)) {
	h := &Handle{loop: e}
	e.lockedWake(func() {
		e.handles = append(e.handles, h)
	})
	go func() {
		f(h)
		e.lockedWake(func() {
			for i, other := range e.handles {
				if other == h {
					essentials.UnorderedDelete(&e.handles, i)
					break
				}
			}
		})
	}()
}

// Run turns the loop until every Goroutine started with Go has
// returned.
//
// It returns an error if the Goroutines deadlock, i.e. all of
// them are polling while no Timer is pending.
//
// Run may only be called once at a time per loop.
func (e *EventLoop) Run(f func(h *Handle)) error {
	e.lock.Lock()
	if e.running {
		e.lock.Unlock()
		panic("EventLoop is already running")
	}
	e.running = true
	e.lock.Unlock()

	defer func() {
		e.lock.Lock()
		e.running = false
		e.lock.Unlock()
	}()

	e.Go(f)
	for range e.wake {
		done, err := e.turn()
		if done {
			return err
		}
	}
	panic("unreachable")
}

// MustRun is like Run, except that it panics if the Goroutines
// deadlock.
func (e *EventLoop) MustRun(f func(h *Handle)) {
	if err := e.Run(f); err != nil {
		panic(err)
	}
}

// turn fires Timers until an Event reaches a polling Handle.
//
// It reports whether the loop is finished, either because every
// Goroutine returned or because of a deadlock.
func (e *EventLoop) turn() (done bool, err error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.handles) == 0 {
		return true, nil
	}
	for _, h := range e.handles {
		if h.polling == nil {
			// A Goroutine is doing real work, so time
			// cannot move until it blocks again.
			return false, nil
		}
	}
	for len(e.timers) > 0 {
		timer := heap.Pop(&e.timers).(*Timer)
		if timer.fireAt > e.time {
			e.time = timer.fireAt
		}
		if e.deliver(timer.event) {
			return false, nil
		}
	}
	return true, errors.New("deadlock: every Goroutine is polling and no timers are pending")
}

// deliver hands ev to a random Handle that is polling its
// stream, or buffers it on the stream if no Handle is.
//
// It reports whether a Handle was woken up.
func (e *EventLoop) deliver(ev *Event) bool {
	var ready []*Handle
	for _, h := range e.handles {
		for _, s := range h.polling {
			if s == ev.stream {
				ready = append(ready, h)
				break
			}
		}
	}
	if len(ready) == 0 {
		ev.stream.pending = append(ev.stream.pending, ev)
		return false
	}
	h := ready[rand.Intn(len(ready))]
	h.polling = nil
	h.result <- ev
	return true
}

// locked runs f while holding the loop's lock.
func (e *EventLoop) locked(f func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	f()
}

// lockedWake runs f under the lock and then nudges Run, since f
// may have changed which Handles are polling.
func (e *EventLoop) lockedWake(f func()) {
	e.locked(f)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// A Handle attaches one Goroutine to an EventLoop.
//
// A Handle must never be shared between Goroutines.
type Handle struct {
	loop    *EventLoop
	polling []*EventStream
	result  chan<- *Event
}

// Loop returns the EventLoop the Handle belongs to.
func (h *Handle) Loop() *EventLoop {
	return h.loop
}

// Time returns the loop's current virtual time, in seconds.
func (h *Handle) Time() float64 {
	return h.loop.Time()
}

// Poll blocks until an Event arrives on one of the streams and
// returns it.
//
// If multiple streams have buffered Events, the earliest stream
// in the argument list wins.
func (h *Handle) Poll(streams ...*EventStream) *Event {
	if len(streams) == 0 {
		panic("Poll requires at least one EventStream")
	}
	res := make(chan *Event, 1)
	h.loop.lockedWake(func() {
		if h.polling != nil {
			panic("Handle is shared between Goroutines")
		}
		for _, s := range streams {
			if s.loop != h.loop {
				panic("EventStream belongs to a different EventLoop")
			}
			if len(s.pending) > 0 {
				ev := s.pending[0]
				essentials.OrderedDelete(&s.pending, 0)
				res <- ev
				return
			}
		}
		h.polling = streams
		h.result = res
	})
	ev := <-res
	h.loop.locked(func() {
		h.result = nil
	})
	return ev
}

// Schedule queues delivery of payload on stream after delay
// seconds of virtual time.
//
// The returned Timer may be cancelled until it fires.
func (h *Handle) Schedule(stream *EventStream, payload any, delay float64) *Timer {
	if math.IsNaN(delay) || math.IsInf(delay, 0) {
		panic("delay must be finite")
	}
	var timer *Timer
	h.loop.locked(func() {
		if stream.loop != h.loop {
			panic("EventStream belongs to a different EventLoop")
		}
		timer = &Timer{
			event:  &Event{Payload: payload, stream: stream},
			fireAt: h.loop.time + delay,
			salt:   rand.Uint64(),
		}
		heap.Push(&h.loop.timers, timer)
	})
	return timer
}

// Cancel prevents a Timer from firing.
//
// It returns false if the Timer already fired or was cancelled.
func (h *Handle) Cancel(t *Timer) bool {
	var ok bool
	h.loop.locked(func() {
		if t.heapIdx >= 0 {
			heap.Remove(&h.loop.timers, t.heapIdx)
			t.heapIdx = -1
			ok = true
		}
	})
	return ok
}

// Sleep blocks the Goroutine for the given number of virtual
// seconds.
func (h *Handle) Sleep(delay float64) {
	stream := h.loop.Stream()
	h.Schedule(stream, nil, delay)
	h.Poll(stream)
}
