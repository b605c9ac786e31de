package simulator

import (
	"fmt"
	"testing"
)

func TestLoopSchedulePoll(t *testing.T) {
	loop := NewEventLoop()
	loop.MustRun(func(h *Handle) {
		stream1 := loop.Stream()
		stream2 := loop.Stream()
		h.Schedule(stream1, "second", 2.0)
		h.Schedule(stream2, "first", 1.0)
		h.Schedule(stream1, "third", 3.5)

		ev := h.Poll(stream1, stream2)
		if ev.Payload != "first" || h.Time() != 1.0 {
			t.Errorf("got %v at %f", ev.Payload, h.Time())
		}
		ev = h.Poll(stream1, stream2)
		if ev.Payload != "second" || h.Time() != 2.0 {
			t.Errorf("got %v at %f", ev.Payload, h.Time())
		}
		ev = h.Poll(stream1)
		if ev.Payload != "third" || h.Time() != 3.5 {
			t.Errorf("got %v at %f", ev.Payload, h.Time())
		}
	})
}

func TestLoopBufferedEvents(t *testing.T) {
	loop := NewEventLoop()
	loop.MustRun(func(h *Handle) {
		stream := loop.Stream()
		h.Schedule(stream, 1, 1.0)
		h.Schedule(stream, 2, 2.0)
		h.Sleep(5.0)
		if h.Time() != 5.0 {
			t.Errorf("time should be 5 but got %f", h.Time())
		}
		for i := 1; i <= 2; i++ {
			ev := h.Poll(stream)
			if ev.Payload != i {
				t.Errorf("expected %d but got %v", i, ev.Payload)
			}
			if h.Time() != 5.0 {
				t.Errorf("time should still be 5 but got %f", h.Time())
			}
		}
	})
}

func TestLoopRandomTieBreak(t *testing.T) {
	orders := map[string]bool{}
	for i := 0; i < 200; i++ {
		loop := NewEventLoop()
		loop.MustRun(func(h *Handle) {
			stream := loop.Stream()
			h.Schedule(stream, "a", 1.0)
			h.Schedule(stream, "b", 1.0)
			order := ""
			for j := 0; j < 2; j++ {
				order += h.Poll(stream).Payload.(string)
			}
			orders[order] = true
		})
	}
	if !orders["ab"] || !orders["ba"] {
		t.Errorf("expected both orderings, got %v", orders)
	}
}

func TestLoopRandomReceiver(t *testing.T) {
	counts := map[int]int{}
	for i := 0; i < 200; i++ {
		loop := NewEventLoop()
		loop.MustRun(func(h *Handle) {
			stream := loop.Stream()
			results := loop.Stream()
			for id := 0; id < 2; id++ {
				id := id
				loop.Go(func(h *Handle) {
					h.Poll(stream)
					h.Schedule(results, id, 0)
				})
			}
			h.Schedule(stream, nil, 1.0)
			winner := h.Poll(results).Payload.(int)
			counts[winner]++
			h.Schedule(stream, nil, 0)
			h.Poll(results)
		})
	}
	if counts[0] == 0 || counts[1] == 0 {
		t.Errorf("one receiver was starved: %v", counts)
	}
}

func TestLoopProducerConsumer(t *testing.T) {
	loop := NewEventLoop()
	stream := loop.Stream()
	var values []string
	var times []float64
	loop.MustRun(func(h *Handle) {
		loop.Go(func(h *Handle) {
			h.Sleep(1.0)
			h.Schedule(stream, "a", 0)
			h.Sleep(2.0)
			h.Schedule(stream, "b", 0)
		})
		for i := 0; i < 2; i++ {
			ev := h.Poll(stream)
			values = append(values, ev.Payload.(string))
			times = append(times, h.Time())
		}
	})
	if values[0] != "a" || values[1] != "b" {
		t.Errorf("unexpected values: %v", values)
	}
	if times[0] != 1.0 || times[1] != 3.0 {
		t.Errorf("unexpected times: %v", times)
	}
}

func TestLoopDeadlock(t *testing.T) {
	loop := NewEventLoop()
	err := loop.Run(func(h *Handle) {
		stream := loop.Stream()
		h.Schedule(stream, nil, 1.0)
		h.Poll(stream)
		// Nothing will ever feed this stream again.
		h.Poll(stream)
	})
	if err == nil {
		t.Fatal("expected a deadlock error")
	}
	if loop.Time() != 1.0 {
		t.Errorf("time should be 1 but got %f", loop.Time())
	}
}

func TestLoopCancel(t *testing.T) {
	loop := NewEventLoop()
	loop.MustRun(func(h *Handle) {
		stream := loop.Stream()
		timer := h.Schedule(stream, "cancelled", 1.0)
		h.Schedule(stream, "kept", 2.0)
		if !h.Cancel(timer) {
			t.Error("first Cancel should succeed")
		}
		if h.Cancel(timer) {
			t.Error("second Cancel should fail")
		}
		ev := h.Poll(stream)
		if ev.Payload != "kept" || h.Time() != 2.0 {
			t.Errorf("got %v at %f", ev.Payload, h.Time())
		}
	})
}

func TestLoopSleepNested(t *testing.T) {
	loop := NewEventLoop()
	var childTime float64
	loop.MustRun(func(h *Handle) {
		done := loop.Stream()
		loop.Go(func(h *Handle) {
			h.Sleep(0.5)
			h.Sleep(0.75)
			childTime = h.Time()
			h.Schedule(done, nil, 0)
		})
		h.Sleep(0.25)
		h.Poll(done)
	})
	if childTime != 1.25 {
		t.Errorf("child time should be 1.25 but got %f", childTime)
	}
	if loop.Time() != 1.25 {
		t.Errorf("loop time should be 1.25 but got %f", loop.Time())
	}
}

func ExampleEventLoop() {
	loop := NewEventLoop()
	loop.MustRun(func(h *Handle) {
		stream := loop.Stream()
		h.Schedule(stream, "world", 2.5)
		h.Schedule(stream, "hello", 1.0)
		for i := 0; i < 2; i++ {
			ev := h.Poll(stream)
			fmt.Println(h.Time(), ev.Payload)
		}
	})
	// Output:
	// 1 hello
	// 2.5 world
}
