package simulator

import (
	"math"
	"sync"
)

// A FabricNetwork models a non-blocking switching fabric in
// which every Node has an uplink and a downlink of fixed rate.
//
// Concurrent transfers share link capacity fairly: a transfer
// runs at the lesser of its even share of the sender's uplink
// and its even share of the receiver's downlink. A transfer
// occupies both links for its whole lifetime, including the
// latency window before its bytes start moving. Rates are
// recomputed whenever a transfer starts or finishes.
type FabricNetwork struct {
	rate    float64
	latency float64
	nodes   map[*Node]bool

	lock sync.Mutex
	plan []*fabricSegment
}

// NewFabricNetwork creates a fabric connecting the given Nodes.
//
// Every Node gets an uplink and a downlink of rate bytes per
// second, and every Message waits latency seconds before its
// bytes start moving.
func NewFabricNetwork(nodes []*Node, rate, latency float64) *FabricNetwork {
	if rate <= 0 {
		panic("rate must be positive")
	}
	nodeSet := map[*Node]bool{}
	for _, n := range nodes {
		nodeSet[n] = true
	}
	return &FabricNetwork{rate: rate, latency: latency, nodes: nodeSet}
}

// Send queues the Messages and recomputes the delivery plan
// for every transfer currently in flight.
func (f *FabricNetwork) Send(h *Handle, msgs ...*Message) {
	f.lock.Lock()
	defer f.lock.Unlock()
	state := f.interrupt(h)
	for _, msg := range msgs {
		if !f.nodes[msg.Source.Node] {
			panic("source Node is not part of the fabric")
		}
		if !f.nodes[msg.Dest.Node] {
			panic("destination Node is not part of the fabric")
		}
		state = append(state, &flight{
			msg:         msg,
			latencyLeft: f.latency,
			bytesLeft:   msg.Size,
		})
	}
	f.schedule(h, state)
}

// interrupt tears down the delivery plan and returns the
// transfers still in flight at the current time.
func (f *FabricNetwork) interrupt(h *Handle) []*flight {
	now := h.Time()
	var state []*flight
	found := false
	for _, seg := range f.plan {
		if now >= seg.end {
			// Already delivered, or delivering at this
			// exact instant via still-armed timers.
			continue
		}
		if !found {
			found = true
			for _, fl := range seg.flights {
				state = append(state, fl.advance(now-seg.start))
			}
		}
		for _, timer := range seg.timers {
			h.Cancel(timer)
		}
	}
	f.plan = nil
	return state
}

// schedule builds a delivery plan for the given transfers and
// arms a Timer for every delivery.
//
// The plan is a sequence of segments with constant rates. Each
// segment ends when the transfers closest to completion finish,
// freeing capacity for the rest.
func (f *FabricNetwork) schedule(h *Handle, state []*flight) {
	start := h.Time()
	for len(state) > 0 {
		f.shareRates(state)
		soonest := math.Inf(1)
		for _, fl := range state {
			soonest = math.Min(soonest, fl.eta())
		}
		end := start + soonest
		seg := &fabricSegment{start: start, end: end, flights: state}
		var rest []*flight
		for _, fl := range state {
			if fl.eta() <= soonest {
				timer := h.Schedule(fl.msg.Dest.Incoming, fl.msg, end-h.Time())
				seg.timers = append(seg.timers, timer)
			} else {
				rest = append(rest, fl.advance(soonest))
			}
		}
		f.plan = append(f.plan, seg)
		state = rest
		start = end
	}
}

// shareRates assigns each transfer its fair-share rate given
// the current set of transfers.
func (f *FabricNetwork) shareRates(flights []*flight) {
	up := map[*Node]int{}
	down := map[*Node]int{}
	for _, fl := range flights {
		up[fl.msg.Source.Node]++
		down[fl.msg.Dest.Node]++
	}
	for _, fl := range flights {
		share := f.rate / float64(up[fl.msg.Source.Node])
		if d := f.rate / float64(down[fl.msg.Dest.Node]); d < share {
			share = d
		}
		fl.rate = share
	}
}

// A fabricSegment is a window of the delivery plan during which
// transfer rates are constant.
//
// The flights slice records the state of every transfer at the
// start of the segment, so that an interrupted plan can be
// interpolated to any time inside the segment.
type fabricSegment struct {
	start   float64
	end     float64
	flights []*flight
	timers  []*Timer
}

// A flight is a Message in transit.
type flight struct {
	msg         *Message
	latencyLeft float64
	bytesLeft   float64
	rate        float64
}

// eta returns the remaining time until delivery at the current
// rate.
func (f *flight) eta() float64 {
	return f.latencyLeft + f.bytesLeft/f.rate
}

// advance returns a copy of the flight as it will be dt seconds
// later, assuming the rate stays constant.
func (f *flight) advance(dt float64) *flight {
	out := *f
	if out.latencyLeft >= dt {
		out.latencyLeft -= dt
		return &out
	}
	dt -= out.latencyLeft
	out.latencyLeft = 0
	out.bytesLeft -= dt * out.rate
	if out.bytesLeft < 0 {
		out.bytesLeft = 0
	}
	return &out
}
