package allreduce

import "github.com/unixpickle/dist-train/collective"

// Ring implements bandwidth-optimal all-reduce on a ring of
// members.
//
// The vector is split into one chunk per member. A
// reduce-scatter pass circulates partial sums until each
// member owns one fully reduced chunk, and an all-gather pass
// circulates the finished chunks. Every member sends roughly
// twice the vector size in total, independent of group size.
type Ring struct{}

// Allreduce runs the reduce-scatter and all-gather passes.
func (r Ring) Allreduce(t collective.Transport, data []float64, fn collective.ReduceFn) []float64 {
	size := t.Size()
	out := append([]float64(nil), data...)
	if size == 1 {
		return out
	}

	bounds := chunkBounds(len(out), size)
	chunk := func(i int) []float64 {
		return out[bounds[i]:bounds[i+1]]
	}
	ring := &ringSteps{t: t, next: (t.Rank() + 1) % size, stash: map[int][]float64{}}
	rank := t.Rank()

	for step := 0; step < size-1; step++ {
		recvIdx := mod(rank-step-1, size)
		vec := ring.exchange(chunk(mod(rank-step, size)))
		fn(chunk(recvIdx), vec)
		t.Work(float64(len(vec)))
	}
	for step := 0; step < size-1; step++ {
		vec := ring.exchange(chunk(mod(rank+1-step, size)))
		copy(chunk(mod(rank-step, size)), vec)
	}
	return out
}

// ringSteps sequences the lock-step exchanges of one ring
// pass.
//
// A neighbor may run ahead by one step, and the network may
// deliver its two in-flight messages out of order, so every
// message carries its step number and early arrivals are
// stashed.
type ringSteps struct {
	t     collective.Transport
	next  int
	step  int
	stash map[int][]float64
}

// exchange sends chunk to the next member and returns the
// chunk received from the previous one for the same step.
func (r *ringSteps) exchange(chunk []float64) []float64 {
	framed := make([]float64, 0, len(chunk)+1)
	framed = append(framed, float64(r.step))
	framed = append(framed, chunk...)
	r.t.Send(r.next, framed)

	for {
		if vec, ok := r.stash[r.step]; ok {
			delete(r.stash, r.step)
			r.step++
			return vec
		}
		vec, _ := r.t.Recv()
		got := int(vec[0])
		if got == r.step {
			r.step++
			return vec[1:]
		}
		r.stash[got] = vec[1:]
	}
}
