package allreduce

import "github.com/unixpickle/dist-train/collective"

// Tree implements all-reduce over a binary tree of members.
//
// Vectors are reduced up the tree to rank 0, and the result is
// fanned back down, so every member ends up with rank 0's
// fold. Latency grows with the logarithm of the group size,
// but the root's links see the most traffic.
type Tree struct{}

// Allreduce reduces data up the tree and distributes the
// result back down.
func (tr Tree) Allreduce(t collective.Transport, data []float64, fn collective.ReduceFn) []float64 {
	rank := t.Rank()
	out := append([]float64(nil), data...)

	var children []int
	for _, c := range []int{2*rank + 1, 2*rank + 2} {
		if c < t.Size() {
			children = append(children, c)
		}
	}

	parts := map[int][]float64{}
	for len(parts) < len(children) {
		vec, from := t.Recv()
		parts[from] = vec
	}
	for _, c := range children {
		fn(out, parts[c])
		t.Work(float64(len(out)))
	}

	if rank != 0 {
		t.Send((rank-1)/2, out)
		res, _ := t.Recv()
		out = res
	}
	for _, c := range children {
		t.Send(c, out)
	}
	return out
}
