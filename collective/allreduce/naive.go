package allreduce

import "github.com/unixpickle/dist-train/collective"

// Naive implements all-reduce by having every member send its
// whole vector to every other member.
//
// Each member folds the copies in rank order, so all members
// compute exactly the same result. Bandwidth grows with the
// square of the group size, which makes Naive a baseline
// rather than something to deploy.
type Naive struct{}

// Allreduce sends data to all other members and reduces the
// vectors received from them.
func (n Naive) Allreduce(t collective.Transport, data []float64, fn collective.ReduceFn) []float64 {
	size := t.Size()
	if size == 1 {
		return append([]float64(nil), data...)
	}
	for i := 0; i < size; i++ {
		if i != t.Rank() {
			t.Send(i, data)
		}
	}
	parts := map[int][]float64{t.Rank(): data}
	for len(parts) < size {
		vec, from := t.Recv()
		parts[from] = vec
	}
	out := append([]float64(nil), parts[0]...)
	for i := 1; i < size; i++ {
		fn(out, parts[i])
		t.Work(float64(len(out)))
	}
	return out
}
