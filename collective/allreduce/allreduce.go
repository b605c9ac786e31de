// Package allreduce implements all-reduce algorithms over
// collective Transports.
//
// Every algorithm satisfies collective.Allreducer and leaves
// all members of the group holding byte-identical results.
package allreduce

// chunkBounds splits a vector of length n into count nearly
// equal chunks, returning count+1 boundary offsets.
func chunkBounds(n, count int) []int {
	bounds := make([]int, count+1)
	for i := range bounds {
		bounds[i] = i * n / count
	}
	return bounds
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
