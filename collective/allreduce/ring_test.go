package allreduce

import "testing"

func TestRing(t *testing.T) {
	RunAllreducerTests(t, Ring{})
}

func TestChunkBounds(t *testing.T) {
	cases := []struct {
		n, count int
		expected []int
	}{
		{10, 2, []int{0, 5, 10}},
		{10, 3, []int{0, 3, 6, 10}},
		{2, 4, []int{0, 0, 1, 1, 2}},
		{0, 3, []int{0, 0, 0, 0}},
	}
	for _, c := range cases {
		bounds := chunkBounds(c.n, c.count)
		if len(bounds) != len(c.expected) {
			t.Fatalf("chunkBounds(%d, %d) = %v", c.n, c.count, bounds)
		}
		for i, b := range bounds {
			if b != c.expected[i] {
				t.Errorf("chunkBounds(%d, %d) = %v, expected %v", c.n, c.count, bounds, c.expected)
				break
			}
		}
	}
}
