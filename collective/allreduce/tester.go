package allreduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/unixpickle/dist-train/collective"
	"github.com/unixpickle/dist-train/simulator"
)

// RunAllreducerTests checks an Allreducer for correctness over
// in-process transports and simulated networks, across a range
// of group sizes and vector lengths.
//
// For every case it verifies that all members compute
// byte-identical results, that the result matches a rank-order
// reference fold to within floating point tolerance, and that
// input vectors are left untouched.
func RunAllreducerTests(t *testing.T, reducer collective.Allreducer) {
	runners := []struct {
		name string
		run  func(t *testing.T, count int, member func(rank int, tr collective.Transport))
	}{
		{"Local", runLocal},
		{"RandomNet", runRandomNet},
		{"FabricNet", runFabricNet},
	}
	for _, r := range runners {
		t.Run(r.name, func(t *testing.T) {
			for _, count := range []int{1, 2, 3, 4, 7, 8} {
				for _, size := range []int{0, 1, 5, 64, 333} {
					t.Run(fmt.Sprintf("Nodes%dSize%d", count, size), func(t *testing.T) {
						testAllreduceCase(t, reducer, r.run, count, size)
					})
				}
			}
		})
	}
}

func testAllreduceCase(t *testing.T, reducer collective.Allreducer,
	run func(*testing.T, int, func(int, collective.Transport)), count, size int) {
	gen := rand.New(rand.NewSource(int64(count*1009 + size)))
	inputs := make([][]float64, count)
	saved := make([][]float64, count)
	for i := range inputs {
		inputs[i] = make([]float64, size)
		for j := range inputs[i] {
			inputs[i][j] = gen.NormFloat64()
		}
		saved[i] = append([]float64(nil), inputs[i]...)
	}

	ops := []struct {
		name string
		fn   collective.ReduceFn
	}{
		{"sum", collective.Sum},
		{"max", collective.Max},
	}
	for _, op := range ops {
		expected := append([]float64(nil), inputs[0]...)
		for i := 1; i < count; i++ {
			op.fn(expected, inputs[i])
		}

		outs := make([][]float64, count)
		run(t, count, func(rank int, tr collective.Transport) {
			outs[rank] = reducer.Allreduce(tr, inputs[rank], op.fn)
		})

		for i, out := range outs {
			if len(out) != size {
				t.Fatalf("%s: rank %d returned %d values, not %d", op.name, i, len(out), size)
			}
		}
		for i := 1; i < count; i++ {
			for j := range outs[i] {
				if outs[i][j] != outs[0][j] {
					t.Errorf("%s: ranks 0 and %d disagree at %d: %v vs %v",
						op.name, i, j, outs[0][j], outs[i][j])
					break
				}
			}
		}
		for j := range expected {
			bound := 1e-8 * math.Max(1, math.Abs(expected[j]))
			if math.Abs(outs[0][j]-expected[j]) > bound {
				t.Errorf("%s: index %d should be %v but got %v", op.name, j, expected[j], outs[0][j])
				break
			}
		}
		for i := range inputs {
			for j := range inputs[i] {
				if inputs[i][j] != saved[i][j] {
					t.Errorf("%s: rank %d's input was modified", op.name, i)
					break
				}
			}
		}
	}
}

func runLocal(t *testing.T, count int, member func(int, collective.Transport)) {
	transports := collective.NewLocalTransports(count)
	var eg errgroup.Group
	for i, tr := range transports {
		eg.Go(func() error {
			member(i, tr)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}

func runRandomNet(t *testing.T, count int, member func(int, collective.Transport)) {
	runSimulated(t, count, member, func(nodes []*simulator.Node) simulator.Network {
		return &simulator.RandomNetwork{MaxLatency: 2.0}
	}, 0)
}

func runFabricNet(t *testing.T, count int, member func(int, collective.Transport)) {
	runSimulated(t, count, member, func(nodes []*simulator.Node) simulator.Network {
		return simulator.NewFabricNetwork(nodes, 1e6, 1e-3)
	}, 1e9)
}

func runSimulated(t *testing.T, count int, member func(int, collective.Transport),
	makeNet func([]*simulator.Node) simulator.Network, flopRate float64) {
	loop := simulator.NewEventLoop()
	nodes := make([]*simulator.Node, count)
	for i := range nodes {
		nodes[i] = simulator.NewNode()
	}
	network := makeNet(nodes)
	err := collective.Spawn(loop, network, nodes, func(p *collective.Peers) {
		p.FlopRate = flopRate
		member(p.Rank(), p)
	})
	if err != nil {
		t.Fatal(err)
	}
}
