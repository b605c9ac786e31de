package multinode_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/unixpickle/dist-train/collective"
	"github.com/unixpickle/dist-train/collective/allreduce"
	"github.com/unixpickle/dist-train/multinode"
	"github.com/unixpickle/dist-train/simulator"
	"github.com/unixpickle/dist-train/tensor"
	"github.com/unixpickle/dist-train/train"
)

// runWorkers runs worker on every rank of an in-process group.
func runWorkers(t *testing.T, count int, worker func(rank int, g collective.Group) error) error {
	t.Helper()
	transports := collective.NewLocalTransports(count)
	var eg errgroup.Group
	for i, tr := range transports {
		g := collective.NewGroup(tr, allreduce.Naive{})
		eg.Go(func() error {
			return worker(i, g)
		})
	}
	return eg.Wait()
}

type reportStyle int

const (
	reportScalar reportStyle = iota
	reportHostVector
	reportDeviceVector
)

// canonicalScenario runs one worker of the rank-averaging
// setup: a writer reports the worker's rank every iteration,
// the aggregator averages it across the group on an interval,
// and a checker asserts that the result is the mean rank.
func canonicalScenario(rank, size int, g collective.Group, interval int, style reportStyle, staged bool) error {
	expected := float64(size-1) / 2

	var emu *tensor.Emulator
	var source *tensor.Vector
	var err error
	opts := []multinode.AggregatorOption{
		multinode.WithAggregatedKey("rank-aggregated"),
		multinode.WithCommTrigger(train.Every(interval, train.ByIteration)),
	}
	switch style {
	case reportHostVector:
		source, err = tensor.Full(tensor.Host(), 3, float64(rank))
	case reportDeviceVector:
		emu = tensor.NewEmulator()
		source, err = tensor.Full(emu, 3, float64(rank))
		if staged {
			opts = append(opts, multinode.WithStaging(emu))
		}
	}
	if err != nil {
		return err
	}

	writer := train.ExtensionFunc(func(tr *train.Trainer) error {
		if style == reportScalar {
			tr.Observations().Report("rank", float64(rank))
		} else {
			tr.Observations().Report("rank", source)
		}
		return nil
	})

	sawAggregated := 0
	checker := train.ExtensionFunc(func(tr *train.Trainer) error {
		obs := tr.Observations()
		iter := tr.Updater().Iteration()
		if iter%interval != 0 {
			if _, ok := obs["rank-aggregated"]; ok {
				return fmt.Errorf("iteration %d: aggregated value off cadence", iter)
			}
			return nil
		}
		sawAggregated++
		if style == reportScalar {
			x, ok := obs.Float("rank-aggregated")
			if !ok {
				return fmt.Errorf("iteration %d: aggregated value missing", iter)
			}
			if x != expected {
				return fmt.Errorf("iteration %d: aggregated value is %v, not %v", iter, x, expected)
			}
			return nil
		}
		v, ok := obs.Vector("rank-aggregated")
		if !ok {
			return fmt.Errorf("iteration %d: aggregated vector missing", iter)
		}
		if v.Device() != source.Device() {
			return fmt.Errorf("aggregated vector on %s, source on %s",
				v.Device().Name(), source.Device().Name())
		}
		data, err := v.Read()
		if err != nil {
			return err
		}
		for _, x := range data {
			if x != expected {
				return fmt.Errorf("iteration %d: aggregated element is %v, not %v", iter, x, expected)
			}
		}
		return nil
	})

	up := &train.StepUpdater{Step: func(obs train.Observations) error { return nil }}
	tr := train.New(up, train.Steps(6))
	tr.Extend(writer, train.WithPriority(train.PriorityWriter), train.WithName("rank-reporter"))
	tr.Extend(multinode.NewObservationAggregator(g, "rank", opts...))
	tr.Extend(checker, train.WithName("checker"))
	if err := tr.Run(context.Background()); err != nil {
		return err
	}

	if sawAggregated != 6/interval {
		return fmt.Errorf("aggregated %d times, expected %d", sawAggregated, 6/interval)
	}
	if staged && emu != nil {
		if n := emu.LiveAllocs(); n != 2 {
			return fmt.Errorf("%d live device allocations after training", n)
		}
		in, out := emu.Copies()
		if in == 0 || out == 0 {
			return fmt.Errorf("no staging traffic recorded (%d in, %d out)", in, out)
		}
	}
	return nil
}

func TestAggregatorScalar(t *testing.T) {
	for _, interval := range []int{1, 2} {
		t.Run(fmt.Sprintf("Interval%d", interval), func(t *testing.T) {
			err := runWorkers(t, 4, func(rank int, g collective.Group) error {
				return canonicalScenario(rank, 4, g, interval, reportScalar, false)
			})
			require.NoError(t, err)
		})
	}
}

func TestAggregatorHostVector(t *testing.T) {
	for _, interval := range []int{1, 2} {
		t.Run(fmt.Sprintf("Interval%d", interval), func(t *testing.T) {
			err := runWorkers(t, 4, func(rank int, g collective.Group) error {
				return canonicalScenario(rank, 4, g, interval, reportHostVector, false)
			})
			require.NoError(t, err)
		})
	}
}

func TestAggregatorDeviceVectorStaged(t *testing.T) {
	for _, interval := range []int{1, 2} {
		t.Run(fmt.Sprintf("Interval%d", interval), func(t *testing.T) {
			err := runWorkers(t, 4, func(rank int, g collective.Group) error {
				return canonicalScenario(rank, 4, g, interval, reportDeviceVector, true)
			})
			require.NoError(t, err)
		})
	}
}

func TestAggregatorDeviceResident(t *testing.T) {
	// Without explicit staging, accelerator-resident values
	// must be refused before any communication happens.
	err := runWorkers(t, 4, func(rank int, g collective.Group) error {
		return canonicalScenario(rank, 4, g, 1, reportDeviceVector, false)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, collective.ErrDeviceResident)
	assert.Contains(t, err.Error(), "rank")
}

func TestAggregatorRunningMean(t *testing.T) {
	// Values change every iteration, so the aggregator must
	// average the window since the last communication, not
	// just the latest value.
	err := runWorkers(t, 2, func(rank int, g collective.Group) error {
		step := 0
		up := &train.StepUpdater{Step: func(obs train.Observations) error {
			obs.Report("score", float64(rank)+float64(step))
			step++
			return nil
		}}

		var got []float64
		checker := train.ExtensionFunc(func(tr *train.Trainer) error {
			if x, ok := tr.Observations().Float("score-agg"); ok {
				got = append(got, x)
			}
			return nil
		})

		tr := train.New(up, train.Steps(6))
		tr.Extend(multinode.NewObservationAggregator(g, "score",
			multinode.WithAggregatedKey("score-agg"),
			multinode.WithCommTrigger(train.Every(2, train.ByIteration))))
		tr.Extend(checker)
		if err := tr.Run(context.Background()); err != nil {
			return err
		}
		if len(got) != 3 || got[0] != 1.0 || got[1] != 3.0 || got[2] != 5.0 {
			return fmt.Errorf("windowed means were %v", got)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAggregatorDefaultKeyOverwrite(t *testing.T) {
	err := runWorkers(t, 2, func(rank int, g collective.Group) error {
		up := &train.StepUpdater{Step: func(obs train.Observations) error {
			obs.Report("acc", float64(rank))
			return nil
		}}
		checker := train.ExtensionFunc(func(tr *train.Trainer) error {
			x, ok := tr.Observations().Float("acc")
			if !ok || x != 0.5 {
				return fmt.Errorf("acc is %v after aggregation", tr.Observations()["acc"])
			}
			return nil
		})
		tr := train.New(up, train.Steps(3))
		tr.Extend(multinode.NewObservationAggregator(g, "acc"))
		tr.Extend(checker)
		return tr.Run(context.Background())
	})
	require.NoError(t, err)
}

func TestAggregatorMissingObservation(t *testing.T) {
	err := runWorkers(t, 2, func(rank int, g collective.Group) error {
		up := &train.StepUpdater{Step: func(obs train.Observations) error { return nil }}
		tr := train.New(up, train.Steps(2))
		tr.Extend(multinode.NewObservationAggregator(g, "ghost"))
		return tr.Run(context.Background())
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost"`)
}

func TestAggregatorSimulated(t *testing.T) {
	loop := simulator.NewEventLoop()
	nodes := make([]*simulator.Node, 4)
	for i := range nodes {
		nodes[i] = simulator.NewNode()
	}
	network := simulator.NewFabricNetwork(nodes, 1e6, 1e-3)
	err := collective.Spawn(loop, network, nodes, func(p *collective.Peers) {
		p.FlopRate = 1e9
		g := collective.NewGroup(p, allreduce.Ring{})
		if err := canonicalScenario(p.Rank(), p.Size(), g, 2, reportScalar, false); err != nil {
			t.Error(err)
		}
	})
	require.NoError(t, err)
	assert.Greater(t, loop.Time(), 0.0)
}

func TestEpochBarrier(t *testing.T) {
	var arrivals atomic.Int64
	err := runWorkers(t, 4, func(rank int, g collective.Group) error {
		barrier := multinode.NewEpochBarrier(g)
		round := 0
		ext := train.ExtensionFunc(func(tr *train.Trainer) error {
			round++
			arrivals.Add(1)
			if err := barrier.Invoke(tr); err != nil {
				return err
			}
			if n := arrivals.Load(); n < int64(4*round) {
				return fmt.Errorf("barrier %d released after %d arrivals", round, n)
			}
			return nil
		})

		up := &train.StepUpdater{
			Step:          func(obs train.Observations) error { return nil },
			ItersPerEpoch: 3,
		}
		tr := train.New(up, train.Epochs(3))
		tr.Extend(ext, train.WithTrigger(train.Every(1, train.ByEpoch)))
		return tr.Run(context.Background())
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), arrivals.Load())
}
