package train

import (
	"fmt"
	"math"
)

// A Trigger decides whether something should happen after the
// just-finished iteration.
//
// Triggers may be stateful, so a Trigger must not be shared
// between extensions.
type Trigger interface {
	Fire(u Updater) bool
}

// A Unit selects whether an interval counts iterations or
// epochs.
type Unit int

const (
	ByIteration Unit = iota
	ByEpoch
)

func (u Unit) String() string {
	switch u {
	case ByIteration:
		return "iteration"
	case ByEpoch:
		return "epoch"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Every returns a Trigger that fires once every n iterations
// or epochs.
func Every(n int, unit Unit) Trigger {
	if n <= 0 {
		panic("interval must be positive")
	}
	return &intervalTrigger{n: n, unit: unit}
}

type intervalTrigger struct {
	n          int
	unit       Unit
	prevDetail float64
}

func (i *intervalTrigger) Fire(u Updater) bool {
	if i.unit == ByIteration {
		return u.Iteration()%i.n == 0
	}
	prev := i.prevDetail
	i.prevDetail = u.EpochDetail()
	return math.Floor(prev/float64(i.n)) != math.Floor(i.prevDetail/float64(i.n))
}

// Steps returns a Trigger that fires once n iterations have
// completed, for use as a Trainer stop condition.
func Steps(n int) Trigger {
	return stopTrigger(func(u Updater) bool {
		return u.Iteration() >= n
	})
}

// Epochs returns a Trigger that fires once n epochs have
// completed, for use as a Trainer stop condition.
func Epochs(n int) Trigger {
	return stopTrigger(func(u Updater) bool {
		return u.Epoch() >= n
	})
}

type stopTrigger func(u Updater) bool

func (s stopTrigger) Fire(u Updater) bool {
	return s(u)
}
