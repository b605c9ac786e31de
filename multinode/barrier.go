package multinode

import (
	"github.com/unixpickle/dist-train/collective"
	"github.com/unixpickle/dist-train/train"
)

// An EpochBarrier blocks a worker until every member of the
// group reaches it.
//
// Register it on whatever cadence the workers should
// resynchronize at, typically once per epoch:
//
//	tr.Extend(multinode.NewEpochBarrier(group),
//		train.WithTrigger(train.Every(1, train.ByEpoch)))
type EpochBarrier struct {
	group collective.Group
}

// NewEpochBarrier creates a barrier extension over group.
func NewEpochBarrier(group collective.Group) *EpochBarrier {
	return &EpochBarrier{group: group}
}

func (b *EpochBarrier) Invoke(tr *train.Trainer) error {
	return b.group.Barrier()
}
