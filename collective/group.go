package collective

import (
	"errors"
	"fmt"

	"github.com/unixpickle/dist-train/tensor"
)

// ErrDeviceResident is returned when an operation is handed an
// accelerator-resident Vector but staging through host memory
// was not enabled for it.
var ErrDeviceResident = errors.New("vector is device-resident and staging is not enabled")

// An Allreducer combines equal-length vectors across the
// members of a Transport so that every member ends up with the
// same combined vector.
//
// Implementations live in the allreduce subpackage.
type Allreducer interface {
	// Allreduce must be called by every member of t with
	// vectors of the same length. It returns the reduction
	// across all members.
	Allreduce(t Transport, data []float64, fn ReduceFn) []float64
}

// A Group is a communicator shared by every worker in a
// training job.
//
// Every member must issue the same operations in the same
// order.
type Group interface {
	// Rank returns this member's index, from 0 through
	// Size()-1.
	Rank() int

	// Size returns the number of members.
	Size() int

	// AllReduce combines vec across the group with op and
	// replaces every member's vec with the result.
	AllReduce(vec *tensor.Vector, op ReduceOp) error

	// AllReduceMean replaces vec with the mean of every
	// member's vec.
	AllReduceMean(vec *tensor.Vector) error

	// Bcast replaces every member's vec with the root
	// member's vec.
	Bcast(vec *tensor.Vector, root int) error

	// Barrier blocks until every member reaches it.
	Barrier() error
}

type transportGroup struct {
	rt      *roundTransport
	reducer Allreducer
}

// NewGroup creates a Group whose collective operations run
// over t using reducer.
//
// The Group frames its traffic with round numbers, so that a
// member racing ahead to the next operation cannot corrupt a
// slower member's current one. The Transport must not be used
// for anything else once handed to NewGroup.
func NewGroup(t Transport, reducer Allreducer) Group {
	return &transportGroup{rt: newRoundTransport(t), reducer: reducer}
}

func (g *transportGroup) Rank() int {
	return g.rt.Rank()
}

func (g *transportGroup) Size() int {
	return g.rt.Size()
}

func (g *transportGroup) AllReduce(vec *tensor.Vector, op ReduceOp) error {
	return g.allReduce(vec, op.Fn(), op.String(), 1)
}

func (g *transportGroup) AllReduceMean(vec *tensor.Vector) error {
	return g.allReduce(vec, Sum, "mean", 1/float64(g.Size()))
}

func (g *transportGroup) allReduce(vec *tensor.Vector, fn ReduceFn, opName string, scale float64) error {
	data, err := vec.Read()
	if err != nil {
		return fmt.Errorf("allreduce %s: %w", opName, err)
	}
	g.rt.begin()
	out := g.reducer.Allreduce(g.rt, data, fn)
	if scale != 1 {
		for i := range out {
			out[i] *= scale
		}
	}
	if err := vec.Write(out); err != nil {
		return fmt.Errorf("allreduce %s: %w", opName, err)
	}
	operationsTotal.WithLabelValues("allreduce_" + opName).Inc()
	vectorBytesTotal.Add(float64(8 * vec.Len()))
	return nil
}

func (g *transportGroup) Bcast(vec *tensor.Vector, root int) error {
	if root < 0 || root >= g.Size() {
		return fmt.Errorf("bcast: rank %d outside group of %d", root, g.Size())
	}
	g.rt.begin()
	if g.Rank() == root {
		data, err := vec.Read()
		if err != nil {
			return fmt.Errorf("bcast: %w", err)
		}
		for i := 0; i < g.Size(); i++ {
			if i != root {
				g.rt.Send(i, data)
			}
		}
	} else {
		data, from := g.rt.Recv()
		if from != root {
			return fmt.Errorf("bcast: expected vector from rank %d but got one from rank %d", root, from)
		}
		if len(data) != vec.Len() {
			return fmt.Errorf("bcast: root sent %d values but vector holds %d", len(data), vec.Len())
		}
		if err := vec.Write(data); err != nil {
			return fmt.Errorf("bcast: %w", err)
		}
	}
	operationsTotal.WithLabelValues("bcast").Inc()
	vectorBytesTotal.Add(float64(8 * vec.Len()))
	return nil
}

func (g *transportGroup) Barrier() error {
	g.rt.begin()
	g.reducer.Allreduce(g.rt, []float64{0}, Sum)
	operationsTotal.WithLabelValues("barrier").Inc()
	return nil
}
