package train

import (
	"fmt"

	"github.com/unixpickle/dist-train/tensor"
)

// Observations holds the values reported during one training
// iteration, keyed by name.
//
// Values are either float64 scalars or *tensor.Vector arrays.
// The Trainer hands every extension the same set, so writers
// can report values that later extensions read.
type Observations map[string]any

// Report stores a value under key. The value must be a
// float64 or a *tensor.Vector.
func (o Observations) Report(key string, value any) {
	switch value.(type) {
	case float64, *tensor.Vector:
		o[key] = value
	default:
		panic(fmt.Sprintf("observation %q has unsupported type %T", key, value))
	}
}

// Float returns the float64 observation under key.
func (o Observations) Float(key string) (float64, bool) {
	x, ok := o[key].(float64)
	return x, ok
}

// Vector returns the *tensor.Vector observation under key.
func (o Observations) Vector(key string) (*tensor.Vector, bool) {
	v, ok := o[key].(*tensor.Vector)
	return v, ok
}

// A MeanAccumulator keeps the running mean of a stream of
// equal-length vectors. Scalars are length-1 vectors.
type MeanAccumulator struct {
	sum   []float64
	count int
}

// Add folds one vector into the running mean.
func (m *MeanAccumulator) Add(values []float64) error {
	if m.sum == nil {
		m.sum = append([]float64(nil), values...)
		m.count = 1
		return nil
	}
	if len(values) != len(m.sum) {
		return fmt.Errorf("accumulate %d values into a mean of %d", len(values), len(m.sum))
	}
	for i, x := range values {
		m.sum[i] += x
	}
	m.count++
	return nil
}

// Count returns the number of vectors folded in so far.
func (m *MeanAccumulator) Count() int {
	return m.count
}

// Mean returns the running mean, or nil before the first Add.
func (m *MeanAccumulator) Mean() []float64 {
	if m.count == 0 {
		return nil
	}
	out := make([]float64, len(m.sum))
	for i, x := range m.sum {
		out[i] = x / float64(m.count)
	}
	return out
}

// Reset discards the accumulated state.
func (m *MeanAccumulator) Reset() {
	m.sum = nil
	m.count = 0
}

// RunningMeans tracks per-key running means of the float
// observations seen since the last Reset. Vector observations
// are ignored.
type RunningMeans struct {
	accs map[string]*MeanAccumulator
}

// Observe folds every float observation in obs into its
// per-key mean.
func (r *RunningMeans) Observe(obs Observations) {
	for key, value := range obs {
		x, ok := value.(float64)
		if !ok {
			continue
		}
		if r.accs == nil {
			r.accs = map[string]*MeanAccumulator{}
		}
		acc := r.accs[key]
		if acc == nil {
			acc = &MeanAccumulator{}
			r.accs[key] = acc
		}
		acc.Add([]float64{x})
	}
}

// Means returns the mean for every observed key.
func (r *RunningMeans) Means() map[string]float64 {
	out := make(map[string]float64, len(r.accs))
	for key, acc := range r.accs {
		out[key] = acc.Mean()[0]
	}
	return out
}

// Reset discards all per-key state.
func (r *RunningMeans) Reset() {
	r.accs = nil
}
