// Package multinode provides trainer extensions for jobs where
// every worker runs its own Trainer connected to the others
// through a collective.Group.
package multinode

import (
	"fmt"

	"github.com/unixpickle/dist-train/collective"
	"github.com/unixpickle/dist-train/tensor"
	"github.com/unixpickle/dist-train/train"
)

// An ObservationAggregator averages an observation across every
// worker in the group.
//
// On every invocation it folds the local value of the source
// key into a running mean. When the communication trigger
// fires, the workers all-reduce their local means, divide by
// the group size, and report the global mean under the
// aggregated key, so every worker observes the same value. The
// local mean starts over after each communication.
//
// Scalar observations aggregate to scalars. Vector observations
// aggregate to a vector on the device of the source value; for
// values resident on an accelerator device this requires
// opting in with WithStaging, otherwise the aggregator fails
// with collective.ErrDeviceResident.
//
// Every worker in the group must register the aggregator with
// the same triggers, since communication is collective.
type ObservationAggregator struct {
	group         collective.Group
	key           string
	aggregatedKey string
	commTrigger   train.Trigger
	staging       tensor.Device

	local      train.MeanAccumulator
	sourceDev  tensor.Device
	lastResult *tensor.Vector
}

// An AggregatorOption configures an ObservationAggregator.
type AggregatorOption func(*ObservationAggregator)

// WithAggregatedKey reports the global mean under key instead
// of overwriting the source key.
func WithAggregatedKey(key string) AggregatorOption {
	return func(a *ObservationAggregator) {
		a.aggregatedKey = key
	}
}

// WithCommTrigger sets how often the workers communicate. The
// default is every iteration.
func WithCommTrigger(t train.Trigger) AggregatorOption {
	return func(a *ObservationAggregator) {
		a.commTrigger = t
	}
}

// WithStaging allows aggregating values resident on dev by
// staging them through host memory.
func WithStaging(dev tensor.Device) AggregatorOption {
	return func(a *ObservationAggregator) {
		a.staging = dev
	}
}

// NewObservationAggregator creates an aggregator for the given
// observation key.
//
// By default the global mean overwrites the source key and the
// group communicates every iteration.
func NewObservationAggregator(group collective.Group, key string, opts ...AggregatorOption) *ObservationAggregator {
	a := &ObservationAggregator{
		group:         group,
		key:           key,
		aggregatedKey: key,
		commTrigger:   train.Every(1, train.ByIteration),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke accumulates the local observation and, when the
// communication trigger fires, reports the group mean.
func (a *ObservationAggregator) Invoke(tr *train.Trainer) error {
	values, err := a.localValue(tr.Observations())
	if err != nil {
		return err
	}
	if err := a.local.Add(values); err != nil {
		return fmt.Errorf("observation %q: %w", a.key, err)
	}
	if !a.commTrigger.Fire(tr.Updater()) {
		return nil
	}

	mean := a.local.Mean()
	a.local.Reset()

	scratch, err := tensor.FromSlice(tensor.Host(), mean)
	if err != nil {
		return fmt.Errorf("observation %q: %w", a.key, err)
	}
	defer scratch.Free()
	if err := a.group.AllReduceMean(scratch); err != nil {
		return fmt.Errorf("observation %q: %w", a.key, err)
	}
	global, err := scratch.Read()
	if err != nil {
		return fmt.Errorf("observation %q: %w", a.key, err)
	}
	return a.report(tr.Observations(), global)
}

// localValue extracts this iteration's value of the source key
// as a host slice, enforcing the staging policy.
func (a *ObservationAggregator) localValue(obs train.Observations) ([]float64, error) {
	value, ok := obs[a.key]
	if !ok {
		return nil, fmt.Errorf("observation %q was not reported this iteration", a.key)
	}
	switch v := value.(type) {
	case float64:
		a.sourceDev = nil
		return []float64{v}, nil
	case *tensor.Vector:
		dev := v.Device()
		if dev != tensor.Host() {
			if a.staging == nil {
				return nil, fmt.Errorf("observation %q on %s: %w", a.key, dev.Name(), collective.ErrDeviceResident)
			}
			if dev != a.staging {
				return nil, fmt.Errorf("observation %q lives on %s but staging is enabled for %s",
					a.key, dev.Name(), a.staging.Name())
			}
		}
		data, err := v.Read()
		if err != nil {
			return nil, fmt.Errorf("observation %q: %w", a.key, err)
		}
		a.sourceDev = dev
		return data, nil
	default:
		return nil, fmt.Errorf("observation %q has unsupported type %T", a.key, value)
	}
}

// report publishes the global mean in the same representation
// as the source value.
//
// The aggregator owns the vectors it reports and frees each
// one when the next communication replaces it.
func (a *ObservationAggregator) report(obs train.Observations, global []float64) error {
	if a.sourceDev == nil {
		obs.Report(a.aggregatedKey, global[0])
		return nil
	}
	result, err := tensor.FromSlice(a.sourceDev, global)
	if err != nil {
		return fmt.Errorf("observation %q: %w", a.key, err)
	}
	if a.lastResult != nil {
		a.lastResult.Free()
	}
	a.lastResult = result
	obs.Report(a.aggregatedKey, result)
	return nil
}
