// Package train provides a training loop driven by an Updater,
// with extensions that fire on configurable schedules and a
// per-iteration observation set they report into.
package train

// An Updater advances the model by one training iteration.
type Updater interface {
	// Update performs one iteration, reporting metrics into
	// obs.
	Update(obs Observations) error

	// Iteration returns the number of completed iterations.
	Iteration() int

	// Epoch returns the number of completed epochs.
	Epoch() int

	// EpochDetail returns the fractional epoch, e.g. 2.5
	// halfway through the third epoch.
	EpochDetail() float64
}

// A StepUpdater turns a step function into an Updater with
// iteration and epoch bookkeeping.
type StepUpdater struct {
	// Step runs one training iteration.
	Step func(obs Observations) error

	// ItersPerEpoch is the number of iterations in an epoch,
	// typically the dataset size divided by the batch size.
	// Zero means a single iteration per epoch.
	ItersPerEpoch int

	iteration int
}

func (s *StepUpdater) Update(obs Observations) error {
	if err := s.Step(obs); err != nil {
		return err
	}
	s.iteration++
	return nil
}

func (s *StepUpdater) Iteration() int {
	return s.iteration
}

func (s *StepUpdater) Epoch() int {
	return s.iteration / s.itersPerEpoch()
}

func (s *StepUpdater) EpochDetail() float64 {
	return float64(s.iteration) / float64(s.itersPerEpoch())
}

func (s *StepUpdater) itersPerEpoch() int {
	if s.ItersPerEpoch <= 0 {
		return 1
	}
	return s.ItersPerEpoch
}
