package train

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// A Trainer drives an Updater until a stop trigger fires,
// invoking registered extensions along the way.
type Trainer struct {
	updater Updater
	until   Trigger
	log     *zap.Logger
	exts    []*extensionEntry
	obs     Observations
}

// An Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the Trainer's logger. The default discards
// everything.
func WithLogger(log *zap.Logger) Option {
	return func(t *Trainer) {
		t.log = log
	}
}

// New creates a Trainer that runs updater until the stop
// trigger fires.
func New(updater Updater, until Trigger, opts ...Option) *Trainer {
	t := &Trainer{
		updater: updater,
		until:   until,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Extend registers an extension.
//
// Unless overridden by options, it fires every iteration with
// PriorityReader and a name derived from its type.
func (t *Trainer) Extend(ext Extension, opts ...ExtendOption) {
	entry := &extensionEntry{
		name:     defaultName(ext),
		ext:      ext,
		trigger:  Every(1, ByIteration),
		priority: PriorityReader,
		order:    len(t.exts),
	}
	for _, opt := range opts {
		opt(entry)
	}
	t.exts = append(t.exts, entry)
}

// Updater returns the Updater the Trainer drives.
func (t *Trainer) Updater() Updater {
	return t.updater
}

// Observations returns the current iteration's observation
// set. It is replaced at the start of every iteration.
func (t *Trainer) Observations() Observations {
	return t.obs
}

// Run trains until the stop trigger fires, the context is
// cancelled, or an update or extension fails.
//
// Within one iteration, extensions whose triggers fired run in
// descending priority order; ties run in registration order.
func (t *Trainer) Run(ctx context.Context) error {
	ordered := append([]*extensionEntry(nil), t.exts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].priority != ordered[j].priority {
			return ordered[i].priority > ordered[j].priority
		}
		return ordered[i].order < ordered[j].order
	})

	t.log.Info("training started",
		zap.Int("iteration", t.updater.Iteration()),
		zap.Int("extensions", len(ordered)))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.obs = Observations{}
		if err := t.updater.Update(t.obs); err != nil {
			return fmt.Errorf("update at iteration %d: %w", t.updater.Iteration(), err)
		}
		iterationsTotal.Inc()
		for key, value := range t.obs {
			if x, ok := value.(float64); ok {
				observationGauge.WithLabelValues(key).Set(x)
			}
		}

		for _, entry := range ordered {
			if !entry.trigger.Fire(t.updater) {
				continue
			}
			if err := entry.ext.Invoke(t); err != nil {
				return fmt.Errorf("extension %q at iteration %d: %w",
					entry.name, t.updater.Iteration(), err)
			}
		}

		if t.until.Fire(t.updater) {
			t.log.Info("training finished",
				zap.Int("iteration", t.updater.Iteration()),
				zap.Int("epoch", t.updater.Epoch()))
			return nil
		}
	}
}
