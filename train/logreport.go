package train

import (
	"sort"

	"go.uber.org/zap"
)

// A LogReport logs the running means of float observations.
//
// It observes every iteration it is invoked on and emits one
// log entry whenever its own log trigger fires, then starts
// accumulating afresh. Register it with the default
// every-iteration trigger so that no observations are missed.
type LogReport struct {
	log        *zap.Logger
	logTrigger Trigger
	keys       []string
	means      RunningMeans
}

// NewLogReport creates a LogReport that logs on logTrigger.
//
// If keys are given, only those observation keys are reported;
// otherwise every float observation is.
func NewLogReport(log *zap.Logger, logTrigger Trigger, keys ...string) *LogReport {
	return &LogReport{log: log, logTrigger: logTrigger, keys: keys}
}

func (l *LogReport) Invoke(tr *Trainer) error {
	l.means.Observe(tr.Observations())
	if !l.logTrigger.Fire(tr.Updater()) {
		return nil
	}

	means := l.means.Means()
	l.means.Reset()

	fields := []zap.Field{
		zap.Int("iteration", tr.Updater().Iteration()),
		zap.Int("epoch", tr.Updater().Epoch()),
	}
	if len(l.keys) > 0 {
		for _, key := range l.keys {
			if x, ok := means[key]; ok {
				fields = append(fields, zap.Float64(key, x))
			}
		}
	} else {
		keys := make([]string, 0, len(means))
		for key := range means {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fields = append(fields, zap.Float64(key, means[key]))
		}
	}
	l.log.Info("report", fields...)
	return nil
}
