package train

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogReport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	up := &StepUpdater{}
	up.Step = func(obs Observations) error {
		obs.Report("loss", float64(up.Iteration()))
		obs.Report("constant", 7.0)
		return nil
	}
	tr := New(up, Steps(4))
	tr.Extend(NewLogReport(logger, Every(2, ByIteration), "loss"))
	require.NoError(t, tr.Run(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, int64(2), first["iteration"])
	assert.Equal(t, 0.5, first["loss"])
	assert.NotContains(t, first, "constant")

	second := entries[1].ContextMap()
	assert.Equal(t, int64(4), second["iteration"])
	assert.Equal(t, 2.5, second["loss"])
}

func TestLogReportAllKeys(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	up := &StepUpdater{Step: func(obs Observations) error {
		obs.Report("a", 1.0)
		obs.Report("b", 2.0)
		return nil
	}}
	tr := New(up, Steps(1))
	tr.Extend(NewLogReport(logger, Every(1, ByIteration)))
	require.NoError(t, tr.Run(context.Background()))

	require.Len(t, logs.All(), 1)
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, 1.0, fields["a"])
	assert.Equal(t, 2.0, fields["b"])
}
