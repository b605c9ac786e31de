package train

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainer.json")

	up := &StepUpdater{ItersPerEpoch: 2}
	up.Step = func(obs Observations) error {
		obs.Report("loss", float64(10+up.Iteration()))
		return nil
	}
	tr := New(up, Steps(4))
	tr.Extend(NewSnapshot(path), WithTrigger(Every(2, ByIteration)))
	require.NoError(t, tr.Run(context.Background()))

	state, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 4, state.Iteration)
	assert.Equal(t, 2, state.Epoch)
	assert.Equal(t, 2.0, state.EpochDetail)
	assert.Equal(t, 13.0, state.Observations["loss"])
	assert.False(t, state.SavedAt.IsZero())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadSnapshotMissing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
