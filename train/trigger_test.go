package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firePattern runs the updater for iters iterations and
// records which iterations the trigger fired on.
func firePattern(t *testing.T, trigger Trigger, itersPerEpoch, iters int) []int {
	t.Helper()
	up := &StepUpdater{
		Step:          func(obs Observations) error { return nil },
		ItersPerEpoch: itersPerEpoch,
	}
	var fired []int
	for i := 0; i < iters; i++ {
		require.NoError(t, up.Update(Observations{}))
		if trigger.Fire(up) {
			fired = append(fired, up.Iteration())
		}
	}
	return fired
}

func TestEveryIteration(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6},
		firePattern(t, Every(1, ByIteration), 1, 6))
	assert.Equal(t, []int{2, 4, 6},
		firePattern(t, Every(2, ByIteration), 1, 6))
	assert.Equal(t, []int{3, 6},
		firePattern(t, Every(3, ByIteration), 1, 7))
}

func TestEveryEpoch(t *testing.T) {
	assert.Equal(t, []int{3, 6},
		firePattern(t, Every(1, ByEpoch), 3, 7))
	assert.Equal(t, []int{4, 8},
		firePattern(t, Every(2, ByEpoch), 2, 9))
}

func TestStopTriggers(t *testing.T) {
	assert.Equal(t, []int{3, 4, 5},
		firePattern(t, Steps(3), 1, 5))
	assert.Equal(t, []int{4, 5},
		firePattern(t, Epochs(2), 2, 5))
}

func TestEveryRejectsBadInterval(t *testing.T) {
	assert.Panics(t, func() { Every(0, ByIteration) })
}
