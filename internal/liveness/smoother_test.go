package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(samples ...float64) RollWindow {
	var w RollWindow
	for _, s := range samples {
		w = w.Push(s)
	}
	return w
}

func TestRollWindow_NoDecisionBeforeFull(t *testing.T) {
	var w RollWindow
	for i := 0; i < WindowSize-1; i++ {
		w = w.Push(100)
		_, ok := w.Deviation()
		assert.False(t, ok, "sample %d", i+1)
		assert.False(t, w.Nodded(0))
	}
	assert.Equal(t, WindowSize-1, w.Len())
}

func TestRollWindow_IdenticalSamplesNeverNod(t *testing.T) {
	w := fill(3, 3, 3, 3, 3, 3, 3, 3, 3, 3)

	dev, ok := w.Deviation()

	require.True(t, ok)
	assert.Zero(t, dev)
	assert.False(t, w.Nodded(1.5))
	assert.True(t, w.Nodded(0))
}

func TestRollWindow_SpikeAfterStableBaselineNods(t *testing.T) {
	w := fill(0.1, -0.1, 0, 0.2, 0, -0.2, 0.1, 0, 0, 2)

	dev, ok := w.Deviation()

	require.True(t, ok)
	assert.InDelta(t, 2-0.7/9, dev, 1e-9)
	assert.True(t, w.Nodded(1.5))
	assert.True(t, w.Nodded(1.0))
}

func TestRollWindow_UsesAbsoluteValues(t *testing.T) {
	// A swing from +5 to -5 keeps the same magnitude, so it is not a nod.
	w := fill(5, 5, 5, 5, 5, 5, 5, 5, 5, -5)

	assert.False(t, w.Nodded(1.5))
	assert.Equal(t, 5.0, w.Values()[9])
}

func TestRollWindow_EvictsOldest(t *testing.T) {
	w := fill(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	assert.Equal(t, WindowSize, w.Len())
	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, w.Values())
}

func TestRollWindow_PushDoesNotMutateReceiver(t *testing.T) {
	w := fill(1, 2)
	_ = w.Push(3)

	assert.Equal(t, []float64{1, 2}, w.Values())
}
