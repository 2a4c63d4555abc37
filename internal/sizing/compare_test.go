package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIdenticalSamples(t *testing.T) {
	a := normalSample(100, 10, 200)
	c, err := Compare(a, a)
	require.NoError(t, err)

	assert.Equal(t, 200, c.NA)
	assert.Equal(t, 200, c.NB)
	assert.Zero(t, c.KSStatistic)
	assert.Equal(t, 1.0, c.PValue)
	assert.Zero(t, c.CohensD)
	assert.Zero(t, c.CliffsDelta)
	assert.Zero(t, c.MedianShiftNM)
	assert.False(t, c.Significant(0.05))
}

func TestCompareShiftedSamples(t *testing.T) {
	control := normalSample(100, 10, 200)
	stained := normalSample(110, 10, 200)

	c, err := Compare(control, stained)
	require.NoError(t, err)

	assert.InDelta(t, 0.383, c.KSStatistic, 0.01)
	assert.Less(t, c.PValue, 1e-6)
	assert.True(t, c.Significant(0.05))
	assert.InDelta(t, 1.0, c.CohensD, 0.05)
	assert.InDelta(t, 0.52, c.CliffsDelta, 0.03)
	assert.InDelta(t, 10, c.MedianShiftNM, 0.01)

	// Swapping the samples flips the signed effect sizes.
	r, err := Compare(stained, control)
	require.NoError(t, err)
	assert.InDelta(t, -c.CohensD, r.CohensD, 1e-12)
	assert.InDelta(t, -c.CliffsDelta, r.CliffsDelta, 1e-12)
	assert.Equal(t, c.KSStatistic, r.KSStatistic)
}

func TestCompareNeedsData(t *testing.T) {
	_, err := Compare([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCliffsDeltaCountsTies(t *testing.T) {
	// Pairs: (1,1) tie, (1,3) y>x, (2,1) y<x, (2,3) y>x.
	assert.InDelta(t, 0.25, cliffsDelta([]float64{1, 2}, []float64{1, 3}), 1e-12)
}

func TestQKSLimits(t *testing.T) {
	assert.Equal(t, 1.0, qKS(0))
	assert.InDelta(t, 0, qKS(5), 1e-15)
	// Q_KS(1) ≈ 0.27.
	assert.InDelta(t, 0.27, qKS(1), 0.005)
}
