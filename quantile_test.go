package opencoroutine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResumeQuantileMarker_ConvergesOnUniformData(t *testing.T) {
	m := newResumeQuantileMarker(0.5)
	for i := 1; i <= 1000; i++ {
		m.update(float64(i))
	}
	require.InDelta(t, 500, m.value(), 50)
	require.Equal(t, 1000, m.count())
	require.Equal(t, 1000.0, m.max())
}

func TestResumeQuantileMarker_FewerThanFiveSamples(t *testing.T) {
	m := newResumeQuantileMarker(0.5)
	m.update(3)
	m.update(1)
	m.update(2)
	require.Equal(t, 3, m.count())
	require.Equal(t, 3.0, m.max())
}

func TestResumeQuantileSketch_TracksSumMeanMax(t *testing.T) {
	s := newResumeQuantileSketch(0.5, 0.99)
	for i := 1; i <= 10; i++ {
		s.record(float64(i))
	}
	require.Equal(t, 10, s.count())
	require.Equal(t, 55.0, s.sumNanos())
	require.Equal(t, 5.5, s.meanNanos())
	require.Equal(t, 10.0, s.maxNanos())
}

func TestResumeQuantileSketch_QuantileOutOfRangeReturnsZero(t *testing.T) {
	s := newResumeQuantileSketch(0.5)
	require.Equal(t, 0.0, s.quantile(5))
	require.Equal(t, 0.0, s.quantile(-1))
}

func TestResumeQuantileSketch_Reset(t *testing.T) {
	s := newResumeQuantileSketch(0.5)
	for i := 1; i <= 10; i++ {
		s.record(float64(i))
	}
	s.reset()
	require.Equal(t, 0, s.count())
	require.Equal(t, 0.0, s.sumNanos())
	require.Equal(t, 0.0, s.maxNanos())
}
