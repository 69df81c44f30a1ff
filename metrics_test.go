package fibermill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountersAccumulate(t *testing.T) {
	m := newMetrics()
	m.recordSubmit()
	m.recordSubmit()
	m.recordCompletion()
	m.recordSuspend()

	snap := m.snapshot()
	assert.EqualValues(t, 2, snap.Submitted)
	assert.EqualValues(t, 1, snap.Completed)
	assert.EqualValues(t, 1, snap.Suspended)
}

func TestMetrics_ResumeLatencyQuantiles(t *testing.T) {
	m := newMetrics()
	for i := 0; i < 500; i++ {
		m.recordResumeLatency(time.Duration(i+1) * time.Microsecond)
	}
	snap := m.snapshot()
	assert.Greater(t, snap.ResumeLatencyP99, snap.ResumeLatencyP50)
	assert.Greater(t, snap.ResumeLatencyMean, time.Duration(0))
}

func TestWelfordStat_MeanAndStddev(t *testing.T) {
	var s welfordStat
	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.add(v)
	}
	count, mean, stddev := s.snapshot()
	assert.EqualValues(t, 5, count)
	assert.InDelta(t, 3.0, mean, 1e-9)
	assert.Greater(t, stddev, 0.0)
}

func TestWelfordStat_SingleSampleHasZeroStddev(t *testing.T) {
	var s welfordStat
	s.add(42)
	_, mean, stddev := s.snapshot()
	assert.Equal(t, 42.0, mean)
	assert.Zero(t, stddev)
}

func TestPSquareMultiQuantile_TracksMeanMaxSum(t *testing.T) {
	q := newPSquareMultiQuantile(0.5, 0.9)
	for i := 1; i <= 100; i++ {
		q.Update(float64(i))
	}
	assert.Equal(t, 100, q.Count())
	assert.Equal(t, 100.0, q.Max())
	assert.InDelta(t, 50.5, q.Mean(), 0.5)
	assert.Greater(t, q.Quantile(1), q.Quantile(0))
}

func TestPSquareMultiQuantile_ResetClearsState(t *testing.T) {
	q := newPSquareMultiQuantile(0.5)
	for i := 0; i < 10; i++ {
		q.Update(float64(i))
	}
	q.Reset()
	assert.Equal(t, 0, q.Count())
	assert.Equal(t, 0.0, q.Sum())
}
