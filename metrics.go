package fibermill

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics accumulates the runtime's counters and latency estimators. All
// methods are safe for concurrent use by every worker and by Runtime.Metrics
// readers, using an atomic/mutex split: lock-free counters for submit,
// completion and suspension, and mutexes around the latency estimators,
// which are updated once per resume.
type Metrics struct {
	submitted  atomic.Uint64
	completed  atomic.Uint64
	suspended  atomic.Uint64

	resumeLatency welfordStat
	quantiles     *pSquareMultiQuantile
	quantMu       sync.Mutex
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordSubmit()     { m.submitted.Add(1) }
func (m *Metrics) recordCompletion() { m.completed.Add(1) }
func (m *Metrics) recordSuspend()    { m.suspended.Add(1) }

// recordResumeLatency feeds one fiber resume's wall-clock latency into
// both a Welford running-mean/stddev estimator and a P² streaming
// quantile estimator, which together trade an O(1) exact moment
// calculation against an O(1) approximate-percentile one.
func (m *Metrics) recordResumeLatency(d time.Duration) {
	m.resumeLatency.add(float64(d))
	m.quantMu.Lock()
	if m.quantiles == nil {
		m.quantiles = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	m.quantiles.Update(float64(d))
	m.quantMu.Unlock()
}

// Snapshot is a point-in-time copy of the runtime's counters, safe to read
// after Metrics() returns.
type Snapshot struct {
	Submitted uint64
	Completed uint64
	Suspended uint64

	ResumeLatencyMean   time.Duration
	ResumeLatencyStddev time.Duration
	ResumeLatencyP50    time.Duration
	ResumeLatencyP90    time.Duration
	ResumeLatencyP95    time.Duration
	ResumeLatencyP99    time.Duration
}

func (m *Metrics) snapshot() Snapshot {
	_, mean, std := m.resumeLatency.snapshot()
	s := Snapshot{
		Submitted:           m.submitted.Load(),
		Completed:           m.completed.Load(),
		Suspended:           m.suspended.Load(),
		ResumeLatencyMean:   time.Duration(mean),
		ResumeLatencyStddev: time.Duration(std),
	}
	m.quantMu.Lock()
	if m.quantiles != nil {
		s.ResumeLatencyP50 = time.Duration(m.quantiles.Quantile(0))
		s.ResumeLatencyP90 = time.Duration(m.quantiles.Quantile(1))
		s.ResumeLatencyP95 = time.Duration(m.quantiles.Quantile(2))
		s.ResumeLatencyP99 = time.Duration(m.quantiles.Quantile(3))
	}
	m.quantMu.Unlock()
	return s
}

// welfordStat is a running mean/variance estimator (Welford's algorithm),
// adapted from Guti2010-Proyecto-SO's internal/sched.stat: a numerically
// stable O(1)-per-sample alternative to storing every latency sample just
// to compute a mean and standard deviation.
type welfordStat struct {
	mu   sync.Mutex
	n    int64
	mean float64
	m2   float64
}

func (s *welfordStat) add(x float64) {
	s.mu.Lock()
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	delta2 := x - s.mean
	s.m2 += delta * delta2
	s.mu.Unlock()
}

func (s *welfordStat) snapshot() (count int64, mean, stddev float64) {
	s.mu.Lock()
	count = s.n
	mean = s.mean
	if s.n > 1 {
		if variance := s.m2 / float64(s.n-1); variance > 0 {
			stddev = math.Sqrt(variance)
		}
	}
	s.mu.Unlock()
	return
}
