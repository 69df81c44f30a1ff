package fibermill

import "math"

// pSquareQuantile is Jain &amp; Chlamtac's P² algorithm: five markers tracking
// one target quantile with O(1) update and O(1) read, no sample retention.
// Metrics uses one of these per tracked percentile to estimate fiber-resume
// latency distributions without storing every resume's duration.
//
// Not safe for concurrent use; Metrics guards access with quantMu.
type pSquareQuantile struct {
	p float64 // target quantile, 0..1

	heights [5]float64 // marker heights (observed values)
	marks   [5]int     // marker positions, 0-indexed
	desired [5]float64 // desired (ideal, fractional) marker positions
	incr    [5]float64 // per-observation increment of desired positions

	seen int        // observations received so far
	fill [5]float64 // buffers the first 5 observations before markers exist
}

func newPSquareQuantile(p float64) *pSquareQuantile {
	switch {
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}
	return &pSquareQuantile{
		p:    p,
		incr: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// Update folds one more observation into the estimator.
func (ps *pSquareQuantile) Update(x float64) {
	ps.seen++
	if ps.seen <= 5 {
		ps.fill[ps.seen-1] = x
		if ps.seen == 5 {
			ps.seedMarkers()
		}
		return
	}

	k := ps.cellOf(x)
	for i := k + 1; i < 5; i++ {
		ps.marks[i]++
	}
	for i := range ps.desired {
		ps.desired[i] += ps.incr[i]
	}
	ps.settleInteriorMarkers()
}

// cellOf finds which of the four cells x falls into, extending the range
// (and clamping the new extreme marker height) if x is a new min or max.
func (ps *pSquareQuantile) cellOf(x float64) int {
	switch {
	case x < ps.heights[0]:
		ps.heights[0] = x
		return 0
	case x >= ps.heights[4]:
		ps.heights[4] = x
		return 3
	default:
		for k := 0; k < 4; k++ {
			if ps.heights[k] <= x && x < ps.heights[k+1] {
				return k
			}
		}
		return 3
	}
}

// settleInteriorMarkers nudges markers 1..3 toward their desired position by
// one step, using the parabolic formula when it stays within the marker's
// neighbors and falling back to linear interpolation otherwise.
func (ps *pSquareQuantile) settleInteriorMarkers() {
	for i := 1; i < 4; i++ {
		d := ps.desired[i] - float64(ps.marks[i])
		if d >= 1 && ps.marks[i+1]-ps.marks[i] > 1 {
			ps.adjustMarker(i, 1)
		} else if d <= -1 && ps.marks[i-1]-ps.marks[i] < -1 {
			ps.adjustMarker(i, -1)
		}
	}
}

func (ps *pSquareQuantile) adjustMarker(i, sign int) {
	qPrime := ps.parabolic(i, sign)
	if ps.heights[i-1] < qPrime && qPrime < ps.heights[i+1] {
		ps.heights[i] = qPrime
	} else {
		ps.heights[i] = ps.linear(i, sign)
	}
	ps.marks[i] += sign
}

// seedMarkers sorts the first 5 samples and plants the initial markers.
func (ps *pSquareQuantile) seedMarkers() {
	insertionSort(ps.fill[:])
	for i := range ps.heights {
		ps.heights[i] = ps.fill[i]
		ps.marks[i] = i
	}
	ps.desired = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}
}

func (ps *pSquareQuantile) parabolic(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(ps.marks[i]), float64(ps.marks[i-1]), float64(ps.marks[i+1])
	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (ps.heights[i+1] - ps.heights[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (ps.heights[i] - ps.heights[i-1]) / (ni - niPrev)
	return ps.heights[i] + term1*(term2+term3)
}

func (ps *pSquareQuantile) linear(i, d int) float64 {
	if d == 1 {
		return ps.heights[i] + (ps.heights[i+1]-ps.heights[i])/float64(ps.marks[i+1]-ps.marks[i])
	}
	return ps.heights[i] - (ps.heights[i]-ps.heights[i-1])/float64(ps.marks[i]-ps.marks[i-1])
}

// Quantile returns the current estimate. Before 5 observations have been
// seen it falls back to an exact sort of the buffered samples.
func (ps *pSquareQuantile) Quantile() float64 {
	if ps.seen == 0 {
		return 0
	}
	if ps.seen < 5 {
		sorted := append([]float64(nil), ps.fill[:ps.seen]...)
		insertionSort(sorted)
		idx := int(float64(ps.seen-1) * ps.p)
		if idx >= ps.seen {
			idx = ps.seen - 1
		}
		return sorted[idx]
	}
	return ps.heights[2]
}

// Max returns the largest value observed.
func (ps *pSquareQuantile) Max() float64 {
	if ps.seen == 0 {
		return 0
	}
	if ps.seen < 5 {
		max := ps.fill[0]
		for _, v := range ps.fill[1:ps.seen] {
			if v > max {
				max = v
			}
		}
		return max
	}
	return ps.heights[4]
}

func insertionSort(xs []float64) {
	for i := 1; i < len(xs); i++ {
		key := xs[i]
		j := i - 1
		for j >= 0 && xs[j] > key {
			xs[j+1] = xs[j]
			j--
		}
		xs[j+1] = key
	}
}

// pSquareMultiQuantile is the estimator Metrics actually holds: one
// pSquareQuantile per percentile it tracks, plus the running sum/max/count
// needed for Mean/Max without a separate welfordStat.
type pSquareMultiQuantile struct {
	estimators []*pSquareQuantile
	sum        float64
	count      int
	max        float64
}

// newPSquareMultiQuantile builds an estimator tracking each percentile in
// percentiles (each in 0..1). Metrics calls this with 0.50, 0.90, 0.95, 0.99
// for resume-latency P50/P90/P95/P99.
func newPSquareMultiQuantile(percentiles ...float64) *pSquareMultiQuantile {
	m := &pSquareMultiQuantile{
		estimators: make([]*pSquareQuantile, len(percentiles)),
		max:        -math.MaxFloat64,
	}
	for i, p := range percentiles {
		m.estimators[i] = newPSquareQuantile(p)
	}
	return m
}

func (m *pSquareMultiQuantile) Update(x float64) {
	m.count++
	m.sum += x
	if x > m.max {
		m.max = x
	}
	for _, est := range m.estimators {
		est.Update(x)
	}
}

// Quantile returns the estimate for the i-th percentile passed to
// newPSquareMultiQuantile, or 0 if i is out of range.
func (m *pSquareMultiQuantile) Quantile(i int) float64 {
	if i < 0 || i >= len(m.estimators) {
		return 0
	}
	return m.estimators[i].Quantile()
}

func (m *pSquareMultiQuantile) Count() int { return m.count }

func (m *pSquareMultiQuantile) Sum() float64 { return m.sum }

func (m *pSquareMultiQuantile) Max() float64 {
	if m.count == 0 {
		return 0
	}
	return m.max
}

func (m *pSquareMultiQuantile) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Reset clears all accumulated state so the estimator can be reused.
func (m *pSquareMultiQuantile) Reset() {
	m.sum = 0
	m.count = 0
	m.max = -math.MaxFloat64
	for _, est := range m.estimators {
		*est = *newPSquareQuantile(est.p)
	}
}
