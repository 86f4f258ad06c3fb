package opencoroutine

import "math"

// resumeQuantileMarker streams one target quantile of Coroutine.Resume
// durations using the P-Square algorithm (Jain & Chlamtac, 1985), giving
// ResumeLatency O(1) updates and O(1) reads instead of keeping every
// sample around for a sort. Durations are tracked as float64 nanoseconds
// internally; ResumeLatency converts back to time.Duration at read time.
//
// Thread safety: NOT thread-safe. ResumeLatency.mu is the caller's lock.
type resumeQuantileMarker struct {
	// target is the quantile this marker estimates (0.0 to 1.0).
	target float64

	// height holds the 5 marker heights, in resume-latency nanoseconds.
	height [5]float64

	// pos holds the 5 marker positions (actual observation counts so far).
	pos [5]int

	// desiredPos holds the 5 idealized (floating point) marker positions.
	desiredPos [5]float64

	// desiredStep holds the per-sample increment for desiredPos.
	desiredStep [5]float64

	// seen is the total number of resume-duration samples fed in.
	seen int

	// warmup buffers the first 5 samples before the marker positions are
	// seeded.
	warmup [5]float64
}

// newResumeQuantileMarker creates an estimator for the given quantile.
// target is clamped to [0.0, 1.0].
func newResumeQuantileMarker(target float64) *resumeQuantileMarker {
	if target < 0 {
		target = 0
	}
	if target > 1 {
		target = 1
	}
	return &resumeQuantileMarker{
		target:      target,
		desiredStep: [5]float64{0, target / 2, target, (1 + target) / 2, 1},
	}
}

// update folds one resume-duration sample (in nanoseconds) in.
func (m *resumeQuantileMarker) update(ns float64) {
	m.seen++

	if m.seen <= 5 {
		m.warmup[m.seen-1] = ns
		if m.seen == 5 {
			m.seedMarkers()
		}
		return
	}

	var k int
	if ns < m.height[0] {
		m.height[0] = ns
		k = 0
	} else if ns >= m.height[4] {
		m.height[4] = ns
		k = 3
	} else {
		for k = 0; k < 4; k++ {
			if m.height[k] <= ns && ns < m.height[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		m.pos[i]++
	}
	for i := 0; i < 5; i++ {
		m.desiredPos[i] += m.desiredStep[i]
	}

	for i := 1; i < 4; i++ {
		d := m.desiredPos[i] - float64(m.pos[i])
		if (d >= 1 && m.pos[i+1]-m.pos[i] > 1) || (d <= -1 && m.pos[i-1]-m.pos[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			adjusted := m.parabolicAdjust(i, sign)
			if m.height[i-1] < adjusted && adjusted < m.height[i+1] {
				m.height[i] = adjusted
			} else {
				m.height[i] = m.linearAdjust(i, sign)
			}
			m.pos[i] += sign
		}
	}
}

// seedMarkers initializes the five markers from the first five samples.
func (m *resumeQuantileMarker) seedMarkers() {
	for i := 1; i < 5; i++ {
		key := m.warmup[i]
		j := i - 1
		for j >= 0 && m.warmup[j] > key {
			m.warmup[j+1] = m.warmup[j]
			j--
		}
		m.warmup[j+1] = key
	}
	for i := 0; i < 5; i++ {
		m.height[i] = m.warmup[i]
		m.pos[i] = i
	}
	m.desiredPos = [5]float64{0, 2 * m.target, 4 * m.target, 2 + 2*m.target, 4}
}

func (m *resumeQuantileMarker) parabolicAdjust(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(m.pos[i]), float64(m.pos[i-1]), float64(m.pos[i+1])

	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (m.height[i+1] - m.height[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (m.height[i] - m.height[i-1]) / (ni - niPrev)

	return m.height[i] + term1*(term2+term3)
}

func (m *resumeQuantileMarker) linearAdjust(i, d int) float64 {
	if d == 1 {
		return m.height[i] + (m.height[i+1]-m.height[i])/float64(m.pos[i+1]-m.pos[i])
	}
	return m.height[i] - (m.height[i]-m.height[i-1])/float64(m.pos[i]-m.pos[i-1])
}

// value returns the current estimated quantile, in nanoseconds.
func (m *resumeQuantileMarker) value() float64 {
	if m.seen == 0 {
		return 0
	}
	if m.seen < 5 {
		sorted := make([]float64, m.seen)
		copy(sorted, m.warmup[:m.seen])
		for i := 1; i < m.seen; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		idx := int(float64(m.seen-1) * m.target)
		if idx >= m.seen {
			idx = m.seen - 1
		}
		return sorted[idx]
	}
	return m.height[2]
}

func (m *resumeQuantileMarker) count() int { return m.seen }

func (m *resumeQuantileMarker) max() float64 {
	if m.seen == 0 {
		return 0
	}
	if m.seen < 5 {
		max := m.warmup[0]
		for i := 1; i < m.seen; i++ {
			if m.warmup[i] > max {
				max = m.warmup[i]
			}
		}
		return max
	}
	return m.height[4]
}

// resumeQuantileSketch tracks ResumeLatency's P50/P90/P95/P99 markers
// together, plus the running sum/max needed for Mean without re-scanning
// the sample ring buffer.
//
// Thread safety: NOT thread-safe. ResumeLatency.mu is the caller's lock.
type resumeQuantileSketch struct {
	markers []*resumeQuantileMarker
	sum     float64
	seen    int
	max     float64
}

// newResumeQuantileSketch creates a sketch tracking the given quantiles
// (each in [0.0, 1.0]) over resume durations.
func newResumeQuantileSketch(quantiles ...float64) *resumeQuantileSketch {
	s := &resumeQuantileSketch{
		markers: make([]*resumeQuantileMarker, len(quantiles)),
		max:     -math.MaxFloat64,
	}
	for i, q := range quantiles {
		s.markers[i] = newResumeQuantileMarker(q)
	}
	return s
}

// record folds one resume duration (in nanoseconds) into every tracked
// quantile.
func (s *resumeQuantileSketch) record(ns float64) {
	s.seen++
	s.sum += ns
	if ns > s.max {
		s.max = ns
	}
	for _, m := range s.markers {
		m.update(ns)
	}
}

// quantile returns the i-th tracked quantile's current estimate, in
// nanoseconds, or 0 if i is out of range.
func (s *resumeQuantileSketch) quantile(i int) float64 {
	if i < 0 || i >= len(s.markers) {
		return 0
	}
	return s.markers[i].value()
}

func (s *resumeQuantileSketch) count() int { return s.seen }

func (s *resumeQuantileSketch) sumNanos() float64 { return s.sum }

func (s *resumeQuantileSketch) maxNanos() float64 {
	if s.seen == 0 {
		return 0
	}
	return s.max
}

func (s *resumeQuantileSketch) meanNanos() float64 {
	if s.seen == 0 {
		return 0
	}
	return s.sum / float64(s.seen)
}

// reset clears every tracked quantile for reuse.
func (s *resumeQuantileSketch) reset() {
	s.sum = 0
	s.seen = 0
	s.max = -math.MaxFloat64
	for _, m := range s.markers {
		*m = *newResumeQuantileMarker(m.target)
	}
}
