package utils

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyTracker keeps the most recent duration samples in a ring and computes percentiles over
// them.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []float64
	next    int
	total   uint64
}

// NewLatencyTracker creates a tracker retaining up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{samples: make([]float64, 0, size)}
}

// Observe records a new duration, overwriting the oldest sample once the ring is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) < cap(l.samples) {
		l.samples = append(l.samples, float64(d))
	} else {
		l.samples[l.next] = float64(d)
	}
	l.next = (l.next + 1) % cap(l.samples)
	l.total++
}

// Percentile returns the p-th percentile (0-100) of retained samples, or zero without samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	sorted := append([]float64(nil), l.samples...)
	l.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)
	switch {
	case p <= 0:
		return time.Duration(sorted[0])
	case p >= 100:
		return time.Duration(sorted[len(sorted)-1])
	}
	return time.Duration(stat.Quantile(p/100, stat.Empirical, sorted, nil))
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Total returns the number of samples observed since construction.
func (l *LatencyTracker) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
