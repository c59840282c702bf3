// Package profiler collects render-loop statistics and reports them through
// the standard logger once per sampling interval. Collection is cheap enough
// to leave enabled in interactive sessions; the report line only prints when
// something happened during the interval.
package profiler

import (
	"log"
	"sync"
	"time"
)

const defaultInterval = 1 * time.Second

// Stats accumulates per-interval render-loop counters.
type Stats struct {
	mu sync.Mutex

	label    string
	interval time.Duration
	start    time.Time

	iterations  int
	cacheHits   int
	cacheMisses int
	uploads     int
	errors      int
}

// StatsOption is a functional option for configuring Stats.
type StatsOption func(*Stats)

// WithInterval sets the sampling interval between report lines.
//
// Parameters:
//   - interval: sampling interval (default 1s)
//
// Returns:
//   - StatsOption: option function to apply
func WithInterval(interval time.Duration) StatsOption {
	return func(s *Stats) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// NewStats creates a Stats collector.
//
// Parameters:
//   - label: prefix identifying the loop being profiled
//   - options: functional options for stats configuration
//
// Returns:
//   - *Stats: the new collector
func NewStats(label string, options ...StatsOption) *Stats {
	s := &Stats{
		label:    label,
		interval: defaultInterval,
		start:    time.Now(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// RecordIteration counts one completed render iteration.
func (s *Stats) RecordIteration() {
	s.mu.Lock()
	s.iterations++
	s.maybeReport()
	s.mu.Unlock()
}

// RecordCacheHit counts one cached frame served without rendering.
func (s *Stats) RecordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.maybeReport()
	s.mu.Unlock()
}

// RecordCacheMiss counts one cached frame that had to be rendered.
func (s *Stats) RecordCacheMiss() {
	s.mu.Lock()
	s.cacheMisses++
	s.maybeReport()
	s.mu.Unlock()
}

// RecordUpload counts one pixel upload to the display texture.
func (s *Stats) RecordUpload() {
	s.mu.Lock()
	s.uploads++
	s.maybeReport()
	s.mu.Unlock()
}

// RecordError counts one render-loop error.
func (s *Stats) RecordError() {
	s.mu.Lock()
	s.errors++
	s.maybeReport()
	s.mu.Unlock()
}

// Snapshot returns the counters accumulated in the current interval.
//
// Returns:
//   - int: render iterations
//   - int: cache hits
//   - int: cache misses
//   - int: texture uploads
//   - int: errors
func (s *Stats) Snapshot() (int, int, int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterations, s.cacheHits, s.cacheMisses, s.uploads, s.errors
}

// maybeReport prints and resets the counters once the interval has elapsed.
// Caller holds mu.
func (s *Stats) maybeReport() {
	elapsed := time.Since(s.start)
	if elapsed < s.interval {
		return
	}

	total := s.iterations + s.cacheHits + s.cacheMisses + s.uploads + s.errors
	if total > 0 {
		perSec := float64(s.iterations) / elapsed.Seconds()
		log.Printf("%s: %.1f iter/s, cache %d hit / %d miss, %d uploads, %d errors",
			s.label, perSec, s.cacheHits, s.cacheMisses, s.uploads, s.errors)
	}

	s.iterations = 0
	s.cacheHits = 0
	s.cacheMisses = 0
	s.uploads = 0
	s.errors = 0
	s.start = time.Now()
}
