package stats

import (
	"testing"
	"time"
)

// TestSamplerThrottlesReports checks that a Sampler's burst-of-one
// limiter allows exactly one immediate report, then withholds the next
// one until the interval elapses.
func TestSamplerThrottlesReports(t *testing.T) {
	s := NewSampler("test", time.Hour)
	s.Add(10, 8, 2)
	s.MaybeReport()
	if s.rx != 0 || s.tx != 0 || s.dropped != 0 {
		t.Fatalf("first MaybeReport should reset accumulators, got rx=%d tx=%d dropped=%d", s.rx, s.tx, s.dropped)
	}

	s.Add(5, 5, 0)
	s.MaybeReport()
	if s.rx != 5 {
		t.Fatalf("second MaybeReport fired before the interval elapsed: rx=%d, want 5 (unreported)", s.rx)
	}
}
