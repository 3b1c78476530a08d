// Periodic rate sampling
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package stats turns the forwarding loop's per-iteration packet counts
// into a periodic packet-rate report, in the manner of the once-a-second
// report original_source/src/app/ixy-fwd.c prints. Rates are reported in
// Mpps only; bit rates (Mbps) are not reported.
package stats

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Sampler accumulates packet counts between reports and prints a rate
// at most once per interval, in place of the original's "only check the
// clock every 0xFFF iterations, then diff against last_stats_printed"
// pattern. The check is not amortized the same way: every MaybeReport
// call asks the golang.org/x/time/rate.Limiter, which reads the clock.
type Sampler struct {
	name     string
	limiter  *rate.Limiter
	lastTime time.Time

	rx, tx, dropped uint64
}

// NewSampler creates a Sampler that prints at most once per interval.
func NewSampler(name string, interval time.Duration) *Sampler {
	return &Sampler{
		name:     name,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		lastTime: time.Now(),
	}
}

// Add folds in one forwarding iteration's counts.
func (s *Sampler) Add(rx, tx, dropped uint64) {
	s.rx += rx
	s.tx += tx
	s.dropped += dropped
}

// MaybeReport prints and resets the accumulated counts if the sampling
// interval has elapsed, otherwise it is a cheap no-op.
func (s *Sampler) MaybeReport() {
	if !s.limiter.Allow() {
		return
	}
	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	fmt.Printf("%s: %.2f Mpps rx, %.2f Mpps tx, %d dropped (%.1fs window)\n",
		s.name, float64(s.rx)/elapsed/1e6, float64(s.tx)/elapsed/1e6, s.dropped, elapsed)

	s.rx, s.tx, s.dropped = 0, 0, 0
	s.lastTime = now
}
