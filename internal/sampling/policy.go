// Package sampling decides which frames are submitted to the expensive
// detection step. Every other frame is only displayed.
package sampling

import (
	"time"

	"github.com/andresmejia3/rollcall/internal/config"
)

// Policy reports whether the frame with the given 1-based index, captured at
// the given instant, should be analysed.
type Policy interface {
	ShouldSample(index int, at time.Time) bool
}

// EveryNth samples frames whose index is a multiple of N.
// With strict modulo the very first frame (index 1) is skipped unless
// IncludeFirst is set.
type EveryNth struct {
	N            int
	IncludeFirst bool
}

func (p EveryNth) ShouldSample(index int, _ time.Time) bool {
	if p.IncludeFirst && index == 1 {
		return true
	}
	if p.N <= 1 {
		return true
	}
	return index%p.N == 0
}

// Interval samples the first frame it sees and then any frame captured at
// least Every after the previously sampled one. It keeps state and is not
// safe for concurrent use.
type Interval struct {
	Every time.Duration

	last    time.Time
	started bool
}

func (p *Interval) ShouldSample(_ int, at time.Time) bool {
	if !p.started || at.Sub(p.last) >= p.Every {
		p.started = true
		p.last = at
		return true
	}
	return false
}

// Always samples every frame.
type Always struct{}

func (Always) ShouldSample(int, time.Time) bool { return true }

// FromConfig builds the configured policy. A positive interval wins over every_nth.
func FromConfig(cfg config.SamplingConfig) Policy {
	if cfg.Interval > 0 {
		return &Interval{Every: cfg.Interval}
	}
	return EveryNth{N: cfg.EveryNth, IncludeFirst: cfg.IncludeFirst}
}
