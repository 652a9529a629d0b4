package engine

import (
	"iter"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default backoff policy. The interval matches the management CLI's
// --interval default; growth is capped at MaxInterval.
const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxInterval = 60 * time.Second
	DefaultMultiplier  = 1.5
	DefaultJitter      = 0.2
)

// BackoffPolicy configures the delay between polls.
type BackoffPolicy struct {
	// Interval is the first delay.
	Interval time.Duration
	// MaxInterval caps every delay, jitter included.
	MaxInterval time.Duration
	// Multiplier grows the delay after each poll (>= 1).
	Multiplier float64
	// Jitter is the randomization factor in [0, 1): each delay is drawn
	// from [d*(1-Jitter), d*(1+Jitter)] before capping.
	Jitter float64
}

// DefaultBackoffPolicy returns the default policy.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Interval:    DefaultInterval,
		MaxInterval: DefaultMaxInterval,
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
	}
}

// normalized fills zero values with defaults and clamps out-of-range fields.
func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter >= 1 {
		p.Jitter = 0.99
	}
	return p
}

// Scheduler produces the delays of one wait. It is not safe for concurrent
// use; each wait owns its own Scheduler.
type Scheduler struct {
	policy BackoffPolicy
	b      *backoff.ExponentialBackOff
}

// NewScheduler creates a scheduler positioned at the first delay.
func NewScheduler(policy BackoffPolicy) *Scheduler {
	policy = policy.normalized()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     policy.Interval,
		RandomizationFactor: policy.Jitter,
		Multiplier:          policy.Multiplier,
		MaxInterval:         policy.MaxInterval,
	}
	b.Reset()
	return &Scheduler{policy: policy, b: b}
}

// Policy returns the normalized policy in use.
func (s *Scheduler) Policy() BackoffPolicy {
	return s.policy
}

// Next returns the next delay, always within (0, MaxInterval].
func (s *Scheduler) Next() time.Duration {
	d := s.b.NextBackOff()
	if d <= 0 || d == backoff.Stop {
		d = s.policy.Interval
	}
	if d > s.policy.MaxInterval {
		d = s.policy.MaxInterval
	}
	return d
}

// Delays returns the lazy, infinite delay sequence. The consumer stops
// pulling when the wait terminates.
func (s *Scheduler) Delays() iter.Seq[time.Duration] {
	return func(yield func(time.Duration) bool) {
		for {
			if !yield(s.Next()) {
				return
			}
		}
	}
}

// Reset rewinds the scheduler to the first delay.
func (s *Scheduler) Reset() {
	s.b.Reset()
}
