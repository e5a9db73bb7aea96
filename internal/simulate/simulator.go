// Package simulate produces randomized processing delays and
// success/failure outcomes for simulated requests.
package simulate

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"lbsim/internal/core"
)

// DefaultJitter is the half-width of the uniform delay jitter, in seconds.
const DefaultJitter = 0.1

// MaxDelay bounds the average delay and the jitter, in seconds. Larger
// values would overflow a time.Duration.
const MaxDelay = 3600.0

// Params configures the outcome distribution.
type Params struct {
	AvgDelay       float64 // seconds
	FailurePercent int     // 0..100
}

// Validate checks that the parameters describe a usable distribution.
func (p Params) Validate() error {
	if p.AvgDelay < 0 || math.IsNaN(p.AvgDelay) || math.IsInf(p.AvgDelay, 0) {
		return core.NewConfigurationError("pool.averageDelay", "must be a finite value >= 0, got %v", p.AvgDelay)
	}
	if p.AvgDelay > MaxDelay {
		return core.NewConfigurationError("pool.averageDelay", "must be <= %v, got %v", MaxDelay, p.AvgDelay)
	}
	if p.FailurePercent < 0 || p.FailurePercent > 100 {
		return core.NewConfigurationError("pool.failurePercentage", "must be within [0,100], got %d", p.FailurePercent)
	}
	return nil
}

// Simulator draws outcomes and suspends the caller for the drawn delay.
// Safe for concurrent use; the random source lock is never held while
// sleeping.
type Simulator struct {
	params Params
	jitter float64
	clock  core.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock replaces the clock used for the simulated suspension.
func WithClock(c core.Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithSeed makes the random source deterministic. A zero seed keeps the
// default time-based source.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		if seed != 0 {
			s.rng = rand.New(rand.NewSource(seed))
		}
	}
}

// WithJitter overrides the jitter half-width in seconds.
func WithJitter(seconds float64) Option {
	return func(s *Simulator) { s.jitter = seconds }
}

// New creates a Simulator for params.
func New(params Params, opts ...Option) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		params: params,
		jitter: DefaultJitter,
		clock:  core.RealClock{},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.jitter < 0 || s.jitter > MaxDelay || math.IsNaN(s.jitter) {
		return nil, core.NewConfigurationError("pool.jitter", "must be within [0,%v], got %v", MaxDelay, s.jitter)
	}
	return s, nil
}

// Params returns the configured distribution.
func (s *Simulator) Params() Params { return s.params }

// Draw picks a delay and an outcome without sleeping.
//
// delay = avgDelay + U[-jitter, +jitter], kept within [0, 2*MaxDelay].
// A request fails when U{0..99} < failurePercent, so 0 never fails and
// 100 always fails.
func (s *Simulator) Draw(avgDelay float64, failurePercent int) (float64, bool) {
	s.mu.Lock()
	j := s.rng.Float64()
	roll := s.rng.Intn(100)
	s.mu.Unlock()

	delay := avgDelay + (j*2-1)*s.jitter
	if delay < 0 {
		delay = 0
	}
	if delay > 2*MaxDelay {
		delay = 2 * MaxDelay
	}
	return delay, roll >= failurePercent
}

// Simulate draws an outcome and suspends the caller for the delay rounded
// to the millisecond. A cancelled context shortens the suspension; the
// drawn outcome is returned either way.
func (s *Simulator) Simulate(ctx context.Context, avgDelay float64, failurePercent int) (float64, bool) {
	delay, success := s.Draw(avgDelay, failurePercent)
	_ = s.clock.Sleep(ctx, ToDuration(delay))
	return delay, success
}

// Run simulates one request on w with the configured parameters.
func (s *Simulator) Run(ctx context.Context, w *core.Worker, requestID string) core.Outcome {
	delay, success := s.Simulate(ctx, s.params.AvgDelay, s.params.FailurePercent)
	return core.Outcome{
		RequestID: requestID,
		Worker:    w.Name(),
		Success:   success,
		Delay:     delay,
	}
}

// ToDuration converts seconds to a duration rounded to the millisecond.
func ToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds*1000)) * time.Millisecond
}
