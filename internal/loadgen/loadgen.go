// Package loadgen drives a fixed number of requests through a Target
// with bounded concurrency.
package loadgen

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lbsim/internal/ratelimit"
)

// Result is the observed outcome of one fired request.
type Result struct {
	RequestID string
	Worker    string
	Success   bool
	Latency   time.Duration
	// Err is set when the request could not be delivered at all. A
	// simulated failure is Success == false with a nil Err.
	Err error
}

// Target receives requests from the driver.
type Target interface {
	Fire(ctx context.Context, requestID string) Result
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, requestID string) Result

func (f TargetFunc) Fire(ctx context.Context, requestID string) Result { return f(ctx, requestID) }

// Summary counts what the driver has done so far.
type Summary struct {
	Fired     int64
	Succeeded int64
	Failed    int64
	Errors    int64 // subset of Failed that never reached a worker
	Elapsed   time.Duration
}

// Driver fires requests at a Target from a set of actor goroutines.
type Driver struct {
	target  Target
	limiter *ratelimit.RateLimiter
	verbose io.Writer
	logger  *zap.Logger
	newID   func() string

	next      atomic.Int64
	fired     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	errored   atomic.Int64
	started   atomic.Int64 // unix nanos

	wg      sync.WaitGroup
	printMu sync.Mutex
}

// Option configures a Driver.
type Option func(*Driver)

// WithRateLimiter paces requests through l.
func WithRateLimiter(l *ratelimit.RateLimiter) Option {
	return func(d *Driver) { d.limiter = l }
}

// WithVerbose prints one "Request i sent to WorkerN" line per request.
func WithVerbose(w io.Writer) Option {
	return func(d *Driver) { d.verbose = w }
}

// WithLogger sets the logger used for transport errors and panics.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithIDGenerator replaces the uuid request ID source.
func WithIDGenerator(f func() string) Option {
	return func(d *Driver) { d.newID = f }
}

func NewDriver(target Target, opts ...Option) *Driver {
	d := &Driver{
		target: target,
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run fires total requests using concurrency actors and blocks until all
// of them finish or ctx is done. Requests already in flight when ctx ends
// are allowed to complete.
func (d *Driver) Run(ctx context.Context, total, concurrency int) Summary {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > total {
		concurrency = total
	}
	start := time.Now()
	d.started.Store(start.UnixNano())

	for i := 0; i < concurrency; i++ {
		d.wg.Add(1)
		go func(actorID int) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				slot := d.next.Add(1) - 1
				if slot >= int64(total) {
					return
				}
				if d.limiter != nil {
					if err := d.limiter.Wait(ctx); err != nil {
						return
					}
				}
				d.fire(ctx, actorID, slot)
			}
		}(i + 1)
	}
	d.wg.Wait()

	s := d.Summary()
	s.Elapsed = time.Since(start)
	return s
}

func (d *Driver) fire(ctx context.Context, actorID int, slot int64) {
	id := d.newID()
	defer d.recoverPanic(actorID, id)

	start := time.Now()
	res := d.target.Fire(ctx, id)
	if res.Latency == 0 {
		res.Latency = time.Since(start)
	}
	d.count(res)

	if res.Err != nil {
		d.logger.Warn("request not delivered",
			zap.String("request_id", id),
			zap.Int("actor", actorID),
			zap.Error(res.Err))
	}
	if d.verbose != nil && res.Worker != "" {
		d.printMu.Lock()
		fmt.Fprintf(d.verbose, "Request %d sent to %s\n", slot, res.Worker)
		d.printMu.Unlock()
	}
}

func (d *Driver) count(res Result) {
	d.fired.Add(1)
	switch {
	case res.Err != nil:
		d.failed.Add(1)
		d.errored.Add(1)
	case res.Success:
		d.succeeded.Add(1)
	default:
		d.failed.Add(1)
	}
}

// recoverPanic turns a panicking target into a failed request so one bad
// request does not take the actor down with it.
func (d *Driver) recoverPanic(actorID int, requestID string) {
	if r := recover(); r != nil {
		d.count(Result{RequestID: requestID, Err: fmt.Errorf("panic: %v", r)})
		d.logger.Error("target panicked",
			zap.String("request_id", requestID),
			zap.Int("actor", actorID),
			zap.Any("panic", r))
	}
}

// Summary returns the live counters. Elapsed is measured from the start
// of the current run.
func (d *Driver) Summary() Summary {
	s := Summary{
		Fired:     d.fired.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Errors:    d.errored.Load(),
	}
	if started := d.started.Load(); started != 0 {
		s.Elapsed = time.Since(time.Unix(0, started))
	}
	return s
}
