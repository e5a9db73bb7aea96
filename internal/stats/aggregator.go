// Package stats aggregates simulated request outcomes into per-worker and
// global counters and renders point-in-time snapshots.
package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lbsim/internal/core"
)

// Observer is notified after every recorded outcome.
type Observer interface {
	ObserveOutcome(o core.Outcome)
}

// Aggregator owns the global counters and increments the per-worker
// outcome counters. Record and Snapshot may be called concurrently.
type Aggregator struct {
	workers []*core.Worker
	known   map[*core.Worker]struct{}

	// mu makes each Record one transaction over the global counters and
	// a single worker's counters. Snapshot never takes it.
	mu         sync.Mutex
	total      atomic.Int64
	success    atomic.Int64
	failure    atomic.Int64
	delayNanos atomic.Int64

	sinkErrors atomic.Int64

	sink     core.LineSink
	observer Observer
	logger   *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSink appends one line per recorded outcome to s.
func WithSink(s core.LineSink) Option {
	return func(a *Aggregator) { a.sink = s }
}

// WithObserver registers o to be notified of every outcome.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

// WithLogger sets the logger used for sink faults.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an Aggregator over workers. The order of workers
// is the order used when rendering snapshots.
func NewAggregator(workers []*core.Worker, opts ...Option) *Aggregator {
	a := &Aggregator{
		workers: make([]*core.Worker, len(workers)),
		known:   make(map[*core.Worker]struct{}, len(workers)),
		logger:  zap.NewNop(),
	}
	copy(a.workers, workers)
	for _, w := range workers {
		a.known[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record adds o to the global counters and to w's counters, then appends
// the outcome line to the sink and notifies the observer. Sink failures
// are logged and counted but never returned: the in-memory update has
// already happened.
func (a *Aggregator) Record(ctx context.Context, w *core.Worker, o core.Outcome) {
	if _, ok := a.known[w]; !ok {
		a.logger.Error("outcome for unknown worker dropped",
			zap.String("worker", o.Worker),
			zap.String("request_id", o.RequestID))
		return
	}

	delay := time.Duration(o.Delay * float64(time.Second))

	a.mu.Lock()
	a.total.Add(1)
	if o.Success {
		a.success.Add(1)
	} else {
		a.failure.Add(1)
	}
	a.delayNanos.Add(int64(delay))
	w.RecordOutcome(o.Success, delay)
	a.mu.Unlock()

	if a.sink != nil {
		if err := a.sink.WriteLine(ctx, FormatLine(o)); err != nil {
			a.sinkErrors.Add(1)
			werr := &core.SinkWriteError{Err: err}
			a.logger.Warn("outcome sink write failed",
				zap.String("request_id", o.RequestID),
				zap.String("worker", o.Worker),
				zap.Error(werr))
		}
	}

	if a.observer != nil {
		a.observer.ObserveOutcome(o)
	}
}

// Snapshot returns a best-effort point-in-time view. Each counter is read
// atomically; counters are not read under a common lock.
func (a *Aggregator) Snapshot() Snapshot {
	total := a.total.Load()

	snap := Snapshot{
		Workers:    make([]string, 0, len(a.workers)),
		Stats:      make(map[string]WorkerStats, len(a.workers)+1),
		SinkErrors: a.sinkErrors.Load(),
	}

	for _, w := range a.workers {
		ws := WorkerStats{
			Success: w.SuccessCount(),
			Failed:  w.FailureCount(),
			Total:   w.Load(),
		}
		if total > 0 {
			// The worker's mean delay weighted by its share of all
			// recorded requests; the weights sum to the global mean.
			ws.AvgRequestTime = w.DelaySum().Seconds() / float64(total)
		}
		snap.Workers = append(snap.Workers, w.Name())
		snap.Stats[w.Name()] = ws
	}

	global := WorkerStats{
		Success: a.success.Load(),
		Failed:  a.failure.Load(),
		Total:   total,
	}
	if total > 0 {
		global.AvgRequestTime = time.Duration(a.delayNanos.Load()).Seconds() / float64(total)
	}
	snap.Stats[core.TotalKey] = global

	return snap
}

// SinkErrors returns how many outcome lines could not be written.
func (a *Aggregator) SinkErrors() int64 {
	return a.sinkErrors.Load()
}

// Workers returns the workers in rendering order.
func (a *Aggregator) Workers() []*core.Worker {
	out := make([]*core.Worker, len(a.workers))
	copy(out, a.workers)
	return out
}

// FormatLine renders the sink line for one outcome.
func FormatLine(o core.Outcome) string {
	return fmt.Sprintf("request=%s worker=%s outcome=%s delay_ms=%d",
		o.RequestID, o.Worker, o.Label(), int64(o.Delay*1000+0.5))
}
