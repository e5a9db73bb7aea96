// Package pool wires the dispatcher, the outcome simulator and the stats
// aggregator into a single request handler.
package pool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lbsim/internal/config"
	"lbsim/internal/core"
	"lbsim/internal/dispatch"
	"lbsim/internal/loadgen"
	"lbsim/internal/simulate"
	"lbsim/internal/stats"
)

// Handler serves simulated requests. It is safe for concurrent use.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	simulator  *simulate.Simulator
	aggregator *stats.Aggregator
	logger     *zap.Logger
	clock      core.Clock
}

type options struct {
	sink     core.LineSink
	observer stats.Observer
	clock    core.Clock
	logger   *zap.Logger
}

// Option configures a Handler.
type Option func(*options)

// WithSink records every outcome line to s.
func WithSink(s core.LineSink) Option {
	return func(o *options) { o.sink = s }
}

// WithObserver is notified of every recorded outcome.
func WithObserver(obs stats.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithClock replaces the clock used for simulated delays.
func WithClock(c core.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a pool of cfg.Workers workers named Worker1..WorkerN.
func New(cfg config.PoolConfig, opts ...Option) (*Handler, error) {
	o := options{clock: core.RealClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	d, err := dispatch.NewFromConfig(cfg.Workers, cfg.WorkerWeight)
	if err != nil {
		return nil, err
	}

	sim, err := simulate.New(simulate.Params{
		AvgDelay:       cfg.AverageDelay,
		FailurePercent: cfg.FailurePercentage,
	},
		simulate.WithClock(o.clock),
		simulate.WithSeed(cfg.Seed),
		simulate.WithJitter(cfg.Jitter),
	)
	if err != nil {
		return nil, err
	}

	aggOpts := []stats.Option{stats.WithLogger(o.logger)}
	if o.sink != nil {
		aggOpts = append(aggOpts, stats.WithSink(o.sink))
	}
	if o.observer != nil {
		aggOpts = append(aggOpts, stats.WithObserver(o.observer))
	}

	return &Handler{
		dispatcher: d,
		simulator:  sim,
		aggregator: stats.NewAggregator(d.Workers(), aggOpts...),
		logger:     o.logger,
		clock:      o.clock,
	}, nil
}

// Handle routes one request: pick the next worker, simulate its delay
// and outcome, then record it. The caller is suspended for the delay.
func (h *Handler) Handle(ctx context.Context, requestID string) core.Outcome {
	w := h.dispatcher.Next()
	out := h.simulator.Run(ctx, w, requestID)
	h.aggregator.Record(ctx, w, out)

	h.logger.Debug("request handled",
		zap.String("request_id", requestID),
		zap.String("worker", out.Worker),
		zap.String("outcome", out.Label()),
		zap.Float64("delay", out.Delay))
	return out
}

// Fire implements loadgen.Target.
func (h *Handler) Fire(ctx context.Context, requestID string) loadgen.Result {
	start := h.clock.Now()
	out := h.Handle(ctx, requestID)
	latency := h.clock.Since(start)
	if latency <= 0 {
		latency = time.Duration(out.Delay * float64(time.Second))
	}
	return loadgen.Result{
		RequestID: requestID,
		Worker:    out.Worker,
		Success:   out.Success,
		Latency:   latency,
	}
}

// Snapshot returns the current statistics.
func (h *Handler) Snapshot() stats.Snapshot { return h.aggregator.Snapshot() }

// Workers returns the pool in dispatch order.
func (h *Handler) Workers() []*core.Worker { return h.dispatcher.Workers() }

// Dispatcher exposes the underlying dispatcher.
func (h *Handler) Dispatcher() *dispatch.Dispatcher { return h.dispatcher }
