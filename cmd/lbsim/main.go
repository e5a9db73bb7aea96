// Command lbsim serves a simulated load-balanced worker pool over HTTP.
//
// Usage:
//
//	lbsim [flags]
//
// Flags:
//
//	-config      Path to YAML config file (defaults are used when empty)
//	-addr        Listen address (overrides server.addr)
//	-workers     Number of workers (overrides pool.workers)
//	-delay       Average delay in seconds (overrides pool.averageDelay)
//	-failure     Failure percentage (overrides pool.failurePercentage)
//	-seed        Random seed, 0 = time seeded (overrides pool.seed)
//	-sink        Outcome sink: file, stdout, redis, none (overrides sink.type)
//	-sink-path   Outcome file for the file sink (overrides sink.path)
//	-log-level   debug, info, warn or error (overrides log.level)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"lbsim/internal/config"
	"lbsim/internal/logging"
	"lbsim/internal/metrics"
	"lbsim/internal/pool"
	"lbsim/internal/server"
	"lbsim/internal/sink"
	"lbsim/internal/stats"
)

const (
	ExitSuccess = 0
	ExitError   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lbsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML config file")
	addr := fs.String("addr", "", "listen address")
	workers := fs.Int("workers", 0, "number of workers")
	delay := fs.Float64("delay", 0, "average delay in seconds")
	failure := fs.Int("failure", 0, "failure percentage (0-100)")
	seed := fs.Int64("seed", 0, "random seed, 0 = time seeded")
	sinkType := fs.String("sink", "", "outcome sink: file, stdout, redis, none")
	sinkPath := fs.String("sink-path", "", "outcome file for the file sink")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	// CLI flags override config file values
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "workers":
			cfg.Pool.Workers = *workers
		case "delay":
			cfg.Pool.AverageDelay = *delay
		case "failure":
			cfg.Pool.FailurePercentage = *failure
		case "seed":
			cfg.Pool.Seed = *seed
		case "sink":
			cfg.Sink.Type = *sinkType
		case "sink-path":
			cfg.Sink.Path = *sinkPath
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	defer logger.Sync()

	out, closer, err := sink.Open(ctx, cfg.Sink)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	defer closer.Close()

	m := metrics.New()
	h, err := pool.New(cfg.Pool,
		pool.WithSink(out),
		pool.WithObserver(m),
		pool.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	if err := m.Register(h); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	srv := server.NewServer(h,
		server.WithLogger(logger),
		server.WithMetrics(m.Handler()),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	fmt.Fprintln(stdout, "lbsim - Simulated Worker Pool")
	fmt.Fprintln(stdout, "=============================")
	fmt.Fprintf(stdout, "Workers: %d (%s) | Avg delay: %.3fs | Failure: %d%% | Sink: %s\n\n",
		h.Dispatcher().Len(), h.Dispatcher().Name(), cfg.Pool.AverageDelay, cfg.Pool.FailurePercentage, cfg.Sink.Type)
	fmt.Fprintln(stdout, "Endpoints:")
	fmt.Fprintln(stdout, "  GET  /api/v1/hello         - Route one simulated request")
	fmt.Fprintln(stdout, "  GET  /api/v1/worker/stats  - Per-worker and total statistics")
	fmt.Fprintln(stdout, "  GET  /health               - Health check")
	fmt.Fprintln(stdout, "  GET  /metrics              - Prometheus metrics")
	fmt.Fprintln(stdout)

	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return ExitError
	}

	stats.WorkerLoads(stdout, h.Snapshot())
	return ExitSuccess
}
