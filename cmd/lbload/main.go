// Command lbload drives requests through an in-process pool, or through a
// running lbsim server with -remote, and reports the resulting statistics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lbsim/internal/client"
	"lbsim/internal/config"
	"lbsim/internal/loadgen"
	"lbsim/internal/logging"
	"lbsim/internal/pool"
	"lbsim/internal/progress"
	"lbsim/internal/ratelimit"
	"lbsim/internal/sink"
	"lbsim/internal/stats"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	output  string
	quiet   bool
	verbose bool
	fields  []string
}

// fieldList collects repeated -field flags.
type fieldList []string

func (f *fieldList) String() string { return strings.Join(*f, ",") }

func (f *fieldList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lbload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML config file")
	requests := fs.Int("requests", 0, "number of requests to send (overrides pool.requestPoolSize)")
	concurrency := fs.Int("concurrency", 0, "concurrent actors (overrides load.concurrency)")
	rps := fs.Int("rps", 0, "requests per second, 0 = unlimited (overrides load.rps)")
	remote := fs.String("remote", "", "base URL of a running lbsim server (overrides load.target)")
	workers := fs.Int("workers", 0, "number of in-process workers (overrides pool.workers)")
	seed := fs.Int64("seed", 0, "random seed for the in-process pool")
	output := fs.String("output", "text", "output format: text, json")
	quiet := fs.Bool("quiet", false, "suppress progress output")
	verbose := fs.Bool("verbose", false, "print one line per request")
	var fields fieldList
	fs.Var(&fields, "field", "print the value at a JSONPath in the stats payload instead of the report (repeatable)")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	if *output != "text" && *output != "json" {
		fmt.Fprintf(stderr, "error: --output must be 'text' or 'json', got %q\n", *output)
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
		case "requests":
			cfg.Pool.RequestPoolSize = *requests
		case "concurrency":
			cfg.Load.Concurrency = *concurrency
		case "rps":
			cfg.Load.RPS = *rps
		case "remote":
			cfg.Load.Target = *remote
		case "workers":
			cfg.Pool.Workers = *workers
		case "seed":
			cfg.Pool.Seed = *seed
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

	opts := options{output: *output, quiet: *quiet, verbose: *verbose, fields: fields}
	if cfg.Load.Target != "" {
		return runRemote(ctx, cfg, opts, logger, stdout, stderr)
	}
	return runLocal(ctx, cfg, opts, logger, stdout, stderr)
}

func runLocal(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger, stdout, stderr io.Writer) int {
	out, closer, err := sink.Open(ctx, cfg.Sink)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	defer closer.Close()

	h, err := pool.New(cfg.Pool, pool.WithSink(out), pool.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	interrupted := drive(ctx, cfg, h, opts, logger, stdout, stderr,
		fmt.Sprintf("in-process pool of %d workers", h.Dispatcher().Len()))
	return report(cfg, h.Snapshot(), nil, opts, interrupted, stdout, stderr)
}

func runRemote(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger, stdout, stderr io.Writer) int {
	c, err := client.New(cfg.Load.Target)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	if err := c.Health(ctx); err != nil {
		fmt.Fprintf(stderr, "error: server not reachable: %v\n", err)
		return ExitError
	}

	interrupted := drive(ctx, cfg, c, opts, logger, stdout, stderr, cfg.Load.Target)

	fetchCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	body, err := c.StatsBody(fetchCtx)
	if err != nil {
		fmt.Fprintf(stderr, "error: fetching stats: %v\n", err)
		return ExitError
	}
	snap, err := stats.ParseSnapshot(body)
	if err != nil {
		fmt.Fprintf(stderr, "error: fetching stats: %v\n", err)
		return ExitError
	}
	return report(cfg, snap, body, opts, interrupted, stdout, stderr)
}

// drive fires the configured number of requests at target and reports
// whether the run was cut short by ctx.
func drive(ctx context.Context, cfg *config.Config, target loadgen.Target, opts options, logger *zap.Logger, stdout, stderr io.Writer, desc string) bool {
	driverOpts := []loadgen.Option{loadgen.WithLogger(logger)}
	if cfg.Load.RPS > 0 {
		driverOpts = append(driverOpts, loadgen.WithRateLimiter(ratelimit.NewRateLimiter(cfg.Load.RPS)))
	}
	if opts.verbose {
		driverOpts = append(driverOpts, loadgen.WithVerbose(stdout))
	}
	d := loadgen.NewDriver(target, driverOpts...)

	total := cfg.Pool.RequestPoolSize
	prog := progress.NewProgress(d, total, opts.quiet || opts.output == "json")
	prog.SetOutput(stderr)
	prog.Printf("lbload starting: %d requests, %d actors, target %s", total, cfg.Load.Concurrency, desc)

	prog.Start()
	summary := d.Run(ctx, total, cfg.Load.Concurrency)
	prog.Stop()

	interrupted := ctx.Err() != nil
	if interrupted {
		prog.Print("Interrupted, reporting partial results")
	}
	prog.Printf("Fired %d requests in %v (%d not delivered)",
		summary.Fired, summary.Elapsed.Round(time.Millisecond), summary.Errors)
	return interrupted
}

// report renders snap and applies thresholds. body is the stats payload
// snap was parsed from, or nil to derive it from snap.
func report(cfg *config.Config, snap stats.Snapshot, body []byte, opts options, interrupted bool, stdout, stderr io.Writer) int {
	var thresholdResults *stats.ThresholdResults
	if cfg.Thresholds != nil {
		thresholdResults = cfg.Thresholds.Check(snap)
	}

	if len(opts.fields) > 0 {
		if err := printFields(stdout, snap, body, opts.fields); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return ExitError
		}
	} else if opts.output == "json" {
		if err := stats.FormatJSON(stdout, snap, thresholdResults); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return ExitError
		}
	} else {
		if opts.verbose {
			stats.WorkerLoads(stdout, snap)
		}
		stats.FormatText(stdout, snap, thresholdResults)
	}

	if interrupted {
		return ExitSuccess
	}

	if thresholdResults != nil && !thresholdResults.Passed {
		if opts.output == "text" {
			fmt.Fprintln(stderr, "\nThreshold check failed!")
		}
		return ExitThresholdFailed
	}
	return ExitSuccess
}

// printFields writes one extracted value per line, in flag order.
func printFields(w io.Writer, snap stats.Snapshot, body []byte, fields []string) error {
	if body == nil {
		var err error
		if body, err = json.Marshal(snap); err != nil {
			return fmt.Errorf("encoding stats: %w", err)
		}
	}
	values, err := client.ExtractFields(body, fields)
	if err != nil {
		return err
	}
	for _, v := range values {
		switch v.(type) {
		case map[string]any, []any:
			out, err := json.Marshal(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(out))
		default:
			fmt.Fprintln(w, v)
		}
	}
	return nil
}
