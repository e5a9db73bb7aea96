// Package server exposes the simulated pool over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"lbsim/internal/core"
	"lbsim/internal/ratelimit"
	"lbsim/internal/stats"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderWorker    = "X-Worker"
)

// Pool is the request handler behind the API.
type Pool interface {
	Handle(ctx context.Context, requestID string) core.Outcome
	Snapshot() stats.Snapshot
}

type message struct {
	Message string `json:"message"`
}

// Server routes API calls to a Pool.
type Server struct {
	mux     *http.ServeMux
	handler http.Handler
	pool    Pool
	logger  *zap.Logger
	limiter *ratelimit.RateLimiter
	metrics http.Handler
	timeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimit rejects hello requests above rps with 429. Zero disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = ratelimit.NewLimiter(rps, burst)
		}
	}
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithShutdownTimeout bounds how long Serve waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer creates a server with all endpoints configured.
func NewServer(p Pool, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		pool:    p,
		logger:  zap.NewNop(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	s.handler = Chain(RequestID(), Logging(s.logger))(s.mux)
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerHandlers() {
	hello := http.Handler(http.HandlerFunc(s.handleHello))
	if s.limiter != nil {
		hello = RateLimit(s.limiter, s.logger)(hello)
	}
	s.mux.Handle("/api/v1/hello", hello)
	s.mux.HandleFunc("/api/v1/worker/stats", s.handleStats)
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
}

// handleHello routes one simulated request and reports its outcome.
func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, s.logger, http.StatusMethodNotAllowed, message{"method-not-allowed"})
		return
	}

	id := core.RequestIDFromContext(r.Context())
	out := s.pool.Handle(r.Context(), id)

	w.Header().Set(HeaderWorker, out.Worker)
	if out.Success {
		writeJSON(w, s.logger, http.StatusOK, message{"hello-world"})
		return
	}
	writeJSON(w, s.logger, http.StatusInternalServerError, message{"request-failed"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, s.logger, http.StatusMethodNotAllowed, message{"method-not-allowed"})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.pool.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// writeJSON sends v with status. The status line is already out when
// encoding fails, so the error is only logged.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("writing response failed", zap.Int("status", status), zap.Error(err))
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("timeout", s.timeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
