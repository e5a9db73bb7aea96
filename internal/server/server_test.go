package server

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lbsim/internal/config"
	"lbsim/internal/core"
	"lbsim/internal/metrics"
	"lbsim/internal/pool"
	"lbsim/internal/stats"
)

func newTestPool(t *testing.T, failure int, opts ...pool.Option) *pool.Handler {
	t.Helper()
	opts = append(opts, pool.WithClock(core.NewFakeClock(time.Now())))
	h, err := pool.New(config.PoolConfig{
		Workers:           2,
		WorkerWeight:      1,
		AverageDelay:      0.5,
		FailurePercentage: failure,
		Jitter:            0.1,
		Seed:              7,
	}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestHelloEndpoint_Success(t *testing.T) {
	server := NewServer(newTestPool(t, 0))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	for _, want := range []string{"Worker1", "Worker2", "Worker1"} {
		resp, err := http.Get(ts.URL + "/api/v1/hello")
		if err != nil {
			t.Fatalf("GET /api/v1/hello failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
		if strings.TrimSpace(string(body)) != `{"message":"hello-world"}` {
			t.Errorf("unexpected body %q", body)
		}
		if got := resp.Header.Get(HeaderWorker); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
		if _, err := uuid.Parse(resp.Header.Get(HeaderRequestID)); err != nil {
			t.Errorf("expected uuid request ID, got %q", resp.Header.Get(HeaderRequestID))
		}
	}
}

func TestHelloEndpoint_Failure(t *testing.T) {
	server := NewServer(newTestPool(t, 100))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/hello")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}
	var m map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m["message"] != "request-failed" {
		t.Errorf("unexpected message %q", m["message"])
	}
}

func TestHelloEndpoint_MethodNotAllowed(t *testing.T) {
	p := newTestPool(t, 0)
	server := NewServer(p)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/hello", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", resp.StatusCode)
	}
	if p.Snapshot().Total().Total != 0 {
		t.Error("rejected request must not be routed")
	}
}

func TestRequestID_ReusesIncoming(t *testing.T) {
	sink := &core.MemorySink{}
	server := NewServer(newTestPool(t, 0, pool.WithSink(sink)))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hello", nil)
	req.Header.Set(HeaderRequestID, id)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Header().Get(HeaderRequestID) != id {
		t.Errorf("expected request ID %s echoed, got %s", id, rec.Header().Get(HeaderRequestID))
	}
	lines := sink.Lines()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "request="+id+" ") {
		t.Errorf("expected sink line with request ID, got %v", lines)
	}
}

func TestRequestID_ReplacesInvalid(t *testing.T) {
	server := NewServer(newTestPool(t, 0))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "not a uuid\n")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil {
		t.Errorf("expected fresh uuid, got %q", rec.Header().Get(HeaderRequestID))
	}
}

func TestStatsEndpoint(t *testing.T) {
	p := newTestPool(t, 0)
	server := NewServer(p)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/hello")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/v1/worker/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	snap, err := stats.ParseSnapshot(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	total := snap.Total()
	if total.Total != 3 || total.Success != 3 || total.Failed != 0 {
		t.Errorf("unexpected total %+v", total)
	}
	w1, _ := snap.Worker("Worker1")
	w2, _ := snap.Worker("Worker2")
	if w1.Total != 2 || w2.Total != 1 {
		t.Errorf("unexpected worker totals: %d, %d", w1.Total, w2.Total)
	}
	if total.AvgRequestTime < 0.4 || total.AvgRequestTime > 0.6 {
		t.Errorf("avgRequestTime %v outside jitter bounds", total.AvgRequestTime)
	}
	if diff := w1.AvgRequestTime + w2.AvgRequestTime - total.AvgRequestTime; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("worker averages should sum to the global mean, diff %v", diff)
	}
}

func TestStatsEndpoint_Empty(t *testing.T) {
	server := NewServer(newTestPool(t, 0))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/worker/stats", nil))

	var raw map[string]stats.WorkerStats
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if len(raw) != 3 {
		t.Errorf("expected two workers plus total, got %v", raw)
	}
	for name, ws := range raw {
		if ws.AvgRequestTime != 0 || ws.Total != 0 {
			t.Errorf("%s: expected zero stats, got %+v", name, ws)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(newTestPool(t, 0))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	p := newTestPool(t, 0, pool.WithObserver(m))
	if err := m.Register(p); err != nil {
		t.Fatal(err)
	}
	server := NewServer(p, WithMetrics(m.Handler()))

	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/hello", nil))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`lbsim_worker_requests_total{worker="Worker1"} 1`,
		`lbsim_worker_outcomes_total{outcome="success",worker="Worker1"} 1`,
		"lbsim_request_delay_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestMetricsEndpoint_DisabledByDefault(t *testing.T) {
	server := NewServer(newTestPool(t, 0))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	server := NewServer(newTestPool(t, 0), WithRateLimit(1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hello", nil))
		codes = append(codes, rec.Code)
	}

	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 200,200,429 got %v", codes)
	}

	// Stats are never limited.
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/worker/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("stats should not be rate limited, got %d", rec.Code)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	server := NewServer(newTestPool(t, 100), WithLogger(zap.New(zc)))

	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/hello", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/api/v1/hello" || fields["status"] != int64(500) {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestConcurrentHello(t *testing.T) {
	p := newTestPool(t, 12)
	server := NewServer(p)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(ts.URL + "/api/v1/hello")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	total := p.Snapshot().Total()
	if total.Total != 40 || total.Success+total.Failed != 40 {
		t.Errorf("unexpected total %+v", total)
	}
}

func TestServe_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := NewServer(newTestPool(t, 0), WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected serve error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

type nanPool struct{}

func (nanPool) Handle(_ context.Context, id string) core.Outcome {
	return core.Outcome{RequestID: id, Worker: "Worker1", Success: true}
}

func (nanPool) Snapshot() stats.Snapshot {
	return stats.Snapshot{
		Workers: []string{"Worker1"},
		Stats: map[string]stats.WorkerStats{
			"Worker1":     {AvgRequestTime: math.NaN()},
			core.TotalKey: {},
		},
	}
}

func TestStatsEndpoint_EncodeErrorLogged(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	server := NewServer(nanPool{}, WithLogger(zap.New(zc)))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/worker/stats", nil))

	entries := logs.FilterMessage("writing response failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 encode failure log, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("expected debug level, got %v", entries[0].Level)
	}
	if entries[0].ContextMap()["status"] != int64(http.StatusOK) {
		t.Errorf("unexpected fields %v", entries[0].ContextMap())
	}
}
