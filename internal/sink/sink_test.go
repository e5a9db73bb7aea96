package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"

	"lbsim/internal/config"
	"lbsim/internal/core"
)

func TestWriter_AppendsLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf)

	_ = s.WriteLine(context.Background(), "first")
	_ = s.WriteLine(context.Background(), "second")

	if buf.String() != "first\nsecond\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWriter_ConcurrentLinesDoNotInterleave(t *testing.T) {
	w := &core.MockWriter{}
	s := NewWriter(w)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.WriteLine(context.Background(), fmt.Sprintf("line-%02d-%s", i, strings.Repeat("x", 64)))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(w.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("expected 50 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if len(l) != len("line-00-")+64 {
			t.Errorf("interleaved line %q", l)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriter_PropagatesError(t *testing.T) {
	s := NewWriter(failingWriter{})
	if err := s.WriteLine(context.Background(), "x"); err == nil {
		t.Error("expected write error")
	}
}

func TestFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.log")
	if err := os.WriteFile(path, []byte("existing\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = f.WriteLine(context.Background(), "request=1 worker=Worker1 outcome=SUCCESS delay_ms=500")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "existing\n") {
		t.Errorf("file was truncated: %q", data)
	}
	if !strings.Contains(string(data), "outcome=SUCCESS") {
		t.Errorf("expected appended line, got %q", data)
	}
}

func TestOpenFile_BadPath(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing", "dir", "stats.log")); err == nil {
		t.Error("expected error opening file in missing directory")
	}
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]string
	err  error
}

func (f *fakeRedis) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, append([]interface{}{"rpush", key}, values...)...)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string][]string)
	}
	for _, v := range values {
		f.data[key] = append(f.data[key], v.(string))
	}
	cmd.SetVal(int64(len(f.data[key])))
	return cmd
}

func TestRedis_PushesLines(t *testing.T) {
	fake := &fakeRedis{}
	s := newRedis(fake, "")

	if s.Key() != DefaultRedisKey {
		t.Errorf("expected default key, got %q", s.Key())
	}
	if err := s.WriteLine(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteLine(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}

	got := fake.data[DefaultRedisKey]
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected list contents: %v", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("close without pool: %v", err)
	}
}

func TestRedis_WriteAfterRequestCancelled(t *testing.T) {
	fake := &fakeRedis{}
	s := newRedis(fake, "k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.WriteLine(ctx, "late"); err != nil {
		t.Errorf("cancelled request context should not block the push: %v", err)
	}
	if len(fake.data["k"]) != 1 {
		t.Error("expected line to be pushed")
	}
}

func TestRedis_PropagatesError(t *testing.T) {
	s := newRedis(&fakeRedis{err: errors.New("connection refused")}, "k")
	if err := s.WriteLine(context.Background(), "x"); err == nil {
		t.Error("expected error from redis")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closer, err := Open(ctx, config.SinkConfig{Type: config.SinkNone})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(Discard); !ok {
		t.Errorf("expected Discard, got %T", s)
	}
	closer.Close()

	path := filepath.Join(t.TempDir(), "out.log")
	s, closer, err = Open(ctx, config.SinkConfig{Type: config.SinkFile, Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*File); !ok {
		t.Errorf("expected *File, got %T", s)
	}
	closer.Close()

	s, closer, err = Open(ctx, config.SinkConfig{Type: config.SinkStdout})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Writer); !ok {
		t.Errorf("expected *Writer, got %T", s)
	}
	closer.Close()

	if _, _, err := Open(ctx, config.SinkConfig{Type: "kafka"}); !core.IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}
