package core

import (
	"context"
	"sync"
)

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// MemorySink is an in-memory LineSink for testing. If Err is set every
// WriteLine call fails with it and nothing is stored.
type MemorySink struct {
	mu    sync.Mutex
	lines []string
	Err   error
}

func (s *MemorySink) WriteLine(_ context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.lines = append(s.lines, line)
	return nil
}

// Lines returns a copy of the stored lines.
func (s *MemorySink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}
