// Package sink provides append-only destinations for outcome log lines.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Writer appends lines to an io.Writer. Writes are serialized so lines
// from concurrent requests never interleave.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter creates a sink writing to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (s *Writer) WriteLine(_ context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, line+"\n")
	return err
}

// File is an append-only file sink.
type File struct {
	*Writer
	f *os.File
}

// OpenFile opens path for appending, creating it if necessary.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening stats file: %w", err)
	}
	return &File{Writer: NewWriter(f), f: f}, nil
}

// Close flushes and closes the underlying file.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// Discard drops every line.
type Discard struct{}

func (Discard) WriteLine(context.Context, string) error { return nil }
