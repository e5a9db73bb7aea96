// Package progress renders a live status line while load is being driven.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"lbsim/internal/loadgen"
)

// Source reports how far the driver has got.
type Source interface {
	Summary() loadgen.Summary
}

type Progress struct {
	source   Source
	total    int64
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopped  atomic.Bool
	quiet    bool
	output   io.Writer
	mu       sync.Mutex
}

// NewProgress reports on src every second. total is the number of
// requests the run will fire.
func NewProgress(src Source, total int, quiet bool) *Progress {
	return &Progress{
		source:   src,
		total:    int64(total),
		interval: time.Second,
		quiet:    quiet,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetInterval changes the refresh period. Call before Start.
func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	line := Line(p.source.Summary(), p.total)
	p.mu.Lock()
	fmt.Fprint(p.output, "\033[K"+line+"\r")
	p.mu.Unlock()
}

// Line formats one status line for s.
func Line(s loadgen.Summary, total int64) string {
	elapsed := s.Elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	rps := 0.0
	if s.Elapsed > 0 {
		rps = float64(s.Fired) / s.Elapsed.Seconds()
	}
	failRate := 0.0
	if s.Fired > 0 {
		failRate = float64(s.Failed) / float64(s.Fired) * 100
	}
	return fmt.Sprintf("[%02d:%02d] Requests: %d/%d | RPS: %.1f | Failed: %d (%.1f%%)",
		mins, secs, s.Fired, total, rps, s.Failed, failRate)
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
