// Package dispatch selects the worker that serves each request.
//
// Selection is strict round robin over insertion order. Worker weight is
// exposed as data but does not bias how often a worker is picked.
package dispatch

import (
	"fmt"
	"sync"

	"lbsim/internal/core"
)

// Dispatcher holds a fixed, ordered pool of workers and a cursor.
// Safe for concurrent use.
type Dispatcher struct {
	mu     sync.Mutex
	pool   []*core.Worker
	byName map[string]*core.Worker
	cursor int
}

// New creates a Dispatcher over workers. The pool order is fixed here.
func New(workers []*core.Worker) (*Dispatcher, error) {
	if len(workers) == 0 {
		return nil, &core.ConfigurationError{Field: "pool.workers", Reason: "at least one worker is required", Err: core.ErrEmptyPool}
	}

	d := &Dispatcher{
		pool:   make([]*core.Worker, len(workers)),
		byName: make(map[string]*core.Worker, len(workers)),
	}
	for i, w := range workers {
		if w == nil {
			return nil, core.NewConfigurationError("pool.workers", "worker %d is nil", i)
		}
		if w.Name() == "" || w.Name() == core.TotalKey {
			return nil, core.NewConfigurationError("pool.workers", "invalid worker name %q", w.Name())
		}
		if w.Weight() <= 0 {
			return nil, core.NewConfigurationError("pool.workerWeight", "worker %s has non-positive weight %d", w.Name(), w.Weight())
		}
		if _, dup := d.byName[w.Name()]; dup {
			return nil, core.NewConfigurationError("pool.workers", "duplicate worker name %q", w.Name())
		}
		d.pool[i] = w
		d.byName[w.Name()] = w
	}
	return d, nil
}

// NewFromConfig creates count workers named Worker1..WorkerN, all with the
// same weight.
func NewFromConfig(count, weight int) (*Dispatcher, error) {
	workers := make([]*core.Worker, 0, count)
	for i := 0; i < count; i++ {
		workers = append(workers, core.NewWorker(fmt.Sprintf("Worker%d", i+1), weight))
	}
	return New(workers)
}

// Next returns the worker at the cursor, increments its load and advances
// the cursor. The three steps happen under one lock so concurrent callers
// never share or skip an index.
func (d *Dispatcher) Next() *core.Worker {
	d.mu.Lock()
	w := d.pool[d.cursor]
	w.IncrementLoad()
	d.cursor = (d.cursor + 1) % len(d.pool)
	d.mu.Unlock()
	return w
}

// Workers returns the pool in selection order.
func (d *Dispatcher) Workers() []*core.Worker {
	out := make([]*core.Worker, len(d.pool))
	copy(out, d.pool)
	return out
}

// Lookup finds a worker by name.
func (d *Dispatcher) Lookup(name string) (*core.Worker, bool) {
	w, ok := d.byName[name]
	return w, ok
}

// Len returns the pool size.
func (d *Dispatcher) Len() int { return len(d.pool) }

func (d *Dispatcher) Name() string { return "RoundRobin" }
