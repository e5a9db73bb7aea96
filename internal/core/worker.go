package core

import (
	"sync/atomic"
	"time"
)

// Worker is a simulated backend unit. Its counters are updated by the
// dispatcher (load) and the aggregator (outcomes) and may be read at any
// time without locking.
type Worker struct {
	name   string
	weight int

	load       atomic.Int64
	success    atomic.Int64
	failure    atomic.Int64
	delayNanos atomic.Int64
}

// NewWorker creates a worker with zeroed counters.
func NewWorker(name string, weight int) *Worker {
	return &Worker{name: name, weight: weight}
}

func (w *Worker) Name() string { return w.name }

// Weight is carried as data only; round-robin selection ignores it.
func (w *Worker) Weight() int { return w.weight }

func (w *Worker) Load() int64         { return w.load.Load() }
func (w *Worker) SuccessCount() int64 { return w.success.Load() }
func (w *Worker) FailureCount() int64 { return w.failure.Load() }

// DelaySum returns the total recorded delay of this worker's requests.
func (w *Worker) DelaySum() time.Duration {
	return time.Duration(w.delayNanos.Load())
}

// IncrementLoad is called by the dispatcher when the worker is selected.
func (w *Worker) IncrementLoad() int64 {
	return w.load.Add(1)
}

// RecordOutcome is called by the aggregator while it holds its lock.
func (w *Worker) RecordOutcome(success bool, delay time.Duration) {
	if success {
		w.success.Add(1)
	} else {
		w.failure.Add(1)
	}
	w.delayNanos.Add(int64(delay))
}
