// Package core defines the fundamental types shared by the dispatcher,
// the outcome simulator and the statistics aggregator.
package core

import "context"

// TotalKey is the reserved statistics key for the global aggregate. No
// worker may use it as its name.
const TotalKey = "total"

// Outcome is the result of simulating one request on one worker.
type Outcome struct {
	RequestID string
	Worker    string
	Success   bool
	Delay     float64 // seconds
}

// Label returns SUCCESS or FAILURE.
func (o Outcome) Label() string {
	if o.Success {
		return "SUCCESS"
	}
	return "FAILURE"
}

// LineSink is an append-only destination for outcome log lines.
// Implementations must be safe for concurrent use.
type LineSink interface {
	WriteLine(ctx context.Context, line string) error
}

// Context key for passing the request ID through a request.
type contextKey string

const requestIDContextKey contextKey = "requestID"

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}
