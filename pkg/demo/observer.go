// RequestObserver interface for deriving signals from completed requests.
// Observers receive request metadata after the response is written.
package demo

import (
	"context"
	"time"
)

// RequestInfo holds request metadata for signal derivation.
type RequestInfo struct {
	Method   string
	Route    string // route template, never the raw path
	Status   int
	Duration time.Duration
}

// RequestObserver receives request metadata after each request completes.
// The ctx is the request's context, carrying any active span.
type RequestObserver interface {
	ObserveRequest(ctx context.Context, info RequestInfo)
}
