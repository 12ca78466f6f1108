package eventsource

import (
	"context"
	"time"
)

// Connector opens connections to an OS instrumentation layer that reports process creation.
type Connector interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Connect establishes the connection context. It is called once per subscription, not per pull.
	Connect(ctx context.Context) (Connection, error)
}

// Connection is a live connection to the instrumentation layer.
type Connection interface {
	// Subscribe registers the filter and returns the stream of matching events.
	Subscribe(filter Filter) (Stream, error)
	Close() error
}

// Stream yields batches of raw creation events.
type Stream interface {
	// Next blocks until at least one result is available or wait elapses, and returns
	// zero or more results. A non-nil error is a transport failure for the whole pull.
	Next(ctx context.Context, wait time.Duration) ([]Result, error)
	Close() error
}

// Filter selects the events a subscription delivers.
type Filter struct {
	// EventClass is the wrapper event kind, e.g. __InstanceCreationEvent.
	EventClass string
	// TargetClass is the class the wrapped instance must be an instance of.
	TargetClass string
}

// ProcessCreationFilter matches instance-creation events wrapping a process instance.
func ProcessCreationFilter() Filter {
	return Filter{
		EventClass:  CreationEventClass,
		TargetClass: ProcessClass,
	}
}

// Result is one entry of a pulled batch: either a payload or a per-event error.
type Result struct {
	Payload *RawEvent
	Err     error
}

// GoroutineBound is implemented by connectors whose connections hold per-thread state. Such a
// connection must be created, used and closed by a single goroutine.
type GoroutineBound interface {
	GoroutineBound() bool
}

// IsGoroutineBound reports whether c's connections must stay on the goroutine that created them.
func IsGoroutineBound(c Connector) bool {
	b, ok := c.(GoroutineBound)
	return ok && b.GoroutineBound()
}
