package processmonitor

import "context"

// ProcessMonitor drives the connect, subscribe, pull, decode, clean and deliver cycle.
type ProcessMonitor interface {
	// Connect establishes the instrumentation connection without subscribing.
	Connect(ctx context.Context) error
	// Collect pulls exactly one batch. Records go to the sink when one is configured,
	// otherwise they are returned.
	Collect(ctx context.Context) ([]ProcessRecord, error)
	// Run pulls batches until a pull fails or ctx is cancelled.
	Run(ctx context.Context) error
	// Ready reports whether a live subscription is held.
	Ready() bool
	Close() error
}
