package processmonitor

import (
	"sync"
	"time"
)

// Sink accepts records produced by the monitor.
type Sink interface {
	// Send hands over one record. It never blocks longer than the sink's configured timeout
	// and returns a *DeliveryError when the record was not accepted.
	Send(record ProcessRecord) error
}

// RecordChannel is a bounded FIFO of records with a single producer and any number of
// consumers. Sending on a full channel fails (or waits up to sendTimeout), and sending after
// Close fails instead of panicking.
type RecordChannel struct {
	mu          sync.RWMutex
	ch          chan ProcessRecord
	closed      bool
	sendTimeout time.Duration
}

var _ Sink = (*RecordChannel)(nil)

// NewRecordChannel creates a channel holding up to capacity records. With a zero sendTimeout
// Send never waits.
func NewRecordChannel(capacity int, sendTimeout time.Duration) *RecordChannel {
	if capacity < 1 {
		capacity = 1
	}
	return &RecordChannel{
		ch:          make(chan ProcessRecord, capacity),
		sendTimeout: sendTimeout,
	}
}

func (c *RecordChannel) Send(record ProcessRecord) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return &DeliveryError{ProcessID: record.ProcessID, Err: ErrSinkClosed}
	}

	select {
	case c.ch <- record:
		return nil
	default:
	}
	if c.sendTimeout <= 0 {
		return &DeliveryError{ProcessID: record.ProcessID, Err: ErrSinkFull}
	}

	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()
	select {
	case c.ch <- record:
		return nil
	case <-timer.C:
		return &DeliveryError{ProcessID: record.ProcessID, Err: ErrSinkFull}
	}
}

// TryReceive returns the next record without blocking.
func (c *RecordChannel) TryReceive() (ProcessRecord, bool) {
	select {
	case r, ok := <-c.ch:
		return r, ok
	default:
		return ProcessRecord{}, false
	}
}

// C exposes the receiving half for consumers that prefer to range or select.
func (c *RecordChannel) C() <-chan ProcessRecord {
	return c.ch
}

func (c *RecordChannel) Len() int {
	return len(c.ch)
}

func (c *RecordChannel) Cap() int {
	return cap(c.ch)
}

// Close stops accepting records. Records already queued can still be received.
func (c *RecordChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
