package processmonitor

import (
	"errors"
	"fmt"
)

const (
	OpConnect   = "connect"
	OpSubscribe = "subscribe"
	OpPull      = "pull"
)

var (
	ErrSinkFull   = errors.New("record channel is full")
	ErrSinkClosed = errors.New("record channel is closed")
)

// ConnectionError reports that the instrumentation connection could not be established,
// subscribed, or kept alive. It is fatal to the calling attempt.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DecodeError reports a raw payload that does not match the expected event shape.
type DecodeError struct {
	Reason  string
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Payload == "" {
		return "decode process event: " + e.Reason
	}
	return fmt.Sprintf("decode process event: %s: %s", e.Reason, e.Payload)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DeliveryError reports a record the sink did not accept. The record is lost.
type DeliveryError struct {
	ProcessID uint32
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver record for pid %d: %v", e.ProcessID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
