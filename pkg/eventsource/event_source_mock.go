package eventsource

import (
	"context"
	"sync"
	"time"
)

// BatchMock is one scripted pull: the results to return, or a transport error.
type BatchMock struct {
	Results []Result
	Err     error
}

// ConnectorMock is an in-memory source that replays scripted batches. Once the script is
// exhausted every pull waits for the requested interval and returns an empty batch.
type ConnectorMock struct {
	mu           sync.Mutex
	batches      []BatchMock
	connectErr   error
	subscribeErr error

	Connects      int
	Subscriptions []Filter
	Pulls         int
	Closed        int
}

var _ Connector = (*ConnectorMock)(nil)

func NewConnectorMock(batches ...BatchMock) *ConnectorMock {
	return &ConnectorMock{batches: batches}
}

// Events is a convenience for a batch made only of payloads.
func Events(payloads ...*RawEvent) BatchMock {
	results := make([]Result, 0, len(payloads))
	for _, p := range payloads {
		results = append(results, Result{Payload: p})
	}
	return BatchMock{Results: results}
}

func (c *ConnectorMock) Name() string {
	return "mock"
}

// FailConnect makes every following Connect call fail with err.
func (c *ConnectorMock) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// FailSubscribe makes every following Subscribe call fail with err.
func (c *ConnectorMock) FailSubscribe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// Push appends batches to the script.
func (c *ConnectorMock) Push(batches ...BatchMock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batches...)
}

func (c *ConnectorMock) Stats() (connects, pulls, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Connects, c.Pulls, c.Closed
}

func (c *ConnectorMock) Connect(_ context.Context) (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	c.Connects++
	return &connectionMock{parent: c}, nil
}

type connectionMock struct {
	parent *ConnectorMock
}

func (m *connectionMock) Subscribe(filter Filter) (Stream, error) {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	if m.parent.subscribeErr != nil {
		return nil, m.parent.subscribeErr
	}
	m.parent.Subscriptions = append(m.parent.Subscriptions, filter)
	return &streamMock{parent: m.parent}, nil
}

func (m *connectionMock) Close() error {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	m.parent.Closed++
	return nil
}

type streamMock struct {
	parent *ConnectorMock
}

func (s *streamMock) Next(ctx context.Context, wait time.Duration) ([]Result, error) {
	s.parent.mu.Lock()
	s.parent.Pulls++
	if len(s.parent.batches) > 0 {
		batch := s.parent.batches[0]
		s.parent.batches = s.parent.batches[1:]
		s.parent.mu.Unlock()
		return batch.Results, batch.Err
	}
	s.parent.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return nil, nil
}

func (s *streamMock) Close() error {
	return nil
}
