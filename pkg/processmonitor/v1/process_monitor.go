package processmonitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/config"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
)

// ProcessMonitor turns the creation events of one event source into cleaned records.
// Collect and Run must not be called concurrently on the same monitor.
type ProcessMonitor struct {
	cfg       config.Config
	connector eventsource.Connector
	sink      processmonitor.Sink
	metrics   metricsmanager.MetricsManager

	mu   sync.Mutex
	conn eventsource.Connection // established by Connect, consumed by the next subscription

	ready atomic.Bool
}

var _ processmonitor.ProcessMonitor = (*ProcessMonitor)(nil)

// CreateProcessMonitor binds a monitor to its source and sink. A nil sink makes Collect return
// the records instead of pushing them. Nothing is connected until Connect, Collect or Run.
func CreateProcessMonitor(cfg config.Config, connector eventsource.Connector, sink processmonitor.Sink, metrics metricsmanager.MetricsManager) *ProcessMonitor {
	return &ProcessMonitor{
		cfg:       cfg,
		connector: connector,
		sink:      sink,
		metrics:   metrics,
	}
}

// Connect establishes the connection ahead of the first subscription. A goroutine-bound
// connection cannot be handed over to the goroutine that later subscribes, so it is only
// verified and closed again.
func (m *ProcessMonitor) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return nil
	}
	conn, err := connect(ctx, m.connector)
	if err != nil {
		return err
	}
	if eventsource.IsGoroutineBound(m.connector) {
		return conn.Close()
	}
	m.conn = conn
	return nil
}

func (m *ProcessMonitor) subscribe(ctx context.Context) (*Subscription, error) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		var err error
		if conn, err = connect(ctx, m.connector); err != nil {
			return nil, err
		}
	}
	return newSubscription(m.connector.Name(), conn)
}

func (m *ProcessMonitor) Collect(ctx context.Context) ([]processmonitor.ProcessRecord, error) {
	sub, err := m.subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer m.closeSubscription(sub)

	results, err := sub.pull(ctx, m.cfg.PullTimeout)
	if err != nil {
		return nil, err
	}
	m.metrics.ReportPull(len(results))
	return m.handleBatch(sub, results)
}

// Run subscribes once and pulls until the subscription fails or ctx is cancelled. Cancellation
// is observed between pulls and during the idle pause, and returns nil.
func (m *ProcessMonitor) Run(ctx context.Context) error {
	sub, err := m.subscribe(ctx)
	if err != nil {
		return err
	}
	m.ready.Store(true)
	defer func() {
		m.ready.Store(false)
		m.closeSubscription(sub)
	}()

	var idle *time.Timer
	if m.cfg.IdleInterval > 0 {
		idle = time.NewTimer(m.cfg.IdleInterval)
		defer idle.Stop()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		results, err := sub.pull(ctx, m.cfg.PullTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.metrics.ReportPull(len(results))
		if _, err := m.handleBatch(sub, results); err != nil {
			return err
		}

		if idle == nil {
			continue
		}
		idle.Reset(m.cfg.IdleInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

// handleBatch decodes, cleans and delivers each result in order. Without a sink the records
// are returned instead.
func (m *ProcessMonitor) handleBatch(sub *Subscription, results []eventsource.Result) ([]processmonitor.ProcessRecord, error) {
	records := make([]processmonitor.ProcessRecord, 0, len(results))
	for _, result := range results {
		record, err := decodeResult(result)
		if err != nil {
			m.metrics.ReportDecodeFailure()
			if m.cfg.AbortOnDecodeFailure() {
				return nil, err
			}
			logger.L().Warning("failed to decode process event", helpers.String("session", sub.ID()), helpers.Error(err))
			continue
		}
		processmonitor.CleanCommandLine(&record)

		if m.sink == nil {
			records = append(records, record)
			continue
		}
		if err := m.sink.Send(record); err != nil {
			m.metrics.ReportRecordDropped(dropReason(err))
			logger.L().Error("failed to send process record",
				helpers.String("session", sub.ID()),
				helpers.Int("pid", int(record.ProcessID)),
				helpers.Error(err))
			continue
		}
		m.metrics.ReportRecordDelivered()
	}
	return records, nil
}

func decodeResult(result eventsource.Result) (processmonitor.ProcessRecord, error) {
	if result.Err != nil {
		var decodeErr *processmonitor.DecodeError
		if errors.As(result.Err, &decodeErr) {
			return processmonitor.ProcessRecord{}, decodeErr
		}
		return processmonitor.ProcessRecord{}, &processmonitor.DecodeError{Reason: "event source reported a failed event", Err: result.Err}
	}
	return processmonitor.Decode(result.Payload)
}

func dropReason(err error) string {
	if errors.Is(err, processmonitor.ErrSinkClosed) {
		return metricsmanager.DropReasonClosed
	}
	return metricsmanager.DropReasonFull
}

func (m *ProcessMonitor) closeSubscription(sub *Subscription) {
	if err := sub.Close(); err != nil {
		logger.L().Warning("failed to close subscription", helpers.String("session", sub.ID()), helpers.Error(err))
	}
}

func (m *ProcessMonitor) Ready() bool {
	return m.ready.Load()
}

// Close releases a connection established by Connect and not yet used.
func (m *ProcessMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
