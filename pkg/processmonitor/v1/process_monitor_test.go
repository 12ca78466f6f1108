package processmonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kubescape/process-monitor/pkg/config"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		EventSource:          "mock",
		ChannelCapacity:      10,
		PullTimeout:          10 * time.Millisecond,
		IdleInterval:         time.Millisecond,
		ConsumerPollInterval: 10 * time.Millisecond,
		DecodeFailurePolicy:  config.DecodeFailureSkip,
	}
}

func event(pid uint32) *eventsource.RawEvent {
	path := `C:\Windows\System32\cmd.exe`
	cmd := `"C:\Windows\System32\cmd.exe" /c exit`
	return eventsource.NewCreationEvent(eventsource.NewProcessInstance(pid, 1, "cmd.exe", &path, &cmd))
}

func pids(records []processmonitor.ProcessRecord) []uint32 {
	out := make([]uint32, 0, len(records))
	for _, r := range records {
		out = append(out, r.ProcessID)
	}
	return out
}

func drain(ch *processmonitor.RecordChannel) []processmonitor.ProcessRecord {
	var out []processmonitor.ProcessRecord
	for {
		r, ok := ch.TryReceive()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}

func TestCollectWithoutSink(t *testing.T) {
	path := `C:\Windows\notepad.exe`
	cmd := `"C:\Windows\notepad.exe" test.txt`
	connector := eventsource.NewConnectorMock(eventsource.Events(
		eventsource.NewCreationEvent(eventsource.NewProcessInstance(4321, 1, "notepad.exe", &path, &cmd)),
	))
	metrics := metricsmanager.NewMetricsMock()
	m := CreateProcessMonitor(testConfig(), connector, nil, metrics)

	records, err := m.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(4321), records[0].ProcessID)
	assert.Equal(t, uint32(1), records[0].ParentProcessID)
	assert.Equal(t, "notepad.exe", records[0].Name)
	assert.Equal(t, path, records[0].GetExecutablePath())
	assert.Equal(t, "test.txt", records[0].GetCommandLine())

	connects, pulls, closed := connector.Stats()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, pulls)
	assert.Equal(t, 1, closed)
	assert.Equal(t, []eventsource.Filter{eventsource.ProcessCreationFilter()}, connector.Subscriptions)
	assert.Equal(t, int32(1), metrics.PullCounter.Load())
	assert.Equal(t, int32(1), metrics.EventCounter.Load())
	assert.False(t, m.Ready())
}

func TestCollectWithSink(t *testing.T) {
	connector := eventsource.NewConnectorMock(eventsource.Events(event(10), event(11), event(12)))
	ch := processmonitor.NewRecordChannel(10, 0)
	metrics := metricsmanager.NewMetricsMock()
	m := CreateProcessMonitor(testConfig(), connector, ch, metrics)

	records, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, []uint32{10, 11, 12}, pids(drain(ch)))
	assert.Equal(t, int32(3), metrics.DeliveredCounter.Load())
}

func TestCollectEmptyWindow(t *testing.T) {
	connector := eventsource.NewConnectorMock()
	ch := processmonitor.NewRecordChannel(10, 0)
	m := CreateProcessMonitor(testConfig(), connector, ch, metricsmanager.NewMetricsMock())

	records, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, ch.Len())
}

func TestCollectFullChannelDoesNotBlock(t *testing.T) {
	connector := eventsource.NewConnectorMock(eventsource.Events(event(10), event(11), event(12)))
	ch := processmonitor.NewRecordChannel(1, 0)
	metrics := metricsmanager.NewMetricsMock()
	m := CreateProcessMonitor(testConfig(), connector, ch, metrics)

	done := make(chan error, 1)
	go func() {
		_, err := m.Collect(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collect blocked on a full channel")
	}

	assert.Equal(t, []uint32{10}, pids(drain(ch)))
	assert.Equal(t, int32(1), metrics.DeliveredCounter.Load())
	assert.Equal(t, 2, metrics.DroppedCounter.Get(metricsmanager.DropReasonFull))
}

func TestCollectClosedSink(t *testing.T) {
	connector := eventsource.NewConnectorMock(eventsource.Events(event(10), event(11)))
	ch := processmonitor.NewRecordChannel(10, 0)
	ch.Close()
	metrics := metricsmanager.NewMetricsMock()
	m := CreateProcessMonitor(testConfig(), connector, ch, metrics)

	_, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.DroppedCounter.Get(metricsmanager.DropReasonClosed))
	assert.Equal(t, int32(0), metrics.DeliveredCounter.Load())
}

func TestCollectDecodeFailures(t *testing.T) {
	malformed := &eventsource.RawEvent{Class: eventsource.CreationEventClass, Properties: map[string]any{}}
	batch := eventsource.BatchMock{Results: []eventsource.Result{
		{Payload: event(10)},
		{Payload: malformed},
		{Err: errors.New("property read failed")},
		{Payload: event(12)},
	}}

	tests := []struct {
		name        string
		policy      string
		wantPids    []uint32
		wantErr     bool
		wantFailure int32
	}{
		{
			name:        "skip isolates each event",
			policy:      config.DecodeFailureSkip,
			wantPids:    []uint32{10, 12},
			wantFailure: 2,
		},
		{
			name:        "abort stops at the first malformed event",
			policy:      config.DecodeFailureAbort,
			wantErr:     true,
			wantFailure: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DecodeFailurePolicy = tt.policy
			metrics := metricsmanager.NewMetricsMock()
			m := CreateProcessMonitor(cfg, eventsource.NewConnectorMock(batch), nil, metrics)

			records, err := m.Collect(context.Background())
			if tt.wantErr {
				var decodeErr *processmonitor.DecodeError
				require.ErrorAs(t, err, &decodeErr)
				assert.Contains(t, decodeErr.Payload, eventsource.CreationEventClass)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantPids, pids(records))
			}
			assert.Equal(t, tt.wantFailure, metrics.DecodeFailureCounter.Load())
		})
	}
}

func TestCollectConnectionErrors(t *testing.T) {
	unavailable := errors.New("service unavailable")

	t.Run("connect", func(t *testing.T) {
		connector := eventsource.NewConnectorMock()
		connector.FailConnect(unavailable)
		m := CreateProcessMonitor(testConfig(), connector, nil, metricsmanager.NewMetricsMock())

		_, err := m.Collect(context.Background())
		var connErr *processmonitor.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, processmonitor.OpConnect, connErr.Op)
		assert.ErrorIs(t, err, unavailable)
		assert.ErrorAs(t, m.Connect(context.Background()), &connErr)
	})

	t.Run("subscribe", func(t *testing.T) {
		connector := eventsource.NewConnectorMock()
		connector.FailSubscribe(unavailable)
		m := CreateProcessMonitor(testConfig(), connector, nil, metricsmanager.NewMetricsMock())

		_, err := m.Collect(context.Background())
		var connErr *processmonitor.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, processmonitor.OpSubscribe, connErr.Op)
		_, _, closed := connector.Stats()
		assert.Equal(t, 1, closed)
	})

	t.Run("pull", func(t *testing.T) {
		connector := eventsource.NewConnectorMock(eventsource.BatchMock{Err: unavailable})
		m := CreateProcessMonitor(testConfig(), connector, nil, metricsmanager.NewMetricsMock())

		_, err := m.Collect(context.Background())
		var connErr *processmonitor.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, processmonitor.OpPull, connErr.Op)
		assert.ErrorIs(t, err, unavailable)
	})
}

func TestConnectIsReusedBySubscription(t *testing.T) {
	connector := eventsource.NewConnectorMock(eventsource.Events(event(10)))
	m := CreateProcessMonitor(testConfig(), connector, nil, metricsmanager.NewMetricsMock())

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	records, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint32{10}, pids(records))

	connects, _, closed := connector.Stats()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, closed)
	assert.NoError(t, m.Close())
}

type goroutineBoundConnector struct {
	*eventsource.ConnectorMock
}

func (goroutineBoundConnector) GoroutineBound() bool {
	return true
}

func TestConnectVerifiesGoroutineBoundSource(t *testing.T) {
	connector := eventsource.NewConnectorMock(eventsource.Events(event(10)))
	m := CreateProcessMonitor(testConfig(), goroutineBoundConnector{connector}, nil, metricsmanager.NewMetricsMock())

	require.NoError(t, m.Connect(context.Background()))
	connects, _, closed := connector.Stats()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, closed, "connection is released on the goroutine that opened it")

	records, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint32{10}, pids(records))
	connects, _, closed = connector.Stats()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 2, closed)
}

func TestCloseReleasesUnusedConnection(t *testing.T) {
	connector := eventsource.NewConnectorMock()
	m := CreateProcessMonitor(testConfig(), connector, nil, metricsmanager.NewMetricsMock())

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	_, _, closed := connector.Stats()
	assert.Equal(t, 1, closed)
}

func TestRunPreservesOrderAcrossBatches(t *testing.T) {
	pullFailure := errors.New("connection reset")
	connector := eventsource.NewConnectorMock(
		eventsource.Events(event(10), event(11)),
		eventsource.Events(),
		eventsource.Events(event(12)),
		eventsource.BatchMock{Err: pullFailure},
	)
	ch := processmonitor.NewRecordChannel(10, 0)
	metrics := metricsmanager.NewMetricsMock()
	m := CreateProcessMonitor(testConfig(), connector, ch, metrics)

	err := m.Run(context.Background())
	var connErr *processmonitor.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, processmonitor.OpPull, connErr.Op)
	assert.ErrorIs(t, err, pullFailure)

	assert.Equal(t, []uint32{10, 11, 12}, pids(drain(ch)))
	// the failed pull is not counted as a pulled batch
	assert.Equal(t, int32(3), metrics.PullCounter.Load())
	assert.False(t, m.Ready())
	_, pulls, closed := connector.Stats()
	assert.Equal(t, 4, pulls)
	assert.Equal(t, 1, closed)
}

func TestRunFullChannelKeepsProcessing(t *testing.T) {
	connector := eventsource.NewConnectorMock(
		eventsource.Events(event(10), event(11)),
		eventsource.Events(event(12)),
		eventsource.BatchMock{Err: errors.New("stop")},
	)
	ch := processmonitor.NewRecordChannel(1, 0)
	metrics := metricsmanager.NewMetricsMock()
	m := CreateProcessMonitor(testConfig(), connector, ch, metrics)

	require.Error(t, m.Run(context.Background()))
	assert.Equal(t, []uint32{10}, pids(drain(ch)))
	assert.Equal(t, 2, metrics.DroppedCounter.Get(metricsmanager.DropReasonFull))
	assert.Equal(t, int32(2), metrics.PullCounter.Load())
	_, pulls, _ := connector.Stats()
	assert.Equal(t, 3, pulls)
}

func TestRunEmptyWindowStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.IdleInterval = 20 * time.Millisecond
	connector := eventsource.NewConnectorMock()
	ch := processmonitor.NewRecordChannel(10, 0)
	m := CreateProcessMonitor(cfg, connector, ch, metricsmanager.NewMetricsMock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	require.Eventually(t, m.Ready, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, pulls, _ := connector.Stats()
		return pulls >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Equal(t, 0, ch.Len())
	assert.False(t, m.Ready())
}

func TestRunDeliversPushedEvents(t *testing.T) {
	connector := eventsource.NewConnectorMock()
	ch := processmonitor.NewRecordChannel(10, 0)
	m := CreateProcessMonitor(testConfig(), connector, ch, metricsmanager.NewMetricsMock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = m.Run(ctx)
	}()

	require.Eventually(t, m.Ready, time.Second, 5*time.Millisecond)
	connector.Push(eventsource.Events(event(42)))

	var got []processmonitor.ProcessRecord
	require.Eventually(t, func() bool {
		got = append(got, drain(ch)...)
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint32(42), got[0].ProcessID)
	assert.Equal(t, "/c exit", got[0].GetCommandLine())
}
