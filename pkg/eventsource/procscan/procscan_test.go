package procscan

import (
	"context"
	"testing"
	"time"

	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/eventsource/procinfo"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePids(t *testing.T, results []eventsource.Result) []uint32 {
	t.Helper()
	var out []uint32
	for _, r := range results {
		require.NoError(t, r.Err)
		record, err := processmonitor.Decode(r.Payload)
		require.NoError(t, err)
		out = append(out, record.ProcessID)
	}
	return out
}

func TestProcScanReportsNewProcesses(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, procinfo.WriteProcessMock(root, procinfo.ProcessMock{PID: 1, Comm: "init", Exe: "/sbin/init", Args: []string{"/sbin/init"}, StartTime: 1}))

	c := NewConnector(root, 5*time.Millisecond)
	assert.Equal(t, "procscan", c.Name())
	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	s, err := conn.Subscribe(eventsource.ProcessCreationFilter())
	require.NoError(t, err)
	defer s.Close()

	// the baseline is not reported
	results, err := s.Next(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, procinfo.WriteProcessMock(root, procinfo.ProcessMock{PID: 100, PPID: 1, Comm: "sleep", Exe: "/usr/bin/sleep", Args: []string{"/usr/bin/sleep", "5"}, StartTime: 500}))
	require.NoError(t, procinfo.WriteProcessMock(root, procinfo.ProcessMock{PID: 101, PPID: 1, Comm: "cat", Exe: "/usr/bin/cat", Args: []string{"cat"}, StartTime: 400}))

	results, err = s.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []uint32{101, 100}, decodePids(t, results))

	record, err := processmonitor.Decode(results[1].Payload)
	require.NoError(t, err)
	processmonitor.CleanCommandLine(&record)
	assert.Equal(t, uint32(1), record.ParentProcessID)
	assert.Equal(t, "sleep", record.Name)
	assert.Equal(t, "5", record.GetCommandLine())

	// pid reuse with a new start time is a new process
	require.NoError(t, procinfo.RemoveProcessMock(root, 101))
	require.NoError(t, procinfo.WriteProcessMock(root, procinfo.ProcessMock{PID: 100, PPID: 1, Comm: "true", Exe: "/usr/bin/true", StartTime: 900}))
	results, err = s.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []uint32{100}, decodePids(t, results))
}

func TestProcScanStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	c := NewConnector(root, time.Millisecond)
	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	s, err := conn.Subscribe(eventsource.ProcessCreationFilter())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	results, err := s.Next(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcScanRejectsOtherFilters(t *testing.T) {
	c := NewConnector(t.TempDir(), 0)
	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	_, err = conn.Subscribe(eventsource.Filter{EventClass: "__InstanceDeletionEvent", TargetClass: eventsource.ProcessClass})
	assert.Error(t, err)
}

func TestProcScanMissingMount(t *testing.T) {
	_, err := NewConnector("/does/not/exist", 0).Connect(context.Background())
	assert.Error(t, err)
}
