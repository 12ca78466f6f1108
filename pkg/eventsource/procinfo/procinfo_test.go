package procinfo

import (
	"testing"

	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteProcessMock(root, ProcessMock{
		PID:       1234,
		PPID:      1,
		Comm:      "bash",
		Exe:       "/usr/bin/bash",
		Args:      []string{"/usr/bin/bash", "-c", "echo hello world"},
		StartTime: 987654,
	}))
	require.NoError(t, WriteProcessMock(root, ProcessMock{PID: 2, Comm: "kthreadd", StartTime: 1}))

	r, err := NewReader(root)
	require.NoError(t, err)

	pids, err := r.PIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 1234}, pids)

	info, err := r.Lookup(1234)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), info.PID)
	assert.Equal(t, uint32(1), info.PPID)
	assert.Equal(t, "bash", info.Name)
	require.NotNil(t, info.ExecutablePath)
	assert.Equal(t, "/usr/bin/bash", *info.ExecutablePath)
	require.NotNil(t, info.CommandLine)
	assert.Equal(t, `/usr/bin/bash -c "echo hello world"`, *info.CommandLine)
	assert.Equal(t, uint64(987654), info.StartTime)

	start, err := r.StartTime(1234)
	require.NoError(t, err)
	assert.Equal(t, uint64(987654), start)

	kthread, err := r.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, "kthreadd", kthread.Name)
	assert.Nil(t, kthread.ExecutablePath)
	assert.Nil(t, kthread.CommandLine)

	_, err = r.Lookup(999)
	assert.Error(t, err)
}

func TestLookupReplacedExecutable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteProcessMock(root, ProcessMock{
		PID:       4321,
		PPID:      1,
		Comm:      "sleep",
		Exe:       "/usr/bin/sleep (deleted)",
		Args:      []string{"sleep", "60"},
		StartTime: 42,
	}))

	r, err := NewReader(root)
	require.NoError(t, err)

	info, err := r.Lookup(4321)
	require.NoError(t, err)
	assert.Equal(t, "sleep", info.Name)
	require.NotNil(t, info.ExecutablePath)
	assert.Equal(t, "/usr/bin/sleep", *info.ExecutablePath)
}

func TestInfoRawEvent(t *testing.T) {
	exe := "/usr/bin/sleep"
	cmd := "/usr/bin/sleep 10"
	raw := Info{PID: 10, PPID: 9, Name: "sleep", ExecutablePath: &exe, CommandLine: &cmd}.RawEvent()

	assert.Equal(t, eventsource.CreationEventClass, raw.Class)
	target, ok := raw.Properties[eventsource.TargetInstanceProperty].(*eventsource.RawEvent)
	require.True(t, ok)
	assert.Equal(t, eventsource.ProcessClass, target.Class)
	assert.Equal(t, uint32(10), target.Properties[eventsource.ProcessIDProperty])
	assert.Equal(t, uint32(9), target.Properties[eventsource.ParentProcessIDProperty])
	assert.Equal(t, "sleep", target.Properties[eventsource.NameProperty])
	assert.Equal(t, exe, target.Properties[eventsource.ExecutablePathProperty])
	assert.Equal(t, cmd, target.Properties[eventsource.CommandLineProperty])
}
