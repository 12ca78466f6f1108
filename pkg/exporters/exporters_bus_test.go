package exporters

import (
	"errors"
	"testing"

	"github.com/kubescape/process-monitor/pkg/processmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterBusFanOut(t *testing.T) {
	first, second := &ExporterMock{}, &ExporterMock{}
	bus := NewExporterBus(first, second)

	bus.SendProcessRecord(processmonitor.ProcessRecord{ProcessID: 10, Name: "a"})
	bus.SendProcessRecord(processmonitor.ProcessRecord{ProcessID: 11, Name: "b"})

	for _, e := range []*ExporterMock{first, second} {
		got := e.Received()
		require.Len(t, got, 2)
		assert.Equal(t, uint32(10), got[0].ProcessID)
		assert.Equal(t, uint32(11), got[1].ProcessID)
	}
}

func TestInitExporters(t *testing.T) {
	t.Setenv("SYSLOG_HOST", "")
	t.Setenv("HTTP_ENDPOINT_URL", "")
	t.Setenv("EXPORTER_CSV_PATH", "")

	disabled := false
	_, err := InitExporters(ExportersConfig{StdoutExporter: &disabled}, "testhost")
	assert.Error(t, err)

	bus, err := InitExporters(ExportersConfig{}, "testhost")
	require.NoError(t, err)
	assert.Len(t, bus.exporters, 1)
}

type failingCloser struct {
	ExporterMock
}

func (f *failingCloser) Close() error {
	return errors.New("connection reset")
}

func TestExporterBusClose(t *testing.T) {
	first, second := &ExporterMock{}, &ExporterMock{}
	require.NoError(t, NewExporterBus(first, second).Close())
	assert.True(t, first.Closed)
	assert.True(t, second.Closed)

	third := &ExporterMock{}
	err := NewExporterBus(&failingCloser{}, third).Close()
	assert.EqualError(t, err, "connection reset")
	assert.True(t, third.Closed)
}

func TestExporterBusClosesSyslogConnection(t *testing.T) {
	server, _ := setupServer(t)
	defer server.Kill()

	syslogExp := InitSyslogExporter("127.0.0.1:40000", "udp", "testhost")
	require.NotNil(t, syslogExp)
	require.NoError(t, NewExporterBus(syslogExp).Close())
	assert.Error(t, syslogExp.Close(), "connection is already closed")
}
