package exporters

import (
	"sync"

	"github.com/kubescape/process-monitor/pkg/processmonitor"
)

// generic exporter interface
type Exporter interface {
	// SendProcessRecord publishes one observed process creation.
	SendProcessRecord(record processmonitor.ProcessRecord)
}

var _ Exporter = (*ExporterMock)(nil)

type ExporterMock struct {
	mu      sync.Mutex
	Records []processmonitor.ProcessRecord
	Closed  bool
}

func (e *ExporterMock) SendProcessRecord(record processmonitor.ProcessRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Records = append(e.Records, record)
}

// Received returns a copy of the records sent so far.
func (e *ExporterMock) Received() []processmonitor.ProcessRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]processmonitor.ProcessRecord, len(e.Records))
	copy(out, e.Records)
	return out
}

func (e *ExporterMock) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}
