package processmonitor

import "context"

type ProcessMonitorMock struct {
	Records []ProcessRecord
}

var _ ProcessMonitor = (*ProcessMonitorMock)(nil)

func CreateProcessMonitorMock(records ...ProcessRecord) *ProcessMonitorMock {
	return &ProcessMonitorMock{Records: records}
}

func (p *ProcessMonitorMock) Connect(_ context.Context) error {
	return nil
}

func (p *ProcessMonitorMock) Collect(_ context.Context) ([]ProcessRecord, error) {
	return p.Records, nil
}

func (p *ProcessMonitorMock) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (p *ProcessMonitorMock) Ready() bool {
	return true
}

func (p *ProcessMonitorMock) Close() error {
	return nil
}
