package metricsmanager

import (
	"sync/atomic"

	"github.com/goradd/maps"
)

var _ MetricsManager = (*MetricsMock)(nil)

type MetricsMock struct {
	PullCounter          atomic.Int32
	EventCounter         atomic.Int32
	DeliveredCounter     atomic.Int32
	DecodeFailureCounter atomic.Int32
	RestartCounter       atomic.Int32
	DroppedCounter       maps.SafeMap[string, int]
}

func NewMetricsMock() *MetricsMock {
	return &MetricsMock{}
}

func (m *MetricsMock) Start() {
}

func (m *MetricsMock) Destroy() {
	m.PullCounter.Store(0)
	m.EventCounter.Store(0)
	m.DeliveredCounter.Store(0)
	m.DecodeFailureCounter.Store(0)
	m.RestartCounter.Store(0)
	m.DroppedCounter.Clear()
}

func (m *MetricsMock) ReportPull(batchSize int) {
	m.PullCounter.Add(1)
	m.EventCounter.Add(int32(batchSize))
}

func (m *MetricsMock) ReportRecordDelivered() {
	m.DeliveredCounter.Add(1)
}

func (m *MetricsMock) ReportRecordDropped(reason string) {
	m.DroppedCounter.Set(reason, m.DroppedCounter.Get(reason)+1)
}

func (m *MetricsMock) ReportDecodeFailure() {
	m.DecodeFailureCounter.Add(1)
}

func (m *MetricsMock) ReportSubscriptionRestart() {
	m.RestartCounter.Add(1)
}
