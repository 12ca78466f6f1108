package metricsmanager

import (
	"testing"

	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetric(t *testing.T) {
	p := NewPrometheusMetric(0, "procscan")
	defer p.Destroy()

	p.ReportPull(3)
	p.ReportPull(0)
	p.ReportRecordDelivered()
	p.ReportRecordDelivered()
	p.ReportRecordDropped(metricsmanager.DropReasonFull)
	p.ReportRecordDropped(metricsmanager.DropReasonClosed)
	p.ReportRecordDropped(metricsmanager.DropReasonClosed)
	p.ReportDecodeFailure()
	p.ReportSubscriptionRestart()

	assert.Equal(t, float64(2), testutil.ToFloat64(p.pullCounter))
	assert.Equal(t, float64(3), testutil.ToFloat64(p.eventCounter))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.deliveredCounter))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.droppedFull))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.droppedClosed))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.decodeFailureCounter))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.restartCounter))
	assert.Equal(t, 1, testutil.CollectAndCount(p.batchSize))
}

func TestDestroyAllowsReRegistration(t *testing.T) {
	p := NewPrometheusMetric(0, "netlink")
	p.Destroy()
	assert.NotPanics(t, func() {
		NewPrometheusMetric(0, "netlink").Destroy()
	})
}
