package metricsmanager

import (
	"fmt"
	"net/http"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	dropReasonLabel = "reason"
	sourceLabel     = "source"
)

var _ metricsmanager.MetricsManager = (*PrometheusMetric)(nil)

type PrometheusMetric struct {
	port int

	pullCounter          prometheus.Counter
	eventCounter         prometheus.Counter
	deliveredCounter     prometheus.Counter
	decodeFailureCounter prometheus.Counter
	restartCounter       prometheus.Counter
	droppedCounter       *prometheus.CounterVec
	batchSize            prometheus.Histogram

	// label values are fixed, so the children are resolved once
	droppedFull   prometheus.Counter
	droppedClosed prometheus.Counter
}

func NewPrometheusMetric(port int, source string) *PrometheusMetric {
	constLabels := prometheus.Labels{sourceLabel: source}
	p := &PrometheusMetric{
		port: port,
		pullCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "process_monitor_pull_counter",
			Help:        "The total number of batches pulled from the event source",
			ConstLabels: constLabels,
		}),
		eventCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "process_monitor_event_counter",
			Help:        "The total number of process creation events received from the event source",
			ConstLabels: constLabels,
		}),
		deliveredCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "process_monitor_delivered_counter",
			Help:        "The total number of process records delivered to the record channel",
			ConstLabels: constLabels,
		}),
		decodeFailureCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "process_monitor_decode_failure_counter",
			Help:        "The total number of events that failed to decode",
			ConstLabels: constLabels,
		}),
		restartCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "process_monitor_subscription_restart_counter",
			Help:        "The total number of times the subscription was re-established",
			ConstLabels: constLabels,
		}),
		droppedCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "process_monitor_dropped_counter",
			Help:        "The total number of process records dropped by reason",
			ConstLabels: constLabels,
		}, []string{dropReasonLabel}),
		batchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "process_monitor_batch_size",
			Help:        "Number of events returned by a single pull",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
			ConstLabels: constLabels,
		}),
	}
	p.droppedFull = p.droppedCounter.With(prometheus.Labels{dropReasonLabel: metricsmanager.DropReasonFull})
	p.droppedClosed = p.droppedCounter.With(prometheus.Labels{dropReasonLabel: metricsmanager.DropReasonClosed})
	return p
}

func (p *PrometheusMetric) Start() {
	// Start prometheus metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.L().Info("prometheus metrics server started", helpers.Int("port", p.port), helpers.String("path", "/metrics"))
		if err := http.ListenAndServe(fmt.Sprintf(":%d", p.port), mux); err != nil {
			logger.L().Error("prometheus metrics server stopped", helpers.Error(err))
		}
	}()
}

func (p *PrometheusMetric) Destroy() {
	prometheus.Unregister(p.pullCounter)
	prometheus.Unregister(p.eventCounter)
	prometheus.Unregister(p.deliveredCounter)
	prometheus.Unregister(p.decodeFailureCounter)
	prometheus.Unregister(p.restartCounter)
	prometheus.Unregister(p.droppedCounter)
	prometheus.Unregister(p.batchSize)
}

func (p *PrometheusMetric) ReportPull(batchSize int) {
	p.pullCounter.Inc()
	p.eventCounter.Add(float64(batchSize))
	if batchSize > 0 {
		p.batchSize.Observe(float64(batchSize))
	}
}

func (p *PrometheusMetric) ReportRecordDelivered() {
	p.deliveredCounter.Inc()
}

func (p *PrometheusMetric) ReportRecordDropped(reason string) {
	switch reason {
	case metricsmanager.DropReasonFull:
		p.droppedFull.Inc()
	case metricsmanager.DropReasonClosed:
		p.droppedClosed.Inc()
	default:
		p.droppedCounter.With(prometheus.Labels{dropReasonLabel: reason}).Inc()
	}
}

func (p *PrometheusMetric) ReportDecodeFailure() {
	p.decodeFailureCounter.Inc()
}

func (p *PrometheusMetric) ReportSubscriptionRestart() {
	p.restartCounter.Inc()
}
