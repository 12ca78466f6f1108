package metricsmanager

// Reasons a record was dropped instead of delivered.
const (
	DropReasonFull   = "channel_full"
	DropReasonClosed = "channel_closed"
)

// MetricsManager is an interface for reporting metrics
type MetricsManager interface {
	Start()
	Destroy()
	ReportPull(batchSize int)
	ReportRecordDelivered()
	ReportRecordDropped(reason string)
	ReportDecodeFailure()
	ReportSubscriptionRestart()
}
