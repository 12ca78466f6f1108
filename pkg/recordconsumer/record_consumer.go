package recordconsumer

import (
	"context"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/exporters"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
)

// Source is the receiving side of a record channel.
type Source interface {
	TryReceive() (processmonitor.ProcessRecord, bool)
}

// RecordConsumer drains a record channel into an exporter on a fixed interval.
type RecordConsumer struct {
	source       Source
	exporter     exporters.Exporter
	pollInterval time.Duration
}

func NewRecordConsumer(source Source, exporter exporters.Exporter, pollInterval time.Duration) *RecordConsumer {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &RecordConsumer{
		source:       source,
		exporter:     exporter,
		pollInterval: pollInterval,
	}
}

// Run polls until ctx is done, then drains whatever is still queued once more.
func (c *RecordConsumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	total := 0
	for {
		select {
		case <-ctx.Done():
			total += c.Drain()
			logger.L().Debug("record consumer stopped", helpers.Int("records", total))
			return
		case <-ticker.C:
			total += c.Drain()
		}
	}
}

// Drain exports every record available right now and returns how many there were.
func (c *RecordConsumer) Drain() int {
	n := 0
	for {
		record, ok := c.source.TryReceive()
		if !ok {
			return n
		}
		c.exporter.SendProcessRecord(record)
		n++
	}
}
