package exporters

import (
	"os"

	"github.com/aquilax/truncate"
	"github.com/kubescape/process-monitor/pkg/processmonitor"

	log "github.com/sirupsen/logrus"
)

const maxCommandLineLength = 1024

type StdoutExporter struct {
	logger *log.Logger
}

func InitStdoutExporter(useStdout *bool) *StdoutExporter {
	if useStdout == nil {
		useStdout = new(bool)
		*useStdout = os.Getenv("STDOUT_ENABLED") != "false"
	}
	if !*useStdout {
		return nil
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	return &StdoutExporter{
		logger: logger,
	}
}

func (exporter *StdoutExporter) SendProcessRecord(record processmonitor.ProcessRecord) {
	fields := log.Fields{
		"processId":       record.ProcessID,
		"parentProcessId": record.ParentProcessID,
		"name":            record.Name,
	}
	if record.ExecutablePath != nil {
		fields["executablePath"] = *record.ExecutablePath
	}
	if record.CommandLine != nil {
		fields["commandLine"] = truncate.Truncate(*record.CommandLine, maxCommandLineLength, "...", truncate.PositionEnd)
	}
	exporter.logger.WithFields(fields).Info("process created")
}
