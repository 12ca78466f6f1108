package exporters

import (
	"errors"
	"io"
	"os"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

type ExportersConfig struct {
	StdoutExporter     *bool               `mapstructure:"stdoutExporter"`
	HTTPExporterConfig *HTTPExporterConfig `mapstructure:"httpExporterConfig"`
	SyslogExporter     string              `mapstructure:"syslogExporterURL"`
	SyslogProtocol     string              `mapstructure:"syslogProtocol"`
	CsvExporterPath    string              `mapstructure:"csvExporterPath"`
}

// This file will contain the single point of contact for all exporters,
// it will be used by the record consumer to publish process records.
type ExporterBus struct {
	// Exporters is a list of all exporters.
	exporters []Exporter
}

var _ Exporter = (*ExporterBus)(nil)

// InitExporters initializes all exporters.
func InitExporters(exportersConfig ExportersConfig, hostName string) (*ExporterBus, error) {
	var exporters []Exporter
	if stdoutExp := InitStdoutExporter(exportersConfig.StdoutExporter); stdoutExp != nil {
		exporters = append(exporters, stdoutExp)
	}
	if syslogExp := InitSyslogExporter(exportersConfig.SyslogExporter, exportersConfig.SyslogProtocol, hostName); syslogExp != nil {
		exporters = append(exporters, syslogExp)
	}
	if csvExp := InitCsvExporter(afero.NewOsFs(), exportersConfig.CsvExporterPath); csvExp != nil {
		exporters = append(exporters, csvExp)
	}
	if exportersConfig.HTTPExporterConfig == nil {
		if httpURL := os.Getenv("HTTP_ENDPOINT_URL"); httpURL != "" {
			exportersConfig.HTTPExporterConfig = &HTTPExporterConfig{URL: httpURL}
		}
	}
	if exportersConfig.HTTPExporterConfig != nil {
		httpExp, err := InitHTTPExporter(*exportersConfig.HTTPExporterConfig, hostName)
		if err != nil {
			logger.L().Error("failed to initialize http exporter", helpers.Error(err))
		} else {
			exporters = append(exporters, httpExp)
		}
	}

	if len(exporters) == 0 {
		return nil, errors.New("no exporters were initialized")
	}
	logger.L().Info("exporters initialized", helpers.Int("count", len(exporters)))

	return NewExporterBus(exporters...), nil
}

func NewExporterBus(exporters ...Exporter) *ExporterBus {
	return &ExporterBus{exporters: exporters}
}

func (e *ExporterBus) SendProcessRecord(record processmonitor.ProcessRecord) {
	for _, exporter := range e.exporters {
		exporter.SendProcessRecord(record)
	}
}

// Close releases the exporters that hold a connection or file.
func (e *ExporterBus) Close() error {
	var errs error
	for _, exporter := range e.exporters {
		if closer, ok := exporter.(io.Closer); ok {
			errs = multierr.Append(errs, closer.Close())
		}
	}
	return errs
}
