package exporters

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/kubescape/process-monitor/pkg/processmonitor"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var csvHeaders = []string{
	"Timestamp",
	"PID",
	"PPID",
	"Name",
	"Executable Path",
	"Command Line",
}

// CsvExporter is an exporter that appends process records to a csv file
type CsvExporter struct {
	fs      afero.Fs
	CsvPath string
}

// InitCsvExporter initializes a new CsvExporter
func InitCsvExporter(fs afero.Fs, csvPath string) *CsvExporter {
	if csvPath == "" {
		csvPath = os.Getenv("EXPORTER_CSV_PATH")
		if csvPath == "" {
			logrus.Debugf("csv path not provided, process records will not be exported to csv")
			return nil
		}
	}

	if exists, _ := afero.Exists(fs, csvPath); !exists {
		if err := writeRows(fs, csvPath, os.O_CREATE, csvHeaders); err != nil {
			logrus.Errorf("failed to initialize csv exporter: %v", err)
			return nil
		}
	}

	return &CsvExporter{
		fs:      fs,
		CsvPath: csvPath,
	}
}

// SendProcessRecord appends one row to the csv file
func (ce *CsvExporter) SendProcessRecord(record processmonitor.ProcessRecord) {
	err := writeRows(ce.fs, ce.CsvPath, 0, []string{
		time.Now().UTC().Format(time.RFC3339Nano),
		fmt.Sprintf("%d", record.ProcessID),
		fmt.Sprintf("%d", record.ParentProcessID),
		record.Name,
		record.GetExecutablePath(),
		record.GetCommandLine(),
	})
	if err != nil {
		logrus.Errorf("failed to export process record to csv: %v", err)
	}
}

func writeRows(fs afero.Fs, path string, flag int, rows ...[]string) error {
	csvFile, err := fs.OpenFile(path, os.O_APPEND|os.O_WRONLY|flag, 0644)
	if err != nil {
		return err
	}
	defer csvFile.Close()

	csvWriter := csv.NewWriter(csvFile)
	if err := csvWriter.WriteAll(rows); err != nil {
		return err
	}
	return nil
}
