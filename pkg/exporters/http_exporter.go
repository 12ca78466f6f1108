package exporters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
)

type HTTPExporterConfig struct {
	// URL is the URL to send the HTTP request to
	URL string `json:"url"`
	// Headers is a map of headers to send in the HTTP request
	Headers map[string]string `json:"headers"`
	// Timeout is the timeout for the HTTP request
	TimeoutSeconds int `json:"timeoutSeconds"`
	// Method is the HTTP method to use for the HTTP request
	Method              string `json:"method"`
	MaxRecordsPerMinute int    `json:"maxRecordsPerMinute"`
}

// HTTPExporter posts each record as a CRD-like list to a remote endpoint.
type HTTPExporter struct {
	config     HTTPExporterConfig
	HostName   string `json:"hostName"`
	httpClient *http.Client

	// recordCount is the number of records sent in the current minute, used to stay under the receiver's rate limit
	recordCount       int
	recordCountLock   sync.Mutex
	recordCountStart  time.Time
	recordLimitLogged bool
}

type HTTPProcessRecordList struct {
	Kind       string                    `json:"kind"`
	ApiVersion string                    `json:"apiVersion"`
	Spec       HTTPProcessRecordListSpec `json:"spec"`
}

type HTTPProcessRecordListSpec struct {
	HostName string                         `json:"hostName"`
	Records  []processmonitor.ProcessRecord `json:"records"`
}

func (config *HTTPExporterConfig) Validate() error {
	if config.Method == "" {
		config.Method = "POST"
	} else if config.Method != "POST" && config.Method != "PUT" {
		return fmt.Errorf("method must be POST or PUT")
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = 5
	}
	if config.MaxRecordsPerMinute == 0 {
		config.MaxRecordsPerMinute = 1000
	}
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if config.URL == "" {
		return fmt.Errorf("URL is required")
	}
	return nil
}

// InitHTTPExporter initializes an HTTPExporter with the given URL, headers, timeout, and method
func InitHTTPExporter(config HTTPExporterConfig, hostName string) (*HTTPExporter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &HTTPExporter{
		HostName: hostName,
		config:   config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

func (exporter *HTTPExporter) SendProcessRecord(record processmonitor.ProcessRecord) {
	if exporter.checkRecordLimit() {
		return
	}

	list := HTTPProcessRecordList{
		Kind:       "ProcessRecords",
		ApiVersion: "kubescape.io/v1",
		Spec: HTTPProcessRecordListSpec{
			HostName: exporter.HostName,
			Records:  []processmonitor.ProcessRecord{record},
		},
	}

	bodyBytes, err := json.Marshal(list)
	if err != nil {
		logger.L().Error("failed to marshal HTTPProcessRecordList", helpers.Error(err))
		return
	}

	req, err := http.NewRequest(exporter.config.Method,
		exporter.config.URL+"/v1/processrecords", bytes.NewReader(bodyBytes))
	if err != nil {
		logger.L().Error("failed to create HTTP request", helpers.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range exporter.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := exporter.httpClient.Do(req)
	if err != nil {
		logger.L().Error("failed to send HTTP request", helpers.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.L().Error("Received non-2xx status code", helpers.Int("status", resp.StatusCode))
		return
	}

	// discard the body
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.L().Error("failed to clear response body", helpers.Error(err))
	}
}

// checkRecordLimit reports whether the per-minute budget is spent. The first refusal of a
// window is logged.
func (exporter *HTTPExporter) checkRecordLimit() bool {
	exporter.recordCountLock.Lock()
	defer exporter.recordCountLock.Unlock()

	if exporter.recordCountStart.IsZero() {
		exporter.recordCountStart = time.Now()
	}

	if time.Since(exporter.recordCountStart) > time.Minute {
		exporter.recordCountStart = time.Now()
		exporter.recordCount = 0
		exporter.recordLimitLogged = false
	}

	exporter.recordCount++
	limited := exporter.recordCount > exporter.config.MaxRecordsPerMinute
	if limited && !exporter.recordLimitLogged {
		logger.L().Warning("http exporter record limit reached",
			helpers.Int("records", exporter.recordCount-1),
			helpers.String("since", exporter.recordCountStart.Format(time.RFC3339)))
		exporter.recordLimitLogged = true
	}
	return limited
}
