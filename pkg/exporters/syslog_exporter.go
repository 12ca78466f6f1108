package exporters

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
)

const syslogAppName = "process-monitor"

// SyslogExporter is an exporter that sends process records to syslog
type SyslogExporter struct {
	mu       sync.Mutex
	conn     net.Conn
	protocol string
	hostName string
}

// InitSyslogExporter initializes a new SyslogExporter
func InitSyslogExporter(syslogHost, protocol, hostName string) *SyslogExporter {
	if syslogHost == "" {
		syslogHost = os.Getenv("SYSLOG_HOST")
		if syslogHost == "" {
			return nil
		}
	}
	if protocol == "" {
		protocol = os.Getenv("SYSLOG_PROTOCOL")
	}
	// Set default protocol to UDP
	if protocol == "" {
		protocol = "udp"
	}

	conn, err := net.DialTimeout(protocol, syslogHost, 5*time.Second)
	if err != nil {
		logger.L().Error("failed to initialize syslog exporter", helpers.String("host", syslogHost), helpers.Error(err))
		return nil
	}

	if hostName == "" {
		hostName, _ = os.Hostname()
	}
	return &SyslogExporter{
		conn:     conn,
		protocol: protocol,
		hostName: hostName,
	}
}

func (se *SyslogExporter) message(record processmonitor.ProcessRecord) rfc5424.Message {
	return rfc5424.Message{
		Priority:  rfc5424.Daemon | rfc5424.Info,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Hostname:  se.hostName,
		AppName:   syslogAppName,
		ProcessID: fmt.Sprintf("%d", record.ProcessID),
		StructuredData: []rfc5424.StructuredData{
			{
				ID: fmt.Sprintf("process@%d", record.ProcessID),
				Parameters: []rfc5424.SDParam{
					{
						Name:  "pid",
						Value: fmt.Sprintf("%d", record.ProcessID),
					},
					{
						Name:  "ppid",
						Value: fmt.Sprintf("%d", record.ParentProcessID),
					},
					{
						Name:  "name",
						Value: record.Name,
					},
					{
						Name:  "path",
						Value: record.GetExecutablePath(),
					},
					{
						Name:  "cmdline",
						Value: record.GetCommandLine(),
					},
				},
			},
		},
		Message: []byte(fmt.Sprintf("Process '%s' created with pid %d by parent %d", record.Name, record.ProcessID, record.ParentProcessID)),
	}
}

// SendProcessRecord sends a record to syslog (RFC 5424) - https://tools.ietf.org/html/rfc5424
func (se *SyslogExporter) SendProcessRecord(record processmonitor.ProcessRecord) {
	msg := se.message(record)
	b, err := msg.MarshalBinary()
	if err != nil {
		logger.L().Error("failed to encode syslog message", helpers.Int("pid", int(record.ProcessID)), helpers.Error(err))
		return
	}

	se.mu.Lock()
	defer se.mu.Unlock()
	if se.protocol == "udp" {
		_, err = se.conn.Write(b)
	} else {
		// octet counting framing, RFC 6587
		_, err = fmt.Fprintf(se.conn, "%d %s", len(b), b)
	}
	if err != nil {
		logger.L().Error("failed to send process record to syslog", helpers.Error(err))
	}
}

func (se *SyslogExporter) Close() error {
	return se.conn.Close()
}
