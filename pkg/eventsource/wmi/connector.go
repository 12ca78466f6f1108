// Package wmi subscribes to process creation through Windows Management Instrumentation
// event notifications.
package wmi

import (
	"fmt"

	"github.com/kubescape/process-monitor/pkg/eventsource"
)

const (
	DefaultNamespace = `root\cimv2`
	// pollingInterval is the WITHIN clause: how often WMI polls for new instances.
	pollingInterval = 1
)

type Connector struct {
	namespace string
}

var (
	_ eventsource.Connector      = (*Connector)(nil)
	_ eventsource.GoroutineBound = (*Connector)(nil)
)

func NewConnector(namespace string) *Connector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Connector{namespace: namespace}
}

func (c *Connector) Name() string {
	return "wmi"
}

// GoroutineBound is true: a connection owns a COM apartment on the OS thread that created it.
func (c *Connector) GoroutineBound() bool {
	return true
}

// notificationQuery renders the WQL query selecting filter's events.
func notificationQuery(filter eventsource.Filter) string {
	return fmt.Sprintf("SELECT * FROM %s WITHIN %d WHERE TargetInstance ISA '%s'",
		filter.EventClass, pollingInterval, filter.TargetClass)
}
