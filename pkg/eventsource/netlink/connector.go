// Package netlink reports process creation through the Linux kernel proc connector. Exec
// notifications are enriched from /proc, so the connector needs CAP_NET_ADMIN and a procfs
// mount of the same pid namespace.
package netlink

import (
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/eventsource/procinfo"
)

type Connector struct {
	mountPoint string
}

var _ eventsource.Connector = (*Connector)(nil)

func NewConnector(mountPoint string) *Connector {
	if mountPoint == "" {
		mountPoint = procinfo.DefaultMountPoint
	}
	return &Connector{mountPoint: mountPoint}
}

func (c *Connector) Name() string {
	return "netlink"
}
