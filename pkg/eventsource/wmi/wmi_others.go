//go:build !windows

package wmi

import (
	"context"
	"errors"

	"github.com/kubescape/process-monitor/pkg/eventsource"
)

func (c *Connector) Connect(_ context.Context) (eventsource.Connection, error) {
	return nil, errors.ErrUnsupported
}
