//go:build linux

package netlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/eventsource/procinfo"
	"github.com/mdlayher/netlink"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// drainWindow bounds how long a pull keeps reading once it holds at least one exec.
const drainWindow = 5 * time.Millisecond

func (c *Connector) Connect(_ context.Context) (eventsource.Connection, error) {
	reader, err := procinfo.NewReader(c.mountPoint)
	if err != nil {
		return nil, err
	}
	conn, err := netlink.Dial(unix.NETLINK_CONNECTOR, &netlink.Config{Groups: cnIdxProc})
	if err != nil {
		return nil, fmt.Errorf("dial proc connector: %w", err)
	}
	e, err := newEnricher(reader, runtime.NumCPU())
	if err != nil {
		return nil, multierr.Append(err, conn.Close())
	}
	return &connection{conn: conn, enricher: e}, nil
}

type connection struct {
	conn     *netlink.Conn
	enricher *enricher
}

func (c *connection) Subscribe(filter eventsource.Filter) (eventsource.Stream, error) {
	if filter != eventsource.ProcessCreationFilter() {
		return nil, fmt.Errorf("proc connector only reports %s of %s, got %+v", eventsource.CreationEventClass, eventsource.ProcessClass, filter)
	}
	if err := c.setListening(procCnMcastListen); err != nil {
		return nil, fmt.Errorf("register proc connector listener: %w", err)
	}
	return &stream{conn: c}, nil
}

func (c *connection) setListening(op uint32) error {
	_, err := c.conn.Send(netlink.Message{
		Header: netlink.Header{Type: netlink.Done},
		Data:   encodeMcastOp(op),
	})
	return err
}

func (c *connection) Close() error {
	c.enricher.release()
	return c.conn.Close()
}

type stream struct {
	conn *connection
}

func (s *stream) Next(ctx context.Context, wait time.Duration) ([]eventsource.Result, error) {
	deadline := time.Now().Add(wait)
	var execs []procEvent
	for ctx.Err() == nil {
		if len(execs) > 0 {
			if drain := time.Now().Add(drainWindow); drain.Before(deadline) {
				deadline = drain
			}
		}
		if err := s.conn.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		msgs, err := s.conn.conn.Receive()
		if err != nil {
			if isTimeout(err) {
				break
			}
			if errors.Is(err, unix.ENOBUFS) {
				logger.L().Warning("proc connector receive buffer overrun, events were lost")
				continue
			}
			return nil, err
		}
		for _, m := range msgs {
			ev, err := parseProcEvent(m.Data)
			if err != nil {
				logger.L().Debug("ignoring proc connector message", helpers.Error(err))
				continue
			}
			if s.conn.enricher.observe(ev) {
				execs = append(execs, ev)
			}
		}
	}
	return s.conn.enricher.enrich(execs), nil
}

func (s *stream) Close() error {
	return s.conn.setListening(procCnMcastIgnore)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
