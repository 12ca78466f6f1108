// Package procscan detects process creation by diffing successive /proc snapshots. It needs no
// privileges, but processes that live shorter than the scan interval are missed.
package procscan

import (
	"context"
	"fmt"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goradd/maps"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/eventsource/procinfo"
)

const DefaultScanInterval = 100 * time.Millisecond

type Connector struct {
	mountPoint   string
	scanInterval time.Duration
}

var _ eventsource.Connector = (*Connector)(nil)

func NewConnector(mountPoint string, scanInterval time.Duration) *Connector {
	if mountPoint == "" {
		mountPoint = procinfo.DefaultMountPoint
	}
	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}
	return &Connector{
		mountPoint:   mountPoint,
		scanInterval: scanInterval,
	}
}

func (c *Connector) Name() string {
	return "procscan"
}

func (c *Connector) Connect(_ context.Context) (eventsource.Connection, error) {
	reader, err := procinfo.NewReader(c.mountPoint)
	if err != nil {
		return nil, err
	}
	return &connection{reader: reader, scanInterval: c.scanInterval}, nil
}

type connection struct {
	reader       *procinfo.Reader
	scanInterval time.Duration
}

func (c *connection) Subscribe(filter eventsource.Filter) (eventsource.Stream, error) {
	if filter != eventsource.ProcessCreationFilter() {
		return nil, fmt.Errorf("procscan only reports %s of %s, got %+v", eventsource.CreationEventClass, eventsource.ProcessClass, filter)
	}
	s := &stream{
		reader:       c.reader,
		scanInterval: c.scanInterval,
	}
	// processes alive at subscription time are not creations
	if _, err := s.scan(); err != nil {
		return nil, err
	}
	logger.L().Debug("procscan baseline taken", helpers.Int("processes", s.seen.Len()))
	return s, nil
}

func (c *connection) Close() error {
	return nil
}

type stream struct {
	reader       *procinfo.Reader
	scanInterval time.Duration
	// pid -> start time of the process last seen under that pid
	seen maps.SafeMap[int, uint64]
}

func (s *stream) Next(ctx context.Context, wait time.Duration) ([]eventsource.Result, error) {
	deadline := time.Now().Add(wait)
	for {
		infos, err := s.scan()
		if err != nil {
			return nil, err
		}
		if len(infos) > 0 {
			results := make([]eventsource.Result, 0, len(infos))
			for _, info := range infos {
				results = append(results, eventsource.Result{Payload: info.RawEvent()})
			}
			return results, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(s.scanInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil
		case <-timer.C:
		}
	}
}

// scan returns the processes that appeared since the previous scan, oldest first. A pid whose
// start time changed was reused and counts as a new process.
func (s *stream) scan() ([]procinfo.Info, error) {
	pids, err := s.reader.PIDs()
	if err != nil {
		return nil, err
	}

	alive := mapset.NewThreadUnsafeSet(pids...)
	var created []procinfo.Info
	for _, pid := range pids {
		start, err := s.reader.StartTime(pid)
		if err != nil {
			// exited while scanning
			continue
		}
		if prev, ok := s.seen.Load(pid); ok && prev == start {
			continue
		}
		info, err := s.reader.Lookup(pid)
		if err != nil {
			continue
		}
		s.seen.Set(pid, info.StartTime)
		created = append(created, info)
	}

	for _, pid := range s.seen.Keys() {
		if !alive.Contains(pid) {
			s.seen.Delete(pid)
		}
	}

	slices.SortFunc(created, func(a, b procinfo.Info) int {
		if a.StartTime != b.StartTime {
			if a.StartTime < b.StartTime {
				return -1
			}
			return 1
		}
		return int(a.PID) - int(b.PID)
	})
	return created, nil
}

func (s *stream) Close() error {
	s.seen.Clear()
	return nil
}
