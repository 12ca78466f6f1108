//go:build windows

package wmi

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"go.uber.org/multierr"
)

const (
	sFalse = 0x00000001
	// WBEM_E_TIMED_OUT, returned by NextEvent when no event arrived in time
	wbemErrTimedOut = 0x80043001
)

var processProperties = []string{
	eventsource.ProcessIDProperty,
	eventsource.ParentProcessIDProperty,
	eventsource.NameProperty,
	eventsource.ExecutablePathProperty,
	eventsource.CommandLineProperty,
}

// Connect locks the calling goroutine to its OS thread and initializes COM there. The thread
// stays locked until the connection is closed, which must happen on the same goroutine.
func (c *Connector) Connect(_ context.Context) (eventsource.Connection, error) {
	runtime.LockOSThread()
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			runtime.UnlockOSThread()
			return nil, fmt.Errorf("initialize COM: %w", err)
		}
	}

	services, err := c.connectServer()
	if err != nil {
		ole.CoUninitialize()
		runtime.UnlockOSThread()
		return nil, err
	}
	return &connection{services: services}, nil
}

func (c *Connector) connectServer() (*ole.IDispatch, error) {
	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return nil, fmt.Errorf("create SWbemLocator: %w", err)
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, fmt.Errorf("query SWbemLocator: %w", err)
	}
	defer locator.Release()

	result, err := oleutil.CallMethod(locator, "ConnectServer", nil, c.namespace)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.namespace, err)
	}
	return result.ToIDispatch(), nil
}

type connection struct {
	services *ole.IDispatch
}

func (c *connection) Subscribe(filter eventsource.Filter) (eventsource.Stream, error) {
	result, err := oleutil.CallMethod(c.services, "ExecNotificationQuery", notificationQuery(filter))
	if err != nil {
		return nil, err
	}
	return &stream{events: result.ToIDispatch()}, nil
}

func (c *connection) Close() error {
	c.services.Release()
	ole.CoUninitialize()
	runtime.UnlockOSThread()
	return nil
}

type stream struct {
	events *ole.IDispatch
}

// Next waits up to wait for the first event, then drains whatever is already queued.
func (s *stream) Next(ctx context.Context, wait time.Duration) ([]eventsource.Result, error) {
	var results []eventsource.Result
	timeout := int32(wait.Milliseconds())
	for ctx.Err() == nil {
		v, err := oleutil.CallMethod(s.events, "NextEvent", timeout)
		if err != nil {
			if isTimeout(err) {
				break
			}
			return nil, err
		}
		ev := v.ToIDispatch()
		raw, err := readCreationEvent(ev)
		ev.Release()
		results = append(results, eventsource.Result{Payload: raw, Err: err})
		timeout = 0
	}
	return results, nil
}

func (s *stream) Close() error {
	s.events.Release()
	return nil
}

func isTimeout(err error) bool {
	var oleErr *ole.OleError
	if !errors.As(err, &oleErr) {
		return false
	}
	if oleErr.Code() == wbemErrTimedOut {
		return true
	}
	if sub, ok := oleErr.SubError().(interface{ SCODE() uint32 }); ok && sub.SCODE() == wbemErrTimedOut {
		return true
	}
	return strings.Contains(strings.ToLower(oleErr.Error()), "timed out")
}

func className(obj *ole.IDispatch) (string, error) {
	path, err := oleutil.GetProperty(obj, "Path_")
	if err != nil {
		return "", err
	}
	defer path.Clear()
	class, err := oleutil.GetProperty(path.ToIDispatch(), "Class")
	if err != nil {
		return "", err
	}
	defer class.Clear()
	return class.ToString(), nil
}

// readCreationEvent copies the COM event object into a RawEvent so it outlives the object.
func readCreationEvent(ev *ole.IDispatch) (*eventsource.RawEvent, error) {
	class, err := className(ev)
	if err != nil {
		return nil, fmt.Errorf("read event class: %w", err)
	}
	target, err := oleutil.GetProperty(ev, eventsource.TargetInstanceProperty)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", eventsource.TargetInstanceProperty, err)
	}
	defer target.Clear()

	instance, err := readInstance(target.ToIDispatch())
	if err != nil {
		return nil, err
	}
	return &eventsource.RawEvent{
		Class:      class,
		Properties: map[string]any{eventsource.TargetInstanceProperty: instance},
	}, nil
}

func readInstance(obj *ole.IDispatch) (*eventsource.RawEvent, error) {
	if obj == nil {
		return nil, errors.New("target instance is empty")
	}
	class, err := className(obj)
	if err != nil {
		return nil, fmt.Errorf("read instance class: %w", err)
	}
	props := make(map[string]any, len(processProperties))
	var errs error
	for _, name := range processProperties {
		v, err := oleutil.GetProperty(obj, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		props[name] = v.Value()
		_ = v.Clear()
	}
	if errs != nil {
		return nil, errs
	}
	return &eventsource.RawEvent{Class: class, Properties: props}, nil
}
