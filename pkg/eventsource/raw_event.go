package eventsource

import (
	"fmt"
	"slices"
	"strings"
)

// Wire shape of a process creation event, as reported by WMI and emulated by the other backends.
const (
	CreationEventClass = "__InstanceCreationEvent"
	ProcessClass       = "Win32_Process"

	TargetInstanceProperty  = "TargetInstance"
	ProcessIDProperty       = "ProcessId"
	ParentProcessIDProperty = "ParentProcessId"
	NameProperty            = "Name"
	ExecutablePathProperty  = "ExecutablePath"
	CommandLineProperty     = "CommandLine"
)

// RawEvent is an undecoded, tagged event container. Property values are Go integers, strings,
// nil (absent value) or a nested *RawEvent.
type RawEvent struct {
	Class      string
	Properties map[string]any
}

// NewCreationEvent wraps target in an instance-creation event.
func NewCreationEvent(target *RawEvent) *RawEvent {
	return &RawEvent{
		Class: CreationEventClass,
		Properties: map[string]any{
			TargetInstanceProperty: target,
		},
	}
}

// NewProcessInstance builds a process instance payload. A nil path or command line is
// recorded as a present property with no value.
func NewProcessInstance(pid, ppid uint32, name string, executablePath, commandLine *string) *RawEvent {
	props := map[string]any{
		ProcessIDProperty:       pid,
		ParentProcessIDProperty: ppid,
		NameProperty:            name,
		ExecutablePathProperty:  nil,
		CommandLineProperty:     nil,
	}
	if executablePath != nil {
		props[ExecutablePathProperty] = *executablePath
	}
	if commandLine != nil {
		props[CommandLineProperty] = *commandLine
	}
	return &RawEvent{Class: ProcessClass, Properties: props}
}

// String renders the payload with sorted keys for diagnostics.
func (e *RawEvent) String() string {
	if e == nil {
		return "<nil>"
	}
	keys := make([]string, 0, len(e.Properties))
	for k := range e.Properties {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(e.Class)
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		switch v := e.Properties[k].(type) {
		case *RawEvent:
			fmt.Fprintf(&b, "%s=%s", k, v.String())
		case string:
			fmt.Fprintf(&b, "%s=%q", k, v)
		default:
			fmt.Fprintf(&b, "%s=%v", k, v)
		}
	}
	b.WriteString("}")
	return b.String()
}
