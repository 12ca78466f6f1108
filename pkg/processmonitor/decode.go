package processmonitor

import (
	"fmt"
	"math"

	"github.com/kubescape/process-monitor/pkg/eventsource"
)

type fieldKind int

const (
	kindUint32 fieldKind = iota
	kindText
	kindOptionalText
	kindInstance
)

func (k fieldKind) String() string {
	switch k {
	case kindUint32:
		return "unsigned 32-bit integer"
	case kindText:
		return "non-empty text"
	case kindOptionalText:
		return "optional text"
	case kindInstance:
		return "instance"
	}
	return "unknown"
}

type fieldSpec struct {
	name string
	kind fieldKind
}

type classSchema struct {
	class  string
	fields []fieldSpec
}

var (
	creationEventSchema = classSchema{
		class: eventsource.CreationEventClass,
		fields: []fieldSpec{
			{name: eventsource.TargetInstanceProperty, kind: kindInstance},
		},
	}
	processSchema = classSchema{
		class: eventsource.ProcessClass,
		fields: []fieldSpec{
			{name: eventsource.ProcessIDProperty, kind: kindUint32},
			{name: eventsource.ParentProcessIDProperty, kind: kindUint32},
			{name: eventsource.NameProperty, kind: kindText},
			{name: eventsource.ExecutablePathProperty, kind: kindOptionalText},
			{name: eventsource.CommandLineProperty, kind: kindOptionalText},
		},
	}
)

// validated holds the typed values of a payload that matched its schema.
type validated map[string]any

// Decode validates a raw creation event and converts its target instance into a record.
// It never returns a partially populated record: on any mismatch the record is zero and
// the error is a *DecodeError.
func Decode(raw *eventsource.RawEvent) (ProcessRecord, error) {
	event, err := creationEventSchema.validate(raw)
	if err != nil {
		return ProcessRecord{}, err
	}
	target := event[eventsource.TargetInstanceProperty].(*eventsource.RawEvent)
	proc, err := processSchema.validate(target)
	if err != nil {
		return ProcessRecord{}, &DecodeError{Reason: "target instance: " + err.(*DecodeError).Reason, Payload: raw.String()}
	}

	record := ProcessRecord{
		ProcessID:       proc[eventsource.ProcessIDProperty].(uint32),
		ParentProcessID: proc[eventsource.ParentProcessIDProperty].(uint32),
		Name:            proc[eventsource.NameProperty].(string),
	}
	if v, ok := proc[eventsource.ExecutablePathProperty].(string); ok {
		record.ExecutablePath = &v
	}
	if v, ok := proc[eventsource.CommandLineProperty].(string); ok {
		record.CommandLine = &v
	}
	return record, nil
}

func (s classSchema) validate(raw *eventsource.RawEvent) (validated, error) {
	if raw == nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("missing %s payload", s.class)}
	}
	if raw.Class != s.class {
		return nil, &DecodeError{Reason: fmt.Sprintf("expected class %s, got %q", s.class, raw.Class), Payload: raw.String()}
	}

	out := make(validated, len(s.fields))
	for _, f := range s.fields {
		v, present := raw.Properties[f.name]
		typed, err := f.coerce(v, present)
		if err != nil {
			return nil, &DecodeError{Reason: err.Error(), Payload: raw.String()}
		}
		if typed != nil {
			out[f.name] = typed
		}
	}
	return out, nil
}

func (f fieldSpec) coerce(v any, present bool) (any, error) {
	if !present || v == nil {
		if f.kind == kindOptionalText {
			return nil, nil
		}
		return nil, fmt.Errorf("field %s: missing, want %s", f.name, f.kind)
	}

	switch f.kind {
	case kindUint32:
		n, ok := toUint32(v)
		if !ok {
			return nil, fmt.Errorf("field %s: got %T(%v), want %s", f.name, v, v, f.kind)
		}
		return n, nil
	case kindText:
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("field %s: got %T(%v), want %s", f.name, v, v, f.kind)
		}
		return s, nil
	case kindOptionalText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: got %T, want %s", f.name, v, f.kind)
		}
		return s, nil
	case kindInstance:
		inst, ok := v.(*eventsource.RawEvent)
		if !ok || inst == nil {
			return nil, fmt.Errorf("field %s: got %T, want %s", f.name, v, f.kind)
		}
		return inst, nil
	}
	return nil, fmt.Errorf("field %s: unsupported kind", f.name)
}

// toUint32 accepts any Go integer kind whose value fits an unsigned 32-bit identifier.
// COM reports uint32 CIM properties as signed 32-bit variants.
func toUint32(v any) (uint32, bool) {
	var n int64
	switch x := v.(type) {
	case uint32:
		return x, true
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint64:
		if x > math.MaxUint32 {
			return 0, false
		}
		return uint32(x), true
	case uint:
		if uint64(x) > math.MaxUint32 {
			return 0, false
		}
		return uint32(x), true
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	default:
		return 0, false
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, false
	}
	return uint32(n), true
}
