package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd
	// KindPoint represents an instant event.
	KindPoint
	KindHeartbeat // periodic liveness signal
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent coarser events.
type Scope uint8

const (
	// ScopeExecutor covers executor lifecycle, panics and stalls.
	ScopeExecutor Scope = iota + 1
	// ScopeTask covers task spawn, completion and abort.
	ScopeTask
	// ScopePoll covers single polls of a task.
	ScopePoll
	ScopeWake // wake handle invocations (most detailed)
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeExecutor:
		return "executor"
	case ScopeTask:
		return "task"
	case ScopePoll:
		return "poll"
	case ScopeWake:
		return "wake"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time         `msgpack:"time"`
	Seq      uint64            `msgpack:"seq"`
	Kind     Kind              `msgpack:"kind"`
	Scope    Scope             `msgpack:"scope"`
	SpanID   uint64            `msgpack:"span,omitempty"`
	ParentID uint64            `msgpack:"parent,omitempty"`
	GID      uint64            `msgpack:"gid,omitempty"`
	TaskID   uint64            `msgpack:"task,omitempty"`
	Name     string            `msgpack:"name"`
	Detail   string            `msgpack:"detail,omitempty"`
	Extra    map[string]string `msgpack:"extra,omitempty"`
}
