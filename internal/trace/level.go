package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	// LevelOff disables tracing.
	LevelOff   Level = iota
	LevelError       // executor-level events (panics, stalls)
	LevelTask        // task lifecycle
	LevelPoll        // every poll
	LevelDebug       // everything including wakeups
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelTask:
		return "task"
	case LevelPoll:
		return "poll"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off", "":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "task":
		return LevelTask, nil
	case "poll":
		return LevelPoll, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|task|poll|debug)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelOff:
		return false
	case LevelError:
		return scope <= ScopeExecutor
	case LevelTask:
		return scope <= ScopeTask
	case LevelPoll:
		return scope <= ScopePoll
	case LevelDebug:
		return true
	}
	return false
}
