package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func parseLogLevel(s string) (logiface.Level, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "off", "none", "disabled":
		return logiface.LevelDisabled, nil
	case "error", "err":
		return logiface.LevelError, nil
	case "", "warn", "warning":
		return logiface.LevelWarning, nil
	case "info":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("invalid --log-level value %q (expected off|error|warn|info|debug|trace)", s)
	}
}

// newLogger builds the JSON-lines logger handed to the executor. A disabled
// level yields a nil logger, which logiface treats as a no-op.
func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	if !level.Enabled() {
		return nil
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}
