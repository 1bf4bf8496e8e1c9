package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"

	"wakeloop/internal/observ"
	"wakeloop/internal/prof"
)

// session holds what every command shares: logger, tracer and phase timer.
type session struct {
	logger  *logiface.Logger[logiface.Event]
	trace   *traceSession
	prof    *prof.Session
	timer   *observ.Timer
	quiet   bool
	timings bool
	out     io.Writer
	errOut  io.Writer
	// stats, once set by a command, feeds heartbeat details
	stats atomic.Pointer[func() string]
}

func openSession(cmd *cobra.Command) (*session, error) {
	flags := cmd.Flags()

	if path, _ := flags.GetString("config"); path != "" {
		if err := applyConfigFile(flags, path); err != nil {
			return nil, err
		}
	}

	colorFlag, err := flags.GetString("color")
	if err != nil {
		return nil, err
	}
	useColor, err := resolveColor(colorFlag, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	color.NoColor = !useColor

	levelStr, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}
	level, err := parseLogLevel(levelStr)
	if err != nil {
		return nil, err
	}

	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return nil, err
	}
	timings, err := flags.GetBool("timings")
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:  newLogger(cmd.ErrOrStderr(), level),
		timer:   observ.NewTimer(),
		quiet:   quiet,
		timings: timings,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}
	s.prof, err = startProfiling(cmd)
	if err != nil {
		return nil, err
	}
	s.trace, err = setupTracing(cmd, s.heartbeatDetail)
	if err != nil {
		return nil, errors.Join(err, s.prof.Stop())
	}
	cmd.SetContext(withSession(cmd.Context(), s))
	return s, nil
}

func (s *session) heartbeatDetail() string {
	fn := s.stats.Load()
	if fn == nil {
		return ""
	}
	return (*fn)()
}

// printf writes non-essential output, which --quiet suppresses.
func (s *session) printf(format string, args ...any) {
	if s.quiet {
		return
	}
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) close() error {
	if s == nil {
		return nil
	}
	if s.timings {
		printTimings(s.errOut, s.timer)
	}
	return errors.Join(s.trace.close(), s.prof.Stop())
}

func startProfiling(cmd *cobra.Command) (*prof.Session, error) {
	flags := cmd.Flags()
	var cfg prof.Config
	var err error
	if cfg.CPU, err = flags.GetString("cpuprofile"); err != nil {
		return nil, err
	}
	if cfg.Mem, err = flags.GetString("memprofile"); err != nil {
		return nil, err
	}
	if cfg.Trace, err = flags.GetString("runtime-trace"); err != nil {
		return nil, err
	}
	return prof.Start(cfg)
}

func resolveColor(value string, out io.Writer) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "", "auto":
		f, ok := out.(*os.File)
		return ok && isTerminal(f), nil
	default:
		return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
	}
}
