package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wakeloop/internal/version"
)

// newRootCmd builds the command tree. Sessions opened by the persistent
// pre-run hook are recorded in app so they can be closed even when RunE fails.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "wakeloop",
		Short:         "Cooperative task scheduler demos and stress harness",
		Long:          `wakeloop drives poll/wake futures on a single-queue executor and reports what the scheduler did`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			a.sess = s
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "read defaults from a TOML file")
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("quiet", false, "suppress non-essential output")
	pf.Bool("timings", false, "show timing information")
	pf.String("log-level", "warn", "executor log level (off|error|warn|info|debug|trace)")
	pf.String("cpuprofile", "", "write a CPU profile to this file")
	pf.String("memprofile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime execution trace to this file")

	pf.String("timers", "queue", "timer source (queue|thread|virtual)")
	pf.Int("max-timer-threads", 0, "cap on live timer goroutines in thread mode (0 = unlimited)")
	pf.Bool("fuzz", false, "pick ready tasks at random instead of FIFO")
	pf.Uint64("seed", 1, "seed for fuzz scheduling and generated workloads")
	pf.Duration("idle-timeout", 0, "longest single park of an idle runner (0 = default)")
	pf.Duration("stall-threshold", 0, "report tasks suspended longer than this (0 = off)")

	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|task|poll|debug)")
	pf.String("trace-mode", "", "trace storage (stream|ring|both), derived from --trace/--trace-dump when empty")
	pf.String("trace-format", "auto", "trace stream format (auto|text|ndjson|msgpack)")
	pf.Int("trace-ring-size", 4096, "events kept by the trace ring")
	pf.Duration("trace-heartbeat", 0, "emit a heartbeat trace event at this interval (0 = off)")
	pf.String("trace-dump", "", "write the trace ring to this file on exit (msgpack unless .txt/.log/.ndjson)")

	root.AddCommand(newHelloCmd())
	root.AddCommand(newStressCmd())
	root.AddCommand(newJoinCmd())
	root.AddCommand(newVersionCmd())
	return root
}

type app struct {
	sess *session
}

// run executes the CLI and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.sess.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "wakeloop: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
