package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"wakeloop/internal/asyncrt"
)

func newHelloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hello",
		Short: "Join a timer task and a simulated file read",
		Args:  cobra.NoArgs,
		RunE:  runHello,
	}
	cmd.Flags().Duration("timer", 4*time.Second, "delay before the timer task completes")
	cmd.Flags().Duration("file-delay", 2*time.Second, "how long the simulated read of file 2 blocks")
	cmd.Flags().String("file", "", "read this file instead of simulating file 2")
	return cmd
}

// announcedTimer reports every poll of the timer it wraps.
type announcedTimer struct {
	delay *asyncrt.Delay[string]
	say   func(format string, args ...any)
}

func (a *announcedTimer) Poll(cx *asyncrt.Context) asyncrt.Poll[string] {
	p := a.delay.Poll(cx)
	switch {
	case !p.IsReady():
		a.say("Hello, it's not yet time for future 1. Going to sleep\n")
	case p.Err == nil:
		a.say("Hello, it's time for future 1\n")
	}
	return p
}

func (a *announcedTimer) Release() { a.delay.Release() }

func readFile2(path string, delay time.Duration) func() (string, error) {
	return func() (string, error) {
		if path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", path, err)
			}
			return string(data), nil
		}
		time.Sleep(delay)
		return "Hello, there from file 2", nil
	}
}

func runHello(cmd *cobra.Command, args []string) error {
	s := sessionFrom(cmd.Context())
	timerDelay, err := cmd.Flags().GetDuration("timer")
	if err != nil {
		return err
	}
	fileDelay, err := cmd.Flags().GetDuration("file-delay")
	if err != nil {
		return err
	}
	path, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}

	x, err := newExecutor(cmd, s)
	if err != nil {
		return err
	}
	defer x.exec.Close()
	stopWatchdog := x.startWatchdog(cmd.Context(), s)
	defer stopWatchdog()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Hello before reading file!")

	return s.timer.Measure("hello", func() error {
		timer := asyncrt.Spawn(x.exec, &announcedTimer{
			delay: asyncrt.After(timerDelay, "Future 1 has completed"),
			say:   s.printf,
		}, asyncrt.WithName("timer"))

		file2 := asyncrt.Spawn(x.exec, asyncrt.Map(asyncrt.Blocking(readFile2(path, fileDelay)), func(v string) string {
			s.printf("%q\n", "Processing file 2")
			return v
		}), asyncrt.WithName("file2"))

		outs, err := asyncrt.BlockOn(cmd.Context(), x.exec, asyncrt.JoinAll(timer, file2), asyncrt.WithName("main"))
		if err != nil {
			return err
		}
		for _, o := range outs {
			if o.Err != nil {
				fmt.Fprintf(out, "error: %v\n", o.Err)
				continue
			}
			fmt.Fprintf(out, "%q\n", o.Value)
		}
		return asyncrt.Errors(outs)
	})
}
