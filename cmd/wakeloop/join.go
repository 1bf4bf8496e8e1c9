package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wakeloop/internal/asyncrt"
)

func newJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join an immediate task with one that suspends once",
		Args:  cobra.NoArgs,
		RunE:  runJoin,
	}
	cmd.Flags().Duration("delay", 10*time.Millisecond, "how long task B stays suspended")
	cmd.Flags().String("format", "pretty", "output format (pretty|json)")
	return cmd
}

type joinTaskReport struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Polls      uint64 `json:"polls"`
	Admissions uint64 `json:"admissions"`
	Suspends   uint64 `json:"suspends"`
}

func runJoin(cmd *cobra.Command, args []string) error {
	s := sessionFrom(cmd.Context())
	delay, err := cmd.Flags().GetDuration("delay")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	x, err := newExecutor(cmd, s)
	if err != nil {
		return err
	}
	defer x.exec.Close()

	idx := s.timer.Begin("join")
	a := asyncrt.Spawn(x.exec, asyncrt.Value("A"), asyncrt.WithName("A"))
	b := asyncrt.Spawn(x.exec, asyncrt.After(delay, "B"), asyncrt.WithName("B"))
	outs, err := asyncrt.BlockOn(cmd.Context(), x.exec, asyncrt.JoinAll(a, b))
	s.timer.End(idx, "")
	if err != nil {
		return err
	}
	if err := asyncrt.Errors(outs); err != nil {
		return err
	}

	reports := make([]joinTaskReport, 0, 2)
	for i, h := range []*asyncrt.JoinHandle[string]{a, b} {
		info := h.Info()
		reports = append(reports, joinTaskReport{
			Name:       h.Name(),
			Value:      outs[i].Value,
			Polls:      info.Polls,
			Admissions: info.Admissions,
			Suspends:   info.Suspends,
		})
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	fmt.Fprintf(out, "%s\n", color.GreenString("%v", asyncrt.Values(outs)))
	for _, r := range reports {
		fmt.Fprintf(out, "  %s: polls=%d admissions=%d suspends=%d\n", r.Name, r.Polls, r.Admissions, r.Suspends)
	}
	return nil
}
