package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wakeloop/internal/trace"
)

type traceSession struct {
	tracer    trace.Tracer
	heartbeat *trace.Heartbeat
	dumpPath  string
}

// setupTracing inspects trace-related flags and initializes the tracer.
// detail feeds heartbeat events; it may be nil.
func setupTracing(cmd *cobra.Command, detail func() string) (*traceSession, error) {
	flags := cmd.Flags()

	traceOutput, err := flags.GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := flags.GetString("trace-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := flags.GetString("trace-mode")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	formatStr, err := flags.GetString("trace-format")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-format flag: %w", err)
	}
	ringSize, err := flags.GetInt("trace-ring-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	heartbeatInterval, err := flags.GetDuration("trace-heartbeat")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}
	dumpPath, err := flags.GetString("trace-dump")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-dump flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	// an output or dump without a level means task-level events
	if level == trace.LevelOff && !flags.Changed("trace-level") && (traceOutput != "" || dumpPath != "") {
		level = trace.LevelTask
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return &traceSession{tracer: trace.Nop}, nil
	}

	mode, err := resolveTraceMode(modeStr, traceOutput, dumpPath)
	if err != nil {
		return nil, err
	}
	format, err := trace.ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: traceOutput,
		RingSize:   ringSize,
		Heartbeat:  heartbeatInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	if dumpPath != "" && trace.RingOf(tracer) == nil {
		_ = tracer.Close()
		return nil, fmt.Errorf("--trace-dump needs --trace-mode ring or both, got %s", mode)
	}

	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	return &traceSession{
		tracer:    tracer,
		heartbeat: trace.StartHeartbeat(tracer, heartbeatInterval, detail),
		dumpPath:  dumpPath,
	}, nil
}

// resolveTraceMode maps an empty --trace-mode onto what the other flags ask for.
func resolveTraceMode(value, output, dump string) (trace.StorageMode, error) {
	if strings.TrimSpace(value) != "" {
		return trace.ParseMode(value)
	}
	switch {
	case output != "" && dump != "":
		return trace.ModeBoth, nil
	case dump != "":
		return trace.ModeRing, nil
	default:
		return trace.ModeStream, nil
	}
}

// dumpFormat is msgpack unless the extension names a text format.
func dumpFormat(path string) trace.Format {
	switch {
	case strings.HasSuffix(path, ".txt"), strings.HasSuffix(path, ".log"):
		return trace.FormatText
	case strings.HasSuffix(path, ".ndjson"), strings.HasSuffix(path, ".jsonl"):
		return trace.FormatNDJSON
	default:
		return trace.FormatMsgpack
	}
}

// close stops the heartbeat, writes the ring dump if one was requested and
// releases the tracer.
func (s *traceSession) close() error {
	if s == nil {
		return nil
	}
	s.heartbeat.Stop()

	var errs []error
	if s.dumpPath != "" {
		if ring := trace.RingOf(s.tracer); ring != nil {
			if err := writeRingDump(ring, s.dumpPath); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.tracer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("trace: flush error: %w", err))
	}
	if err := s.tracer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("trace: close error: %w", err))
	}
	return errors.Join(errs...)
}

func writeRingDump(ring *trace.RingTracer, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trace: failed to create dump: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("trace: failed to close dump: %w", cerr)
		}
	}()
	if err := ring.Dump(f, dumpFormat(path)); err != nil {
		return fmt.Errorf("trace: failed to write dump: %w", err)
	}
	return nil
}
