package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// fileConfig mirrors wakeloop.toml. Every key maps onto a command-line flag;
// flags given explicitly win over the file.
type fileConfig struct {
	Executor executorConfig `toml:"executor"`
	Trace    traceConfig    `toml:"trace"`
	Log      logConfig      `toml:"log"`
}

type executorConfig struct {
	Timers          string `toml:"timers"`
	MaxTimerThreads int    `toml:"max_timer_threads"`
	Workers         int    `toml:"workers"`
	Fuzz            bool   `toml:"fuzz"`
	Seed            uint64 `toml:"seed"`
	IdleTimeout     string `toml:"idle_timeout"`
	StallThreshold  string `toml:"stall_threshold"`
}

type traceConfig struct {
	Output    string `toml:"output"`
	Level     string `toml:"level"`
	Mode      string `toml:"mode"`
	Format    string `toml:"format"`
	RingSize  int    `toml:"ring_size"`
	Heartbeat string `toml:"heartbeat"`
	Dump      string `toml:"dump"`
}

type logConfig struct {
	Level string `toml:"level"`
}

type configBinding struct {
	key   []string
	flag  string
	value func(*fileConfig) string
}

var configBindings = []configBinding{
	{[]string{"executor", "timers"}, "timers", func(c *fileConfig) string { return c.Executor.Timers }},
	{[]string{"executor", "max_timer_threads"}, "max-timer-threads", func(c *fileConfig) string { return strconv.Itoa(c.Executor.MaxTimerThreads) }},
	{[]string{"executor", "workers"}, "workers", func(c *fileConfig) string { return strconv.Itoa(c.Executor.Workers) }},
	{[]string{"executor", "fuzz"}, "fuzz", func(c *fileConfig) string { return strconv.FormatBool(c.Executor.Fuzz) }},
	{[]string{"executor", "seed"}, "seed", func(c *fileConfig) string { return strconv.FormatUint(c.Executor.Seed, 10) }},
	{[]string{"executor", "idle_timeout"}, "idle-timeout", func(c *fileConfig) string { return c.Executor.IdleTimeout }},
	{[]string{"executor", "stall_threshold"}, "stall-threshold", func(c *fileConfig) string { return c.Executor.StallThreshold }},
	{[]string{"trace", "output"}, "trace", func(c *fileConfig) string { return c.Trace.Output }},
	{[]string{"trace", "level"}, "trace-level", func(c *fileConfig) string { return c.Trace.Level }},
	{[]string{"trace", "mode"}, "trace-mode", func(c *fileConfig) string { return c.Trace.Mode }},
	{[]string{"trace", "format"}, "trace-format", func(c *fileConfig) string { return c.Trace.Format }},
	{[]string{"trace", "ring_size"}, "trace-ring-size", func(c *fileConfig) string { return strconv.Itoa(c.Trace.RingSize) }},
	{[]string{"trace", "heartbeat"}, "trace-heartbeat", func(c *fileConfig) string { return c.Trace.Heartbeat }},
	{[]string{"trace", "dump"}, "trace-dump", func(c *fileConfig) string { return c.Trace.Dump }},
	{[]string{"log", "level"}, "log-level", func(c *fileConfig) string { return c.Log.Level }},
}

func loadFileConfig(path string) (fileConfig, toml.MetaData, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, meta, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fileConfig{}, meta, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, meta, nil
}

// applyConfigFile loads path and copies every key it defines onto the
// matching flag, unless that flag was set on the command line. Keys whose
// flag the running command does not have are ignored.
func applyConfigFile(flags *pflag.FlagSet, path string) error {
	cfg, meta, err := loadFileConfig(path)
	if err != nil {
		return err
	}
	for _, b := range configBindings {
		if !meta.IsDefined(b.key...) {
			continue
		}
		f := flags.Lookup(b.flag)
		if f == nil || f.Changed {
			continue
		}
		if err := f.Value.Set(b.value(&cfg)); err != nil {
			return fmt.Errorf("%s: %s: %w", path, strings.Join(b.key, "."), err)
		}
	}
	return nil
}
