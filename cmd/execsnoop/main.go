package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrzor/execsnoop/internal/config"
	"github.com/mrzor/execsnoop/internal/log"
	"github.com/mrzor/execsnoop/internal/record"
)

// Version information (set by ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	cmd := newRootCmd(cfg, run)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// newRootCmd binds the command-line flags to cfg, whose current values
// (taken from the environment) become the flag defaults. runFn is called
// with the validated configuration.
func newRootCmd(cfg *config.Config, runFn func(*config.Config) error) *cobra.Command {
	var (
		output string
		attrs  []string
	)

	cmd := &cobra.Command{
		Use:   "execsnoop",
		Short: "Trace execve calls system-wide",
		Long: `execsnoop records every execve and execveat on the host, successful or not,
and reports one event per attempt with the caller's identity, working
directory and argument vector.

Events are written to stdout as JSON lines, exported as OpenTelemetry spans,
or both. Every flag can also be set through its EXECSNOOP_* environment
variable.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Output = config.OutputMode(strings.ToLower(output))
			for _, s := range attrs {
				attr, err := config.ParseAttribute(s)
				if err != nil {
					return fmt.Errorf("--attribute %q: %w", s, err)
				}
				cfg.CustomAttributes = append(cfg.CustomAttributes, attr)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log.Init(log.Options{Verbose: cfg.Verbose, JSONFormat: cfg.LogJSON})
			return runFn(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BPFObject, "bpf-object", cfg.BPFObject, "path of the compiled BPF notification forwarder")
	f.IntVar(&cfg.MaxArgs, "max-args", cfg.MaxArgs, fmt.Sprintf("argument strings captured per exec, program path included (1-%d)", record.TotalMaxArgs))
	f.IntVar(&cfg.PendingCapacity, "pending-capacity", cfg.PendingCapacity, "maximum number of in-flight exec attempts")
	f.DurationVar(&cfg.PendingTTL, "pending-ttl", cfg.PendingTTL, "discard attempts pending longer than this (0 disables)")
	f.BoolVarP(&cfg.IgnoreFailed, "ignore-failed", "x", cfg.IgnoreFailed, "do not report failed exec attempts")
	f.IntVar(&cfg.ExportBuffer, "export-buffer", cfg.ExportBuffer, "export ring size in bytes")
	f.Uint32Var(&cfg.NotificationBuffer, "notification-buffer", cfg.NotificationBuffer, "kernel notification ring size in bytes (0 keeps the object's default)")
	f.StringVarP(&output, "output", "o", string(cfg.Output), "event consumers: json, otel or both")
	f.StringArrayVarP(&attrs, "attribute", "a", nil, "custom span attribute as name=expression (repeatable)")
	f.StringVar(&cfg.TraceID, "trace-id", cfg.TraceID, "expression computing the trace ID of each span")
	f.StringVar(&cfg.ParentID, "parent-id", cfg.ParentID, "expression computing the parent span ID of each span")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable debug logging")
	f.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "write logs as JSON")

	return cmd
}
