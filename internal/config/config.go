package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mrzor/execsnoop/internal/correlator"
	"github.com/mrzor/execsnoop/internal/record"
)

// OutputMode selects the event consumers.
type OutputMode string

// Output modes.
const (
	OutputJSON OutputMode = "json"
	OutputOTEL OutputMode = "otel"
	OutputBoth OutputMode = "both"
)

// JSON reports whether events are written as JSON lines.
func (m OutputMode) JSON() bool { return m == OutputJSON || m == OutputBoth }

// OTEL reports whether events are exported as spans.
func (m OutputMode) OTEL() bool { return m == OutputOTEL || m == OutputBoth }

// EnvConfig holds configuration from environment variables
type EnvConfig struct {
	BPFObject          string        `env:"EXECSNOOP_BPF_OBJECT" envDefault:"/usr/lib/execsnoop/execsnoop.bpf.o"`
	MaxArgs            int           `env:"EXECSNOOP_MAX_ARGS" envDefault:"20"`
	PendingCapacity    int           `env:"EXECSNOOP_PENDING_CAPACITY" envDefault:"10240"`
	PendingTTL         time.Duration `env:"EXECSNOOP_PENDING_TTL" envDefault:"0s"`
	IgnoreFailed       bool          `env:"EXECSNOOP_IGNORE_FAILED" envDefault:"false"`
	ExportBuffer       int           `env:"EXECSNOOP_EXPORT_BUFFER" envDefault:"262144"`
	NotificationBuffer uint32        `env:"EXECSNOOP_NOTIFICATION_BUFFER" envDefault:"0"`
	Output             string        `env:"EXECSNOOP_OUTPUT" envDefault:"json"`
	Attributes         string        `env:"EXECSNOOP_ATTRIBUTES" envDefault:""`
	TraceID            string        `env:"EXECSNOOP_TRACE_ID" envDefault:""`
	ParentID           string        `env:"EXECSNOOP_PARENT_ID" envDefault:""`
	Verbose            bool          `env:"EXECSNOOP_VERBOSE" envDefault:"false"`
	LogJSON            bool          `env:"EXECSNOOP_LOG_JSON" envDefault:"false"`
}

// ParseEnvConfig parses configuration from environment variables
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// Config holds the resolved configuration. Command-line flags are bound
// directly to its fields, on top of the values taken from the environment.
type Config struct {
	// BPFObject is the path of the compiled notification forwarder
	BPFObject string
	// MaxArgs is the number of argument strings captured per exec
	MaxArgs int
	// PendingCapacity bounds the number of in-flight exec attempts
	PendingCapacity int
	// PendingTTL enables the orphan reaper when positive
	PendingTTL time.Duration
	// IgnoreFailed drops failed exec attempts instead of emitting them
	IgnoreFailed bool
	// ExportBuffer is the export ring size in bytes
	ExportBuffer int
	// NotificationBuffer overrides the kernel notification ring size
	NotificationBuffer uint32
	// Output selects the consumers of completed execs
	Output OutputMode
	// CustomAttributes are span attributes computed from each exec
	CustomAttributes []CustomAttribute
	// TraceID is an expression producing the trace ID of each span
	TraceID string
	// ParentID is an expression producing the parent span ID of each span
	ParentID string
	Verbose  bool
	LogJSON  bool
}

// FromEnv builds a Config from the environment. Attribute strings are
// parsed here so flags can append to them.
func FromEnv() (*Config, error) {
	ec, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}

	attrs, err := ParseAttributeString(ec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("parsing EXECSNOOP_ATTRIBUTES: %w", err)
	}

	return &Config{
		BPFObject:          ec.BPFObject,
		MaxArgs:            ec.MaxArgs,
		PendingCapacity:    ec.PendingCapacity,
		PendingTTL:         ec.PendingTTL,
		IgnoreFailed:       ec.IgnoreFailed,
		ExportBuffer:       ec.ExportBuffer,
		NotificationBuffer: ec.NotificationBuffer,
		Output:             OutputMode(strings.ToLower(ec.Output)),
		CustomAttributes:   attrs,
		TraceID:            ec.TraceID,
		ParentID:           ec.ParentID,
		Verbose:            ec.Verbose,
		LogJSON:            ec.LogJSON,
	}, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.BPFObject == "" {
		return fmt.Errorf("BPF object path cannot be empty")
	}
	if c.MaxArgs < 1 || c.MaxArgs > record.TotalMaxArgs {
		return fmt.Errorf("max args must be between 1 and %d, got %d", record.TotalMaxArgs, c.MaxArgs)
	}
	if c.PendingCapacity < 1 {
		return fmt.Errorf("pending capacity must be positive, got %d", c.PendingCapacity)
	}
	if c.PendingTTL < 0 {
		return fmt.Errorf("pending TTL cannot be negative, got %s", c.PendingTTL)
	}
	if c.ExportBuffer < record.MaxRecordSize {
		return fmt.Errorf("export buffer must hold at least one record (%d bytes), got %d", record.MaxRecordSize, c.ExportBuffer)
	}
	if n := c.NotificationBuffer; n != 0 && (n < 4096 || n&(n-1) != 0) {
		return fmt.Errorf("notification buffer must be a power of two of at least 4096 bytes, got %d", n)
	}
	switch c.Output {
	case OutputJSON, OutputOTEL, OutputBoth:
	default:
		return fmt.Errorf("unknown output %q (want json, otel or both)", c.Output)
	}
	return nil
}

// FailurePolicy maps IgnoreFailed onto the correlator policy.
func (c *Config) FailurePolicy() correlator.FailurePolicy {
	if c.IgnoreFailed {
		return correlator.FailureDrop
	}
	return correlator.FailureEmit
}

// ReapInterval is how often the reaper runs for the configured TTL.
func (c *Config) ReapInterval() time.Duration {
	return max(c.PendingTTL/2, 100*time.Millisecond)
}
