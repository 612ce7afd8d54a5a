package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/execsnoop/internal/correlator"
)

func validConfig() *Config {
	return &Config{
		BPFObject:       "/tmp/execsnoop.bpf.o",
		MaxArgs:         20,
		PendingCapacity: 10240,
		ExportBuffer:    256 * 1024,
		Output:          OutputJSON,
	}
}

func TestParseEnvConfig(t *testing.T) {
	t.Setenv("EXECSNOOP_BPF_OBJECT", "/opt/fwd.o")
	t.Setenv("EXECSNOOP_MAX_ARGS", "60")
	t.Setenv("EXECSNOOP_PENDING_CAPACITY", "100")
	t.Setenv("EXECSNOOP_PENDING_TTL", "30s")
	t.Setenv("EXECSNOOP_IGNORE_FAILED", "true")
	t.Setenv("EXECSNOOP_OUTPUT", "both")
	t.Setenv("EXECSNOOP_ATTRIBUTES", "key=comm")
	t.Setenv("EXECSNOOP_TRACE_ID", "cwd")

	cfg, err := ParseEnvConfig()
	require.NoError(t, err)
	assert.Equal(t, "/opt/fwd.o", cfg.BPFObject)
	assert.Equal(t, 60, cfg.MaxArgs)
	assert.Equal(t, 100, cfg.PendingCapacity)
	assert.Equal(t, 30*time.Second, cfg.PendingTTL)
	assert.True(t, cfg.IgnoreFailed)
	assert.Equal(t, "both", cfg.Output)
	assert.Equal(t, "key=comm", cfg.Attributes)
	assert.Equal(t, "cwd", cfg.TraceID)
}

func TestParseEnvConfig_Defaults(t *testing.T) {
	for _, name := range []string{
		"EXECSNOOP_BPF_OBJECT", "EXECSNOOP_MAX_ARGS", "EXECSNOOP_PENDING_CAPACITY",
		"EXECSNOOP_PENDING_TTL", "EXECSNOOP_IGNORE_FAILED", "EXECSNOOP_EXPORT_BUFFER",
		"EXECSNOOP_OUTPUT", "EXECSNOOP_ATTRIBUTES",
	} {
		t.Setenv(name, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/execsnoop/execsnoop.bpf.o", cfg.BPFObject)
	assert.Equal(t, 20, cfg.MaxArgs)
	assert.Equal(t, 10240, cfg.PendingCapacity)
	assert.Zero(t, cfg.PendingTTL)
	assert.False(t, cfg.IgnoreFailed)
	assert.Equal(t, 256*1024, cfg.ExportBuffer)
	assert.Equal(t, OutputJSON, cfg.Output)
	assert.Empty(t, cfg.CustomAttributes)
	require.NoError(t, cfg.Validate())
}

func TestParseEnvConfig_BadValue(t *testing.T) {
	t.Setenv("EXECSNOOP_MAX_ARGS", "lots")

	_, err := ParseEnvConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse environment config")
}

func TestFromEnv_Attributes(t *testing.T) {
	t.Setenv("EXECSNOOP_ATTRIBUTES", "first=args[0];who=uid")
	t.Setenv("EXECSNOOP_OUTPUT", "OTEL")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.CustomAttributes, 2)
	assert.Equal(t, CustomAttribute{Name: "first", Expression: "args[0]"}, cfg.CustomAttributes[0])
	assert.Equal(t, OutputOTEL, cfg.Output)
}

func TestFromEnv_BadAttributes(t *testing.T) {
	t.Setenv("EXECSNOOP_ATTRIBUTES", "nope")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXECSNOOP_ATTRIBUTES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "one arg", mutate: func(c *Config) { c.MaxArgs = 1 }},
		{name: "sixty args", mutate: func(c *Config) { c.MaxArgs = 60 }},
		{name: "no object", mutate: func(c *Config) { c.BPFObject = "" }, wantErr: "BPF object path"},
		{name: "zero args", mutate: func(c *Config) { c.MaxArgs = 0 }, wantErr: "max args"},
		{name: "too many args", mutate: func(c *Config) { c.MaxArgs = 61 }, wantErr: "max args"},
		{name: "zero capacity", mutate: func(c *Config) { c.PendingCapacity = 0 }, wantErr: "pending capacity"},
		{name: "negative ttl", mutate: func(c *Config) { c.PendingTTL = -time.Second }, wantErr: "pending TTL"},
		{name: "tiny export", mutate: func(c *Config) { c.ExportBuffer = 4096 }, wantErr: "export buffer"},
		{name: "odd ring", mutate: func(c *Config) { c.NotificationBuffer = 5000 }, wantErr: "notification buffer"},
		{name: "small ring", mutate: func(c *Config) { c.NotificationBuffer = 1024 }, wantErr: "notification buffer"},
		{name: "ring", mutate: func(c *Config) { c.NotificationBuffer = 1 << 20 }},
		{name: "bad output", mutate: func(c *Config) { c.Output = "xml" }, wantErr: "unknown output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFailurePolicy(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, correlator.FailureEmit, cfg.FailurePolicy())

	cfg.IgnoreFailed = true
	assert.Equal(t, correlator.FailureDrop, cfg.FailurePolicy())
}

func TestReapInterval(t *testing.T) {
	cfg := validConfig()
	cfg.PendingTTL = time.Minute
	assert.Equal(t, 30*time.Second, cfg.ReapInterval())

	cfg.PendingTTL = 10 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, cfg.ReapInterval())
}

func TestOutputMode(t *testing.T) {
	assert.True(t, OutputJSON.JSON())
	assert.False(t, OutputJSON.OTEL())
	assert.True(t, OutputOTEL.OTEL())
	assert.False(t, OutputOTEL.JSON())
	assert.True(t, OutputBoth.JSON())
	assert.True(t, OutputBoth.OTEL())
}

func TestParseAttribute(t *testing.T) {
	attr, err := ParseAttribute("failed=error != 0")
	require.NoError(t, err)
	assert.Equal(t, "failed", attr.Name)
	assert.Equal(t, "error != 0", attr.Expression)

	attr, err = ParseAttribute("eq=pid == 1")
	require.NoError(t, err)
	assert.Equal(t, "pid == 1", attr.Expression)
}

func TestParseAttributeString_Valid(t *testing.T) {
	attrStr := "foo=bar;baz=args[1];cmd=cmdline"
	attrs, err := ParseAttributeString(attrStr)

	require.NoError(t, err)
	require.Len(t, attrs, 3)
	assert.Equal(t, "foo", attrs[0].Name)
	assert.Equal(t, "bar", attrs[0].Expression)
	assert.Equal(t, "baz", attrs[1].Name)
	assert.Equal(t, "args[1]", attrs[1].Expression)
	assert.Equal(t, "cmd", attrs[2].Name)
	assert.Equal(t, "cmdline", attrs[2].Expression)
}

func TestParseAttributeString_Empty(t *testing.T) {
	attrs, err := ParseAttributeString("")
	require.NoError(t, err)
	assert.Nil(t, attrs)
}

func TestParseAttributeString_InvalidFormat(t *testing.T) {
	_, err := ParseAttributeString("invalid_no_equals")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid attribute format")
}

func TestParseAttributeString_EmptyName(t *testing.T) {
	_, err := ParseAttributeString("=value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name cannot be empty")
}

func TestParseAttributeString_EmptyExpression(t *testing.T) {
	_, err := ParseAttributeString("name=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expression cannot be empty")
}

func TestParseAttributeString_Whitespace(t *testing.T) {
	attrs, err := ParseAttributeString("  foo  =  bar  ;  baz  =  qux  ")

	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "foo", attrs[0].Name)
	assert.Equal(t, "bar", attrs[0].Expression)
	assert.Equal(t, "baz", attrs[1].Name)
	assert.Equal(t, "qux", attrs[1].Expression)
}

func TestParseAttributeString_EmptySections(t *testing.T) {
	attrs, err := ParseAttributeString("foo=bar;;baz=qux;")

	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "foo", attrs[0].Name)
	assert.Equal(t, "baz", attrs[1].Name)
}

func TestOTELConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318/")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "host.role=build, team = infra,broken")

	cfg, err := ParseOTELConfig()
	require.NoError(t, err)
	assert.Equal(t, "execsnoop", cfg.ServiceName)
	assert.Equal(t, "collector:4318", cfg.GetEndpoint())

	attrs := cfg.ParseResourceAttributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "host.role", string(attrs[0].Key))
	assert.Equal(t, "infra", attrs[1].Value.AsString())

	cfg.TracesEndpoint = "traces:4318"
	assert.Equal(t, "traces:4318", cfg.GetEndpoint())

	cfg.TracesEndpoint, cfg.ExporterEndpoint = "", ""
	assert.Equal(t, "localhost:4318", cfg.GetEndpoint())
}
