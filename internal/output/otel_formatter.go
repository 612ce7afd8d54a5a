package output

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"

	"github.com/mrzor/execsnoop/internal/attributes"
	"github.com/mrzor/execsnoop/internal/config"
	tracing "github.com/mrzor/execsnoop/internal/otel"
	"github.com/mrzor/execsnoop/internal/record"
	"github.com/mrzor/execsnoop/internal/timesync"
)

// DefaultSpanMemory is how many processes' exec spans are remembered for
// parenting.
const DefaultSpanMemory = 10240

// OTELOptions configures span contents.
type OTELOptions struct {
	CustomAttributes []config.CustomAttribute
	// TraceID and ParentID are expressions; empty disables them.
	TraceID  string
	ParentID string
	// SpanMemory bounds the pid to span table. Zero selects DefaultSpanMemory.
	SpanMemory int
}

// OTELFormatter formats each completed exec as a "process.exec" span.
//
// An exec whose parent process was itself seen exec'ing becomes a child of
// the parent's span, so process trees show up as traces. Explicit trace-id
// and parent-id expressions take precedence.
type OTELFormatter struct {
	tracer    trace.Tracer
	clock     *timesync.Converter
	attrs     *attributes.Evaluator
	traceIDs  *attributes.TraceIDEvaluator
	parentIDs *attributes.ParentIDEvaluator

	mu       sync.Mutex
	spans    map[uint32]trace.SpanContext // PID -> latest successful exec span
	order    []uint32                     // insertion order for eviction
	maxSpans int
}

// NewOTELFormatter creates a new OTELFormatter.
func NewOTELFormatter(tracer trace.Tracer, clock *timesync.Converter, opts OTELOptions) (*OTELFormatter, error) {
	attrs, err := attributes.NewEvaluator(opts.CustomAttributes)
	if err != nil {
		return nil, err
	}
	traceIDs, err := attributes.NewTraceIDEvaluator(opts.TraceID)
	if err != nil {
		return nil, err
	}
	parentIDs, err := attributes.NewParentIDEvaluator(opts.ParentID)
	if err != nil {
		return nil, err
	}

	maxSpans := opts.SpanMemory
	if maxSpans <= 0 {
		maxSpans = DefaultSpanMemory
	}

	return &OTELFormatter{
		tracer:    tracer,
		clock:     clock,
		attrs:     attrs,
		traceIDs:  traceIDs,
		parentIDs: parentIDs,
		spans:     make(map[uint32]trace.SpanContext),
		maxSpans:  maxSpans,
	}, nil
}

// HandleExec implements ExecHandler.
func (f *OTELFormatter) HandleExec(ev *record.Event) error {
	ctx, warnings := f.spanParent(ev)

	startTime := f.clock.BootToWallClock(ev.Timestamp)
	_, span := f.tracer.Start(ctx, "process.exec",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(startTime),
	)

	span.SetAttributes(
		semconv.ProcessPID(int(ev.Pid)),
		semconv.ProcessParentPID(int(ev.Ppid)),
		semconv.ProcessCommand(ev.Comm),
		semconv.ProcessCommandArgs(ev.Args...),
		attribute.Int("process.thread.id", int(ev.Tid)),
		attribute.Int("process.owner.uid", int(ev.UID)),
		attribute.Int("process.owner.gid", int(ev.GID)),
		attribute.String("process.parent.command", ev.ParentComm),
		attribute.String("process.working_directory", ev.Cwd),
		attribute.Int("process.args_count", int(ev.ArgsCount)),
		attribute.Bool("process.args_truncated", ev.Truncated),
		attribute.Int("process.exec.error", int(ev.Error)),
	)

	if custom := f.attrs.EvaluateCustomAttributes(ev); len(custom) > 0 {
		span.SetAttributes(custom...)
	}
	if len(warnings) > 0 {
		span.SetAttributes(warnings...)
	}

	if ev.Failed() {
		//nolint:gosec // error codes are small positive errno values
		span.SetStatus(codes.Error, unix.Errno(ev.Error).Error())
	} else {
		f.remember(ev.Pid, span.SpanContext())
	}

	span.End(trace.WithTimestamp(startTime))
	return nil
}

// spanParent picks the context a span starts from.
func (f *OTELFormatter) spanParent(ev *record.Event) (context.Context, []attribute.KeyValue) {
	ctx := context.Background()
	var warnings []attribute.KeyValue

	traceID, w, err := f.traceIDs.EvaluateAndValidate(ev)
	if err != nil {
		warnings = append(warnings, attribute.String("_trace_id_error", err.Error()))
	}
	warnings = append(warnings, w...)

	parentID, w, err := f.parentIDs.EvaluateAndValidate(ev)
	if err != nil {
		warnings = append(warnings, attribute.String("_parent_id_error", err.Error()))
	}
	warnings = append(warnings, w...)

	if traceID.IsValid() && parentID.IsValid() {
		return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     parentID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})), warnings
	}

	if parent, ok := f.lookup(ev.Ppid); ok && (!traceID.IsValid() || parent.TraceID() == traceID) {
		return trace.ContextWithSpanContext(ctx, parent), warnings
	}

	if traceID.IsValid() {
		ctx = tracing.ContextWithTraceID(ctx, traceID)
	}
	return ctx, warnings
}

func (f *OTELFormatter) lookup(pid uint32) (trace.SpanContext, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.spans[pid]
	return sc, ok
}

func (f *OTELFormatter) remember(pid uint32, sc trace.SpanContext) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.spans[pid]; !ok {
		f.order = append(f.order, pid)
	}
	f.spans[pid] = sc

	for len(f.spans) > f.maxSpans {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.spans, oldest)
	}
}
