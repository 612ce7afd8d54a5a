package attributes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/execsnoop/internal/record"
)

// TraceIDEvaluator handles evaluation and validation of trace ID expressions.
type TraceIDEvaluator struct {
	program *vm.Program
}

// NewTraceIDEvaluator creates a new trace ID evaluator.
// If exprStr is empty, the evaluator returns zero trace IDs and the SDK
// generates random ones.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	if exprStr == "" {
		return &TraceIDEvaluator{}, nil
	}

	program, err := compile(exprStr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile trace-id expression: %w", err)
	}
	return &TraceIDEvaluator{program: program}, nil
}

// EvaluateAndValidate evaluates the trace-id expression and validates the result.
// Returns the trace ID, any warnings to attach to the span, and an error.
// If no expression is configured, returns a zero trace ID (caller should generate random).
func (e *TraceIDEvaluator) EvaluateAndValidate(ev *record.Event) (trace.TraceID, []attribute.KeyValue, error) {
	if e.program == nil {
		return trace.TraceID{}, nil, nil
	}

	output, err := run(e.program, ev)
	if err != nil {
		return trace.TraceID{}, nil, fmt.Errorf("failed to evaluate trace-id expression: %w", err)
	}

	resultStr := fmt.Sprint(output)
	if len(resultStr) == 32 {
		if traceID, err := trace.TraceIDFromHex(resultStr); err == nil {
			return traceID, nil, nil
		}
	}

	// Anything else is hashed so related execs still share a trace.
	hash := sha256.Sum256([]byte(resultStr))
	traceID, err := trace.TraceIDFromHex(hex.EncodeToString(hash[:16]))
	if err != nil {
		return trace.TraceID{}, nil, fmt.Errorf("failed to create trace ID from hash: %w", err)
	}

	warnings := []attribute.KeyValue{
		attribute.String("_trace_id_expr_result", resultStr),
		attribute.String("_trace_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 32-char hex trace ID, used SHA-256 hash instead", resultStr)),
	}
	return traceID, warnings, nil
}

// ParentIDEvaluator handles evaluation and validation of parent span ID expressions.
type ParentIDEvaluator struct {
	program *vm.Program
}

// NewParentIDEvaluator creates a new parent ID evaluator.
// If exprStr is empty, the evaluator will return no parent ID (zero span ID).
func NewParentIDEvaluator(exprStr string) (*ParentIDEvaluator, error) {
	if exprStr == "" {
		return &ParentIDEvaluator{}, nil
	}

	program, err := compile(exprStr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile parent-id expression: %w", err)
	}
	return &ParentIDEvaluator{program: program}, nil
}

// EvaluateAndValidate evaluates the parent-id expression and validates the result.
// If no expression is configured or the result is invalid, returns zero span ID (no parent).
func (e *ParentIDEvaluator) EvaluateAndValidate(ev *record.Event) (trace.SpanID, []attribute.KeyValue, error) {
	if e.program == nil {
		return trace.SpanID{}, nil, nil
	}

	output, err := run(e.program, ev)
	if err != nil {
		return trace.SpanID{}, nil, fmt.Errorf("failed to evaluate parent-id expression: %w", err)
	}

	resultStr := fmt.Sprint(output)
	if len(resultStr) == 16 {
		if spanID, err := trace.SpanIDFromHex(resultStr); err == nil {
			return spanID, nil, nil
		}
	}

	warnings := []attribute.KeyValue{
		attribute.String("_parent_id_expr_result", resultStr),
		attribute.String("_parent_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 16-char hex span ID, using null parent ID instead", resultStr)),
	}
	return trace.SpanID{}, warnings, nil
}
