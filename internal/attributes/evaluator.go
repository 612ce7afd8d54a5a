package attributes

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/execsnoop/internal/config"
	"github.com/mrzor/execsnoop/internal/log"
	"github.com/mrzor/execsnoop/internal/record"
)

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions for efficiency.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := compile(attr.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// EvaluateCustomAttributes evaluates custom attribute expressions for one exec.
// An expression that fails at runtime is logged and skipped.
func (e *Evaluator) EvaluateCustomAttributes(ev *record.Event) []attribute.KeyValue {
	if len(e.customAttrs) == 0 || ev == nil {
		return nil
	}

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := run(e.compiledExprs[i], ev)
		if err != nil {
			log.Warn("evaluating attribute expression", "attribute", customAttr.Name, "error", err)
			continue
		}

		attrs = append(attrs, toAttributes(customAttr.Name, output)...)
	}

	return attrs
}

// toAttributes converts an expression result. Maps expand into one
// attribute per key, in key order, named name.key.
func toAttributes(name string, output any) []attribute.KeyValue {
	v := reflect.ValueOf(output)
	if v.Kind() != reflect.Map {
		return []attribute.KeyValue{scalar(name, output)}
	}

	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrName := name + "." + sanitizeAttributeName(fmt.Sprint(key.Interface()))
		attrs = append(attrs, scalar(attrName, v.MapIndex(key).Interface()))
	}
	return attrs
}

func scalar(name string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(name, v)
	case int:
		return attribute.Int(name, v)
	case int64:
		return attribute.Int64(name, v)
	case float64:
		return attribute.Float64(name, v)
	case string:
		return attribute.String(name, v)
	case []string:
		return attribute.StringSlice(name, v)
	default:
		return attribute.String(name, fmt.Sprint(value))
	}
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
// This ensures attribute names are safe for OpenTelemetry.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
