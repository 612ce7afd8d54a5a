// Package attributes provides expression evaluation and validation for custom
// attributes, trace IDs, and parent span IDs.
//
// Expressions are evaluated against a completed exec using the expr
// language. The environment exposes:
//
//	args     []string  captured arguments, program path first
//	cmdline  string    args joined by spaces
//	cwd      string
//	comm     string    command name after exec
//	pcomm    string    parent command name
//	pid, tid, ppid, uid, gid, error, argc  int
//	failed   bool
//
// Three evaluators:
//   - Evaluator: Evaluates custom attribute expressions
//   - TraceIDEvaluator: Evaluates and validates trace ID expressions (32 hex chars)
//   - ParentIDEvaluator: Evaluates and validates parent span ID expressions (16 hex chars)
//
// Invalid trace IDs are automatically hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
