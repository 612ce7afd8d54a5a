// Package output turns serialized exec records into output formats.
//
// Sink is the export stream's sample handler: it decodes each record once
// and hands the event to every configured ExecHandler. Formatters are pure
// formatting layers; they never see raw samples and keep no per-attempt
// state.
//
// Data processing is delegated to specialized packages:
//   - record: wire decoding and argument splitting
//   - timesync: boot clock to wall clock conversion
//   - attributes: expression evaluation
package output
