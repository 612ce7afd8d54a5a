// Package correlator turns execve notifications into one record per attempt.
//
// A host delivers three notifications around every execve:
//
//	enter    (entering thread)       → OnEnter(task, path, argv)
//	success  (thread group leader)   → OnSuccess(task, oldTid)
//	exit     (entering thread)       → OnExit(task, ret)
//
// State per thread id:
//
//	┌────────┐  OnEnter   ┌─────────┐  OnSuccess(oldTid)  ┌──────┐
//	│ absent │ ─────────► │ pending │ ──────────────────► │ gone │  emitted, error 0
//	└────────┘            └────┬────┘                     └──────┘
//	                           │ OnExit (entry still present)
//	                           ▼
//	                       ┌──────┐
//	                       │ gone │  emitted with -ret, or dropped (FailureDrop)
//	                       └──────┘
//
// On a successful execve the exit notification still fires, finds nothing
// and does nothing. Success is looked up by the old thread id because the
// kernel moves the thread group leader's identity onto the exec'ing thread.
//
// Handlers never block and never report errors: a full store, a duplicate
// enter or a refused emission are counted in Stats and otherwise ignored.
package correlator
