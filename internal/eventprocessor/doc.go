// Package eventprocessor routes forwarder notifications to the correlator.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│    notifications ring buffer            │
//	└─────────────────┬───────────────────────┘
//	                  │ raw samples (eventstream)
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   eventprocessor                        │  ← decode + route
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ enter ─────→ correlator.OnEnter
//	          │                 - opens the pending record
//	          │                 - captures path and argv from the snapshot
//	          │
//	          ├──→ success ───→ correlator.OnSuccess(old tid)
//	          │
//	          └──→ exit ──────→ correlator.OnExit(ret)
//	                                │
//	                                ▼
//	                      emitter → export ring → output
package eventprocessor
