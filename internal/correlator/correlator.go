package correlator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mrzor/execsnoop/internal/argcapture"
	"github.com/mrzor/execsnoop/internal/pending"
	"github.com/mrzor/execsnoop/internal/record"
)

// FailurePolicy selects what happens to attempts that reach the exit
// notification without a prior success.
type FailurePolicy int

const (
	// FailureEmit finalizes failed attempts with the negated syscall return
	// and emits them.
	FailureEmit FailurePolicy = iota
	// FailureDrop discards failed attempts without emitting anything.
	FailureDrop
)

func (p FailurePolicy) String() string {
	switch p {
	case FailureEmit:
		return "emit"
	case FailureDrop:
		return "drop"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy parses "emit" or "drop".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "emit":
		return FailureEmit, nil
	case "drop":
		return FailureDrop, nil
	default:
		return FailureEmit, fmt.Errorf("unknown failure policy %q (want emit or drop)", s)
	}
}

// Emitter hands finalized records to the export channel. It reports
// whether the record was written.
type Emitter interface {
	Emit(rec *record.Record) bool
}

// Config tunes a Correlator.
type Config struct {
	// MaxArgs is the number of argument strings materialized per attempt,
	// the program path included. Clamped to [1, record.TotalMaxArgs].
	MaxArgs int
	// FailurePolicy decides whether failed attempts are emitted.
	FailurePolicy FailurePolicy
}

// Stats is a snapshot of correlator counters.
type Stats struct {
	Entered          uint64 // attempts opened
	Succeeded        uint64 // attempts finalized by the success notification
	Failed           uint64 // attempts finalized by the exit notification
	Emitted          uint64 // records accepted by the emitter
	NotEmitted       uint64 // finalized records the emitter refused
	FailedDropped    uint64 // failed attempts discarded by FailureDrop
	DroppedDuplicate uint64 // enter notifications for an already pending thread
	DroppedFull      uint64 // enter notifications refused by a full store
	Reaped           uint64 // orphaned attempts removed by the reaper
}

// Correlator pairs enter notifications with their success or exit
// notification and emits one record per attempt.
type Correlator struct {
	store   *pending.Store
	emitter Emitter
	maxArgs int
	policy  FailurePolicy
	now     func() time.Time

	entered          atomic.Uint64
	succeeded        atomic.Uint64
	failed           atomic.Uint64
	emitted          atomic.Uint64
	notEmitted       atomic.Uint64
	failedDropped    atomic.Uint64
	droppedDuplicate atomic.Uint64
	droppedFull      atomic.Uint64
	reaped           atomic.Uint64
}

// New creates a Correlator tracking attempts in store and emitting
// finalized records through emitter.
func New(store *pending.Store, emitter Emitter, cfg Config) *Correlator {
	maxArgs := cfg.MaxArgs
	if maxArgs == 0 {
		maxArgs = record.DefaultMaxArgs
	}
	return &Correlator{
		store:   store,
		emitter: emitter,
		maxArgs: argcapture.Limit(maxArgs),
		policy:  cfg.FailurePolicy,
		now:     time.Now,
	}
}

// OnEnter opens a record for the calling thread and captures the requested
// program and arguments. A thread that already has an attempt pending is
// ignored.
func (c *Correlator) OnEnter(task Task, path, argv uint64) {
	id := task.Identity()

	rec, err := c.store.CreateIfAbsent(id.Tid)
	if err != nil {
		if errors.Is(err, pending.ErrFull) {
			c.droppedFull.Add(1)
		} else {
			c.droppedDuplicate.Add(1)
		}
		return
	}
	c.entered.Add(1)

	rec.Timestamp = task.BootNanos()
	rec.Pid = id.Pid
	rec.Tid = id.Tid
	rec.UID = id.UID
	rec.GID = id.GID
	rec.Ppid = id.Ppid
	rec.SetCwd(task.WorkingDirectory())

	argcapture.Capture(rec, task.Memory(), path, argv, c.maxArgs)
}

// OnSuccess finalizes the attempt entered by oldTid. It fires in the thread
// group leader, which differs from the entering thread when a non-leader
// thread called execve.
func (c *Correlator) OnSuccess(task Task, oldTid uint32) {
	rec, ok := c.store.Take(oldTid)
	if !ok {
		return
	}
	c.succeeded.Add(1)
	c.finalize(rec, task.Identity(), 0)
}

// OnExit handles the syscall exit notification, which fires after every
// attempt in the entering thread. A pending record at this point belongs to
// a failed attempt; ret is the raw syscall return value.
func (c *Correlator) OnExit(task Task, ret int32) {
	id := task.Identity()

	rec, ok := c.store.Take(id.Tid)
	if !ok {
		return
	}
	c.failed.Add(1)

	if c.policy == FailureDrop {
		c.failedDropped.Add(1)
		return
	}
	c.finalize(rec, id, -ret)
}

func (c *Correlator) finalize(rec *record.Record, id Identity, errCode int32) {
	rec.Error = errCode
	rec.Comm = id.Comm
	if id.HasParent {
		rec.Pcomm = id.ParentComm
	}

	if c.emitter.Emit(rec) {
		c.emitted.Add(1)
	} else {
		c.notEmitted.Add(1)
	}
}

// Pending returns the number of attempts awaiting a terminal notification.
func (c *Correlator) Pending() int {
	return c.store.Len()
}

// Reap removes attempts older than ttl.
func (c *Correlator) Reap(ttl time.Duration) int {
	n := c.store.Reap(c.now().Add(-ttl))
	c.reaped.Add(uint64(n))
	return n
}

// RunReaper reaps orphaned attempts every interval until ctx is done.
// Attempts whose terminal notification was lost otherwise stay pending
// forever and eventually fill the store.
func (c *Correlator) RunReaper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Reap(ttl)
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Correlator) Stats() Stats {
	return Stats{
		Entered:          c.entered.Load(),
		Succeeded:        c.succeeded.Load(),
		Failed:           c.failed.Load(),
		Emitted:          c.emitted.Load(),
		NotEmitted:       c.notEmitted.Load(),
		FailedDropped:    c.failedDropped.Load(),
		DroppedDuplicate: c.droppedDuplicate.Load(),
		DroppedFull:      c.droppedFull.Load(),
		Reaped:           c.reaped.Load(),
	}
}
