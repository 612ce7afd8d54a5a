// Package bpf provides Go bindings for the exec notification forwarder.
//
// The forwarder is a small eBPF object attached to the execve tracepoints.
// It does no correlation of its own: every tracepoint hit becomes one
// notification on the "notifications" ring buffer, and enter notifications
// carry a snapshot of the user memory argument capture needs, since that
// memory is gone by the time userspace sees the notification.
package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"

	"github.com/mrzor/execsnoop/internal/record"
)

// Notification types.
const (
	NotifyEnter   uint32 = 1 // sys_enter_execve, sys_enter_execveat
	NotifySuccess uint32 = 2 // sched_process_exec
	NotifyExit    uint32 = 3 // sys_exit_execve, sys_exit_execveat
)

// ArgvSlots is the number of argv entries the forwarder snapshots: the
// largest materialized count plus the slot peeked for truncation.
const ArgvSlots = record.TotalMaxArgs + 1

// NotificationsMap names the ring buffer notifications are written to.
const NotificationsMap = "notifications"

// Header starts every notification. All notification structs are packed
// and little endian.
type Header struct {
	Type       uint32
	Ret        int32  // syscall return, exit only
	PidTgid    uint64 // tgid << 32 | tid
	UidGid     uint64 //nolint:revive // gid << 32 | uid, as bpf_get_current_uid_gid
	OldPid     uint32 // thread id before exec, success only
	ParentTgid uint32
	BootNs     uint64
	Comm       [record.TaskCommLen]byte
	ParentComm [record.TaskCommLen]byte
	HasParent  uint8
	_          [7]byte
}

// StringRead is the outcome of one bpf_probe_read_user_str call.
type StringRead struct {
	Addr uint64
	Ret  int32 // bytes copied including NUL, or a negative errno
	_    uint32
	Data [record.ArgSize]byte
}

// EnterPayload follows the header of enter notifications.
type EnterPayload struct {
	Path    StringRead
	Argv    uint64
	Ptrs    [ArgvSlots]uint64
	PtrRets [ArgvSlots]int32 // 0 when Ptrs[i] was read, negative errno otherwise
	Args    [ArgvSlots]StringRead
	Cwd     [record.MaxStringSize]byte
}

// Programs are the forwarder's tracepoint programs.
type Programs struct {
	EnterExecve   *ebpf.Program `ebpf:"enter_execve"`
	EnterExecveat *ebpf.Program `ebpf:"enter_execveat"`
	SchedExec     *ebpf.Program `ebpf:"sched_exec"`
	ExitExecve    *ebpf.Program `ebpf:"exit_execve"`
	ExitExecveat  *ebpf.Program `ebpf:"exit_execveat"`
}

// Close releases the programs.
func (p *Programs) Close() error {
	return closeAll(p.EnterExecve, p.EnterExecveat, p.SchedExec, p.ExitExecve, p.ExitExecveat)
}

// Maps are the forwarder's maps.
type Maps struct {
	Notifications *ebpf.Map `ebpf:"notifications"`
}

// Close releases the maps.
func (m *Maps) Close() error {
	return closeAll(m.Notifications)
}

// Objects holds everything loaded from the forwarder object.
type Objects struct {
	Programs
	Maps
}

// Close releases programs and maps.
func (o *Objects) Close() error {
	return errors.Join(o.Programs.Close(), o.Maps.Close())
}

// LoadOptions tune the forwarder before it is loaded.
type LoadOptions struct {
	// RingSize overrides the notification ring size in bytes when non-zero.
	// It must be a power of two multiple of the page size.
	RingSize uint32
}

// Load reads the forwarder object at path and loads it into the kernel.
func Load(path string, objs *Objects, opts LoadOptions) error {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return fmt.Errorf("reading BPF object %s: %w", path, err)
	}

	if opts.RingSize != 0 {
		m, ok := spec.Maps[NotificationsMap]
		if !ok {
			return fmt.Errorf("BPF object %s has no %q map", path, NotificationsMap)
		}
		m.MaxEntries = opts.RingSize
	}

	if err := spec.LoadAndAssign(objs, nil); err != nil {
		return fmt.Errorf("loading BPF objects: %w", err)
	}
	return nil
}

type closer interface {
	Close() error
}

func closeAll(cs ...closer) error {
	var errs []error
	for _, c := range cs {
		switch v := c.(type) {
		case *ebpf.Program:
			if v == nil {
				continue
			}
		case *ebpf.Map:
			if v == nil {
				continue
			}
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
