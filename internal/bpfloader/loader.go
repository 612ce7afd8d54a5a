// Package bpfloader manages the lifecycle of the forwarder and its kernel attachments.
package bpfloader

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"

	"github.com/mrzor/execsnoop/internal/bpf"
)

// attachment is one tracepoint the forwarder hooks.
type attachment struct {
	group, name string
	prog        func(*bpf.Objects) *ebpf.Program
}

var attachments = []attachment{
	{"syscalls", "sys_enter_execve", func(o *bpf.Objects) *ebpf.Program { return o.EnterExecve }},
	{"syscalls", "sys_enter_execveat", func(o *bpf.Objects) *ebpf.Program { return o.EnterExecveat }},
	{"sched", "sched_process_exec", func(o *bpf.Objects) *ebpf.Program { return o.SchedExec }},
	{"syscalls", "sys_exit_execve", func(o *bpf.Objects) *ebpf.Program { return o.ExitExecve }},
	{"syscalls", "sys_exit_execveat", func(o *bpf.Objects) *ebpf.Program { return o.ExitExecveat }},
}

// Loader manages the lifecycle of BPF programs and their attachments.
type Loader struct {
	objs  bpf.Objects
	links []link.Link
}

// New loads the forwarder object at path into the kernel.
func New(path string, opts bpf.LoadOptions) (*Loader, error) {
	l := &Loader{}

	if err := bpf.Load(path, &l.objs, opts); err != nil {
		return nil, err
	}

	return l, nil
}

// Attach attaches the BPF programs to their tracepoints. On failure every
// link attached so far is released.
func (l *Loader) Attach() error {
	for _, a := range attachments {
		lk, err := link.Tracepoint(a.group, a.name, a.prog(&l.objs), nil)
		if err != nil {
			closeErr := l.closeLinks()
			return errors.Join(fmt.Errorf("attaching %s tracepoint: %w", a.name, err), closeErr)
		}
		l.links = append(l.links, lk)
	}
	return nil
}

// OpenRingBuffer opens and returns a ring buffer reader for receiving notifications.
func (l *Loader) OpenRingBuffer() (*ringbuf.Reader, error) {
	rd, err := ringbuf.NewReader(l.objs.Notifications)
	if err != nil {
		return nil, fmt.Errorf("opening ring buffer: %w", err)
	}
	return rd, nil
}

func (l *Loader) closeLinks() error {
	var errs []error
	// Enter hooks go first so attempts already pending can still complete.
	for i := range l.links {
		if err := l.links[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s link: %w", attachments[i].name, err))
		}
	}
	l.links = nil
	return errors.Join(errs...)
}

// Close releases all BPF resources including links and loaded objects.
func (l *Loader) Close() error {
	var errs []error

	if err := l.closeLinks(); err != nil {
		errs = append(errs, err)
	}

	if err := l.objs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing BPF objects: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}

	return nil
}
