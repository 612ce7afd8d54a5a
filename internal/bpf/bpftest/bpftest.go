// Package bpftest builds forwarder notifications the way the kernel side
// fills them, for tests that have no kernel.
package bpftest

import (
	"github.com/mrzor/execsnoop/internal/bpf"
	"github.com/mrzor/execsnoop/internal/record"
)

const (
	pathAddr   = 0x7ffd0000
	argvAddr   = 0x7ffe0000
	stringBase = 0x7fff0000
	stride     = 0x100
)

// Context identifies the thread a notification fires in.
type Context struct {
	Pid, Tid   uint32
	UID, GID   uint32
	Ppid       uint32
	Comm       string
	ParentComm string // empty means no parent
	BootNs     uint64
}

func (c Context) header(typ uint32) bpf.Header {
	h := bpf.Header{
		Type:       typ,
		PidTgid:    uint64(c.Pid)<<32 | uint64(c.Tid),
		UidGid:     uint64(c.GID)<<32 | uint64(c.UID),
		ParentTgid: c.Ppid,
		BootNs:     c.BootNs,
	}
	copy(h.Comm[:record.TaskCommLen-1], c.Comm)
	if c.ParentComm != "" {
		copy(h.ParentComm[:record.TaskCommLen-1], c.ParentComm)
		h.HasParent = 1
	}
	return h
}

// Enter builds the enter notification for execve(path, argv) issued from
// cwd.
func Enter(c Context, path string, argv []string, cwd string) *bpf.Notification {
	p := &bpf.EnterPayload{Argv: argvAddr}
	p.Path = read(pathAddr, path)
	for i := 0; i < bpf.ArgvSlots && i < len(argv); i++ {
		addr := uint64(stringBase + i*stride)
		p.Ptrs[i] = addr
		p.Args[i] = read(addr, argv[i])
	}
	copy(p.Cwd[:record.MaxStringSize-1], cwd)

	return &bpf.Notification{Header: c.header(bpf.NotifyEnter), Enter: p}
}

// Success builds the sched_process_exec notification for a thread that
// entered execve as oldTid.
func Success(c Context, oldTid uint32) *bpf.Notification {
	h := c.header(bpf.NotifySuccess)
	h.OldPid = oldTid
	return &bpf.Notification{Header: h}
}

// Exit builds the syscall exit notification.
func Exit(c Context, ret int32) *bpf.Notification {
	h := c.header(bpf.NotifyExit)
	h.Ret = ret
	return &bpf.Notification{Header: h}
}

// Raw serializes n as the forwarder writes it.
func Raw(n *bpf.Notification) []byte {
	b, err := n.AppendBinary(nil)
	if err != nil {
		panic(err)
	}
	return b
}

func read(addr uint64, s string) bpf.StringRead {
	sr := bpf.StringRead{Addr: addr}
	n := copy(sr.Data[:record.ArgSize-1], s)
	sr.Ret = int32(n + 1)
	return sr
}
