package bpfloader

import (
	"testing"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/assert"

	"github.com/mrzor/execsnoop/internal/bpf"
)

func TestAttachments(t *testing.T) {
	objs := &bpf.Objects{Programs: bpf.Programs{
		EnterExecve:   &ebpf.Program{},
		EnterExecveat: &ebpf.Program{},
		SchedExec:     &ebpf.Program{},
		ExitExecve:    &ebpf.Program{},
		ExitExecveat:  &ebpf.Program{},
	}}

	var names []string
	seen := map[*ebpf.Program]bool{}
	for _, a := range attachments {
		names = append(names, a.group+"/"+a.name)
		p := a.prog(objs)
		assert.NotNil(t, p)
		seen[p] = true
	}

	assert.Equal(t, []string{
		"syscalls/sys_enter_execve",
		"syscalls/sys_enter_execveat",
		"sched/sched_process_exec",
		"syscalls/sys_exit_execve",
		"syscalls/sys_exit_execveat",
	}, names)
	assert.Len(t, seen, 5, "every program is attached exactly once")
}

func TestNew_MissingObject(t *testing.T) {
	_, err := New("/nonexistent/execsnoop.bpf.o", bpf.LoadOptions{})
	assert.ErrorContains(t, err, "reading BPF object")
}
