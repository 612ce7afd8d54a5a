package bpf_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/execsnoop/internal/argcapture"
	"github.com/mrzor/execsnoop/internal/bpf"
	"github.com/mrzor/execsnoop/internal/bpf/bpftest"
	"github.com/mrzor/execsnoop/internal/record"
)

var shell = bpftest.Context{
	Pid: 4242, Tid: 4243, UID: 1000, GID: 100, Ppid: 1,
	Comm: "bash", ParentComm: "sshd", BootNs: 99,
}

func TestHeaderSize(t *testing.T) {
	assert.Equal(t, 80, bpf.HeaderSize)
}

func TestParseNotification_Enter(t *testing.T) {
	raw := bpftest.Raw(bpftest.Enter(shell, "/bin/ls", []string{"ls", "-l"}, "/srv"))
	assert.Len(t, raw, bpf.HeaderSize+bpf.EnterPayloadSize)

	n, err := bpf.ParseNotification(raw)
	require.NoError(t, err)
	require.NotNil(t, n.Enter)
	assert.Equal(t, bpf.NotifyEnter, n.Type)

	task := n.Task()
	id := task.Identity()
	assert.Equal(t, uint32(4242), id.Pid)
	assert.Equal(t, uint32(4243), id.Tid)
	assert.Equal(t, uint32(1000), id.UID)
	assert.Equal(t, uint32(100), id.GID)
	assert.Equal(t, uint32(1), id.Ppid)
	assert.True(t, id.HasParent)
	assert.Equal(t, "/srv", task.WorkingDirectory())
	assert.Equal(t, uint64(99), task.BootNanos())
}

func TestParseNotification_Terminal(t *testing.T) {
	n, err := bpf.ParseNotification(bpftest.Raw(bpftest.Success(shell, 4243)))
	require.NoError(t, err)
	assert.Equal(t, bpf.NotifySuccess, n.Type)
	assert.Equal(t, uint32(4243), n.OldPid)
	assert.Nil(t, n.Enter)
	assert.Empty(t, n.Task().WorkingDirectory())

	n, err = bpf.ParseNotification(bpftest.Raw(bpftest.Exit(shell, -13)))
	require.NoError(t, err)
	assert.Equal(t, bpf.NotifyExit, n.Type)
	assert.Equal(t, int32(-13), n.Ret)
}

func TestParseNotification_Errors(t *testing.T) {
	_, err := bpf.ParseNotification(make([]byte, 10))
	assert.ErrorContains(t, err, "too short")

	raw := bpftest.Raw(bpftest.Enter(shell, "/bin/ls", nil, "/"))
	_, err = bpf.ParseNotification(raw[:bpf.HeaderSize+10])
	assert.ErrorContains(t, err, "enter notification too short")

	bad := bpftest.Exit(shell, 0)
	bad.Type = 9
	_, err = bpf.ParseNotification(bpftest.Raw(bad))
	assert.ErrorContains(t, err, "unknown notification type 9")
}

func TestNoParent(t *testing.T) {
	orphan := shell
	orphan.ParentComm = ""
	id := bpftest.Success(orphan, 1).Task().Identity()
	assert.False(t, id.HasParent)
}

func TestSnapshot_CaptureMatchesDirectMemory(t *testing.T) {
	argv := []string{"git", "commit", "-m", strings.Repeat("m", 300)}
	n := bpftest.Enter(shell, "/usr/bin/git", argv, "/repo")

	rec := &record.Record{}
	argcapture.Capture(rec, n.Task().Memory(), n.Enter.Path.Addr, n.Enter.Argv, record.DefaultMaxArgs)

	assert.Equal(t, int32(4), rec.ArgsCount)
	got := record.SplitArgs(rec.Args[:rec.ArgsSize])
	assert.Equal(t, []string{"/usr/bin/git", "commit", "-m", strings.Repeat("m", record.ArgSize-1)}, got)
}

func TestSnapshot_TruncationSentinel(t *testing.T) {
	argv := make([]string, 30)
	for i := range argv {
		argv[i] = "x"
	}
	n := bpftest.Enter(shell, "/bin/x", argv, "/")

	rec := &record.Record{}
	argcapture.Capture(rec, n.Task().Memory(), n.Enter.Path.Addr, n.Enter.Argv, record.DefaultMaxArgs)

	assert.Equal(t, int32(record.DefaultMaxArgs+1), rec.ArgsCount)
}

func TestSnapshot_Faults(t *testing.T) {
	n := bpftest.Enter(shell, "/bin/ls", []string{"ls", "-a"}, "/")
	mem := n.Task().Memory()

	_, err := mem.ReadPointer(n.Enter.Argv + 3)
	assert.ErrorIs(t, err, bpf.ErrFault, "misaligned")

	_, err = mem.ReadPointer(n.Enter.Argv + bpf.ArgvSlots*8)
	assert.ErrorIs(t, err, bpf.ErrFault, "past the snapshot")

	ptr, err := mem.ReadPointer(n.Enter.Argv + 2*8)
	require.NoError(t, err)
	assert.Zero(t, ptr, "argv terminator")

	buf := make([]byte, record.ArgSize)
	_, err = mem.ReadString(buf, 0x1234)
	assert.ErrorIs(t, err, bpf.ErrFault)

	n.Enter.PtrRets[1] = -14
	_, err = mem.ReadPointer(n.Enter.Argv + 8)
	assert.ErrorIs(t, err, bpf.ErrFault)
}

func TestSnapshot_FailedStringRead(t *testing.T) {
	n := bpftest.Enter(shell, "/bin/ls", []string{"ls"}, "/")
	n.Enter.Path.Ret = -14

	_, err := n.Task().Memory().ReadString(make([]byte, record.ArgSize), n.Enter.Path.Addr)
	assert.Error(t, err)
}

func TestSnapshot_ShortDestinationTruncates(t *testing.T) {
	n := bpftest.Enter(shell, "/usr/bin/python3", nil, "/")

	dst := make([]byte, 5)
	got, err := n.Task().Memory().ReadString(dst, n.Enter.Path.Addr)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
	assert.Equal(t, []byte("/usr\x00"), dst)
}

func TestEmptySnapshot(t *testing.T) {
	mem := bpftest.Exit(shell, 0).Task().Memory()

	_, err := mem.ReadPointer(0)
	assert.ErrorIs(t, err, bpf.ErrFault)
	_, err = mem.ReadString(make([]byte, 8), 0)
	assert.ErrorIs(t, err, bpf.ErrFault)
}
