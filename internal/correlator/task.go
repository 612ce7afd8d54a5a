package correlator

import (
	"github.com/mrzor/execsnoop/internal/argcapture"
	"github.com/mrzor/execsnoop/internal/record"
)

// Identity describes the execution context a notification fires in.
type Identity struct {
	Pid        uint32 // thread group id
	Tid        uint32
	UID        uint32
	GID        uint32
	Ppid       uint32 // real parent thread group id
	Comm       [record.TaskCommLen]byte
	ParentComm [record.TaskCommLen]byte
	HasParent  bool
}

// Task is the host's view of the context delivering a notification.
type Task interface {
	Identity() Identity
	// WorkingDirectory resolves the task's current directory.
	WorkingDirectory() string
	// BootNanos is the boot clock time of the notification.
	BootNanos() uint64
	// Memory reads the user memory of the task.
	Memory() argcapture.MemoryReader
}
