package bpf

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/mrzor/execsnoop/internal/argcapture"
	"github.com/mrzor/execsnoop/internal/correlator"
)

// Serialized sizes.
var (
	HeaderSize       = binary.Size(Header{})
	EnterPayloadSize = binary.Size(EnterPayload{})
)

// ErrFault is returned for reads outside the snapshotted memory.
var ErrFault = errors.New("address not in snapshot")

// Notification is one decoded forwarder sample.
type Notification struct {
	Header
	Enter *EnterPayload // set for NotifyEnter only
}

// ParseNotification decodes a raw ring buffer sample.
func ParseNotification(raw []byte) (*Notification, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("notification too short: %d bytes", len(raw))
	}

	n := &Notification{}
	if _, err := binary.Decode(raw[:HeaderSize], binary.LittleEndian, &n.Header); err != nil {
		return nil, fmt.Errorf("decoding notification header: %w", err)
	}

	switch n.Type {
	case NotifyEnter:
		body := raw[HeaderSize:]
		if len(body) < EnterPayloadSize {
			return nil, fmt.Errorf("enter notification too short: %d payload bytes, want %d", len(body), EnterPayloadSize)
		}
		n.Enter = &EnterPayload{}
		if _, err := binary.Decode(body[:EnterPayloadSize], binary.LittleEndian, n.Enter); err != nil {
			return nil, fmt.Errorf("decoding enter payload: %w", err)
		}
	case NotifySuccess, NotifyExit:
	default:
		return nil, fmt.Errorf("unknown notification type %d", n.Type)
	}

	return n, nil
}

// AppendBinary appends the wire encoding of n to b.
func (n *Notification) AppendBinary(b []byte) ([]byte, error) {
	b, err := binary.Append(b, binary.LittleEndian, &n.Header)
	if err != nil {
		return b, fmt.Errorf("encoding notification header: %w", err)
	}
	if n.Enter == nil {
		return b, nil
	}
	b, err = binary.Append(b, binary.LittleEndian, n.Enter)
	if err != nil {
		return b, fmt.Errorf("encoding enter payload: %w", err)
	}
	return b, nil
}

// Snapshot serves argument capture reads from an enter payload. Only the
// addresses the forwarder read are mapped.
type Snapshot struct {
	p *EnterPayload
}

var _ argcapture.MemoryReader = Snapshot{}

// ReadPointer returns argv entries captured by the forwarder.
func (s Snapshot) ReadPointer(addr uint64) (uint64, error) {
	if s.p == nil || addr < s.p.Argv || (addr-s.p.Argv)%argcapture.PointerSize != 0 {
		return 0, fmt.Errorf("pointer at %#x: %w", addr, ErrFault)
	}
	i := (addr - s.p.Argv) / argcapture.PointerSize
	if i >= ArgvSlots || s.p.PtrRets[i] != 0 {
		return 0, fmt.Errorf("pointer at %#x: %w", addr, ErrFault)
	}
	return s.p.Ptrs[i], nil
}

// ReadString copies a string the forwarder read at addr.
func (s Snapshot) ReadString(dst []byte, addr uint64) (int, error) {
	if s.p == nil || len(dst) == 0 {
		return 0, fmt.Errorf("string at %#x: %w", addr, ErrFault)
	}

	sr := s.lookup(addr)
	if sr == nil {
		return 0, fmt.Errorf("string at %#x: %w", addr, ErrFault)
	}
	if sr.Ret < 0 {
		return 0, fmt.Errorf("string at %#x: %w", addr, unix.Errno(-sr.Ret))
	}

	n := min(int(sr.Ret), len(sr.Data))
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], sr.Data[:n])
	if n > 0 {
		dst[n-1] = 0
	}
	return n, nil
}

func (s Snapshot) lookup(addr uint64) *StringRead {
	if s.p.Path.Addr == addr {
		return &s.p.Path
	}
	for i := range s.p.Args {
		if s.p.PtrRets[i] != 0 || s.p.Ptrs[i] == 0 {
			break
		}
		if s.p.Args[i].Addr == addr {
			return &s.p.Args[i]
		}
	}
	return nil
}

// NotificationTask presents a notification as the context it fired in.
type NotificationTask struct {
	n *Notification
}

var _ correlator.Task = NotificationTask{}

// Task wraps n.
func (n *Notification) Task() NotificationTask {
	return NotificationTask{n: n}
}

// Identity implements correlator.Task.
func (t NotificationTask) Identity() correlator.Identity {
	h := &t.n.Header
	return correlator.Identity{
		Pid:        uint32(h.PidTgid >> 32),
		Tid:        uint32(h.PidTgid),
		UID:        uint32(h.UidGid),
		GID:        uint32(h.UidGid >> 32),
		Ppid:       h.ParentTgid,
		Comm:       h.Comm,
		ParentComm: h.ParentComm,
		HasParent:  h.HasParent != 0,
	}
}

// WorkingDirectory implements correlator.Task.
func (t NotificationTask) WorkingDirectory() string {
	if t.n.Enter == nil {
		return ""
	}
	return unix.ByteSliceToString(t.n.Enter.Cwd[:])
}

// BootNanos implements correlator.Task.
func (t NotificationTask) BootNanos() uint64 {
	return t.n.BootNs
}

// Memory implements correlator.Task.
func (t NotificationTask) Memory() argcapture.MemoryReader {
	return Snapshot{p: t.n.Enter}
}
