package record

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Event is a decoded completed exec record.
type Event struct {
	Timestamp  uint64
	Comm       string
	ParentComm string
	Pid        uint32
	Tid        uint32
	UID        uint32
	GID        uint32
	Ppid       uint32
	Error      int32
	ArgsCount  int32
	Cwd        string
	Args       []string
	// Truncated is set when more arguments existed than were materialized.
	Truncated bool
}

// Failed reports whether the exec attempt failed.
func (e *Event) Failed() bool {
	return e.Error != 0
}

// CommandLine returns the captured arguments joined by spaces.
func (e *Event) CommandLine() string {
	return strings.Join(e.Args, " ")
}

// Decode parses a serialized record as produced by Record.AppendBinary.
func Decode(raw []byte) (*Event, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("sample too short: %d bytes, header needs %d", len(raw), HeaderSize)
	}

	var h Header
	if _, err := binary.Decode(raw[:HeaderSize], binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	payload := raw[HeaderSize:]
	if h.ArgsSize > FullMaxArgsArr || int(h.ArgsSize) > len(payload) {
		return nil, fmt.Errorf("args size %d exceeds payload of %d bytes", h.ArgsSize, len(payload))
	}

	args := SplitArgs(payload[:h.ArgsSize])

	return &Event{
		Timestamp:  h.Timestamp,
		Comm:       unix.ByteSliceToString(h.Comm[:]),
		ParentComm: unix.ByteSliceToString(h.Pcomm[:]),
		Pid:        h.Pid,
		Tid:        h.Tid,
		UID:        h.UID,
		GID:        h.GID,
		Ppid:       h.Ppid,
		Error:      h.Error,
		ArgsCount:  h.ArgsCount,
		Cwd:        unix.ByteSliceToString(h.Cwd[:]),
		Args:       args,
		Truncated:  int(h.ArgsCount) > len(args),
	}, nil
}

// SplitArgs splits a blob of NUL-terminated strings. Trailing bytes without
// a terminator are ignored.
func SplitArgs(blob []byte) []string {
	args := []string{}
	start := 0
	for i, c := range blob {
		if c == 0 {
			args = append(args, string(blob[start:i]))
			start = i + 1
		}
	}
	return args
}
