// Package record defines the exec attempt record and its wire layout.
//
// A Record is the mutable, fixed-size structure the correlator fills while an
// execve attempt is pending. Once finalized it is serialized as the fixed
// Header followed by exactly ArgsSize bytes of the argument blob.
package record

import (
	"encoding/binary"
	"fmt"
)

// Size constants matching the kernel-side layout.
const (
	ArgSize        = 128                         // bound for a single argument string, NUL included
	TotalMaxArgs   = 60                          // hard ceiling on materialized arguments
	DefaultMaxArgs = 20                          // default number of materialized arguments
	FullMaxArgsArr = TotalMaxArgs * ArgSize      // argument blob capacity (7680)
	LastArg        = FullMaxArgsArr - ArgSize    // last offset a full-size argument may start at
	TaskCommLen    = 16                          // kernel TASK_COMM_LEN
	MaxStringSize  = 4096                        // working directory field size
	HeaderSize     = 72 + MaxStringSize          // serialized size of Header (4168)
	MaxRecordSize  = HeaderSize + FullMaxArgsArr // largest serialized record (11848)
)

// Header holds the fixed-size fields of an exec record, in wire order.
type Header struct {
	Timestamp uint64 // boot clock nanoseconds at enter
	Comm      [TaskCommLen]byte
	Pid       uint32 // thread group id
	Tid       uint32
	UID       uint32
	GID       uint32
	Pcomm     [TaskCommLen]byte
	Ppid      uint32
	Error     int32 // 0 on success, otherwise the negated syscall return
	ArgsCount int32
	ArgsSize  uint32
	Cwd       [MaxStringSize]byte
}

// Record is one in-flight exec attempt.
type Record struct {
	Header
	Args [FullMaxArgsArr]byte
}

// SetCwd stores path as the working directory, truncating it so the field
// always ends with a NUL byte.
func (r *Record) SetCwd(path string) {
	n := copy(r.Cwd[:MaxStringSize-1], path)
	clear(r.Cwd[n:])
}

// Size returns the serialized length of the record.
func (r *Record) Size() int {
	return HeaderSize + int(r.ArgsSize)
}

// AppendBinary appends the wire encoding of r to b.
func (r *Record) AppendBinary(b []byte) ([]byte, error) {
	if r.ArgsSize > FullMaxArgsArr {
		return b, fmt.Errorf("args size %d exceeds capacity %d", r.ArgsSize, FullMaxArgsArr)
	}

	b, err := binary.Append(b, binary.LittleEndian, &r.Header)
	if err != nil {
		return b, fmt.Errorf("encoding header: %w", err)
	}
	return append(b, r.Args[:r.ArgsSize]...), nil
}
