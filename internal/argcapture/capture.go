// Package argcapture copies the program path and argument vector of an
// execve attempt into a record's argument blob.
//
// Capture mirrors what a tracepoint handler can afford: a bounded loop, one
// bounded string read per argument, and early exit on the first null
// pointer, unreadable address or overflow. A partially captured argument
// list is a normal outcome.
package argcapture

import (
	"github.com/mrzor/execsnoop/internal/record"
)

// PointerSize is the width of an argv entry.
const PointerSize = 8

// MemoryReader reads the memory of the context that issued execve.
type MemoryReader interface {
	// ReadPointer returns the pointer-sized value stored at addr.
	ReadPointer(addr uint64) (uint64, error)
	// ReadString copies the NUL-terminated string at addr into dst and
	// returns the number of bytes written including the terminator. A
	// string longer than dst is truncated to len(dst)-1 bytes plus NUL.
	ReadString(dst []byte, addr uint64) (int, error)
}

// Limit clamps a configured argument count to what a record can hold.
func Limit(maxArgs int) int {
	if maxArgs < 1 {
		return 1
	}
	if maxArgs > record.TotalMaxArgs {
		return record.TotalMaxArgs
	}
	return maxArgs
}

// Capture fills rec.Args, rec.ArgsCount and rec.ArgsSize from path and the
// argv array at address argv. At most Limit(maxArgs) strings are
// materialized, the path counting as the first one. If argv holds more
// entries than that, ArgsCount is bumped once more without extending the
// blob.
func Capture(rec *record.Record, mem MemoryReader, path, argv uint64, maxArgs int) {
	// The path never aborts capture: an unreadable or oversized path is
	// recorded as an empty string.
	n, err := mem.ReadString(rec.Args[:record.ArgSize], path)
	if err == nil && n > 0 && n <= record.ArgSize {
		rec.ArgsSize += uint32(n)
	} else {
		rec.Args[0] = 0
		rec.ArgsSize++
	}
	rec.ArgsCount++

	limit := Limit(maxArgs)
	for i := 1; i < limit; i++ {
		argp, err := mem.ReadPointer(argv + uint64(i)*PointerSize)
		if err != nil || argp == 0 {
			return
		}

		if rec.ArgsSize > record.LastArg {
			return
		}

		off := rec.ArgsSize
		n, err := mem.ReadString(rec.Args[off:off+record.ArgSize], argp)
		if err != nil || n <= 0 || n > record.ArgSize {
			return
		}

		rec.ArgsCount++
		rec.ArgsSize += uint32(n)
	}

	// Peek one slot further to flag arguments we did not materialize.
	argp, err := mem.ReadPointer(argv + uint64(limit)*PointerSize)
	if err != nil || argp == 0 {
		return
	}
	rec.ArgsCount++
}
