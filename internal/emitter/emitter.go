// Package emitter serializes finalized exec records onto the export channel.
package emitter

import (
	"errors"
	"sync/atomic"

	"github.com/mrzor/execsnoop/internal/record"
)

// ErrChannelFull is returned by a Channel that has no room for a record.
var ErrChannelFull = errors.New("export channel full")

// Channel is a bounded, non-blocking sink for serialized records.
type Channel interface {
	Output(sample []byte) error
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Emitted   uint64 // records written to the channel
	Lost      uint64 // records refused because the channel was full
	Oversize  uint64 // records larger than record.MaxRecordSize
	Failed    uint64 // records the channel rejected for other reasons
	BytesSent uint64
}

// Emitter writes records to a Channel. It is safe for concurrent use as long
// as the Channel is.
type Emitter struct {
	ch Channel

	emitted   atomic.Uint64
	lost      atomic.Uint64
	oversize  atomic.Uint64
	failed    atomic.Uint64
	bytesSent atomic.Uint64
}

// New creates an Emitter writing to ch.
func New(ch Channel) *Emitter {
	return &Emitter{ch: ch}
}

// Emit serializes the header and the used part of the argument blob and
// writes them as one sample. Records that do not fit are counted and
// dropped; Emit never blocks.
func (e *Emitter) Emit(rec *record.Record) bool {
	size := rec.Size()
	if size > record.MaxRecordSize {
		e.oversize.Add(1)
		return false
	}

	sample, err := rec.AppendBinary(make([]byte, 0, size))
	if err != nil {
		e.oversize.Add(1)
		return false
	}

	if err := e.ch.Output(sample); err != nil {
		if errors.Is(err, ErrChannelFull) {
			e.lost.Add(1)
		} else {
			e.failed.Add(1)
		}
		return false
	}

	e.emitted.Add(1)
	e.bytesSent.Add(uint64(len(sample)))
	return true
}

// Stats returns a snapshot of the counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted:   e.emitted.Load(),
		Lost:      e.lost.Load(),
		Oversize:  e.oversize.Load(),
		Failed:    e.failed.Load(),
		BytesSent: e.bytesSent.Load(),
	}
}
