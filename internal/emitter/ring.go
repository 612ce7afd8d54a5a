package emitter

import (
	"sync"

	"github.com/cilium/ebpf/ringbuf"
)

// DefaultRingSize matches the kernel export ring buffer.
const DefaultRingSize = 256 * 1024

// ringHeaderSize is the per-sample overhead the kernel ring buffer charges.
const ringHeaderSize = 8

// Ring is an in-process export channel with the semantics of a BPF ring
// buffer: writers never block and fail when the buffer is full, a single
// reader consumes samples in order. Its Read method matches
// (*ringbuf.Reader).Read so both can feed the same consumer.
type Ring struct {
	mu       sync.Mutex
	cond     *sync.Cond
	samples  [][]byte
	used     int
	capacity int
	closed   bool
}

// NewRing creates a ring holding at most size bytes of samples.
// A non-positive size selects DefaultRingSize.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	r := &Ring{capacity: size}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func footprint(n int) int {
	return ringHeaderSize + (n+7)&^7
}

// Output copies sample into the ring.
func (r *Ring) Output(sample []byte) error {
	need := footprint(len(sample))

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ringbuf.ErrClosed
	}
	if r.used+need > r.capacity {
		return ErrChannelFull
	}

	r.samples = append(r.samples, append([]byte(nil), sample...))
	r.used += need
	r.cond.Signal()
	return nil
}

// Read blocks until a sample is available. After Close it drains what is
// left and then returns ringbuf.ErrClosed.
func (r *Ring) Read() (ringbuf.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.samples) == 0 {
		if r.closed {
			return ringbuf.Record{}, ringbuf.ErrClosed
		}
		r.cond.Wait()
	}

	sample := r.samples[0]
	r.samples[0] = nil
	r.samples = r.samples[1:]
	r.used -= footprint(len(sample))

	return ringbuf.Record{RawSample: sample}, nil
}

// Len returns the number of unread samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Close wakes blocked readers and rejects further writes.
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
	return nil
}
