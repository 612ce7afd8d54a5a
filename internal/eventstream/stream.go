// Package eventstream pumps samples from a ring buffer to a handler.
package eventstream

import (
	"context"
	"errors"
	"sync"

	"github.com/cilium/ebpf/ringbuf"

	"github.com/mrzor/execsnoop/internal/log"
)

// Reader yields ring buffer samples. *ringbuf.Reader and *emitter.Ring
// implement it.
type Reader interface {
	Read() (ringbuf.Record, error)
}

// SampleHandler consumes one raw sample.
type SampleHandler interface {
	HandleSample(raw []byte) error
}

// SampleHandlerFunc adapts a function to SampleHandler.
type SampleHandlerFunc func(raw []byte) error

// HandleSample calls f(raw).
func (f SampleHandlerFunc) HandleSample(raw []byte) error {
	return f(raw)
}

// Stream reads samples from a Reader and dispatches them to a handler.
type Stream struct {
	name    string
	reader  Reader
	handler SampleHandler
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New creates a new Stream with the given reader and sample handler. name
// labels log lines.
func New(name string, reader Reader, handler SampleHandler) *Stream {
	return &Stream{
		name:    name,
		reader:  reader,
		handler: handler,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins reading samples in a goroutine.
// It returns immediately and processes samples in the background until
// the context is cancelled, Stop is called or the reader is closed.
func (s *Stream) Start(ctx context.Context) {
	go s.processSamples(ctx)
}

// Stop signals the processing goroutine to stop. A goroutine blocked in
// Read only notices once the reader returns, so callers close the reader
// as well.
func (s *Stream) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

// Done is closed when the processing goroutine has returned.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// processSamples is the main loop that reads and dispatches samples.
func (s *Stream) processSamples(ctx context.Context) {
	defer close(s.done)
	logger := log.With("stream", s.name)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
			record, err := s.reader.Read()
			if err != nil {
				if errors.Is(err, ringbuf.ErrClosed) {
					return
				}
				logger.Warn("reading from ring buffer", "error", err)
				continue
			}

			if err := s.handler.HandleSample(record.RawSample); err != nil {
				logger.Warn("handling sample", "error", err)
			}
		}
	}
}
