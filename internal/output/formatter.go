package output

import (
	"errors"
	"fmt"

	"github.com/mrzor/execsnoop/internal/record"
)

// ExecHandler consumes completed exec events.
type ExecHandler interface {
	HandleExec(ev *record.Event) error
}

// Sink decodes exported records and fans them out to handlers.
type Sink struct {
	handlers []ExecHandler
}

// NewSink creates a Sink delivering to handlers in order.
func NewSink(handlers ...ExecHandler) *Sink {
	return &Sink{handlers: handlers}
}

// HandleSample decodes one record. Every handler sees the event even if an
// earlier one fails.
func (s *Sink) HandleSample(raw []byte) error {
	ev, err := record.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding exec record: %w", err)
	}

	var errs []error
	for _, h := range s.handlers {
		if err := h.HandleExec(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
