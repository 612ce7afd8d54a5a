package eventprocessor

import (
	"fmt"

	"github.com/mrzor/execsnoop/internal/bpf"
	"github.com/mrzor/execsnoop/internal/correlator"
)

// NotificationHandler receives the three execve notifications.
// *correlator.Correlator implements it.
type NotificationHandler interface {
	OnEnter(task correlator.Task, path, argv uint64)
	OnSuccess(task correlator.Task, oldTid uint32)
	OnExit(task correlator.Task, ret int32)
}

// Processor decodes forwarder samples and routes them by notification type.
type Processor struct {
	handler NotificationHandler
}

// NewProcessor creates a new event processor.
func NewProcessor(handler NotificationHandler) *Processor {
	return &Processor{handler: handler}
}

// HandleSample routes one raw ring buffer sample.
func (p *Processor) HandleSample(raw []byte) error {
	n, err := bpf.ParseNotification(raw)
	if err != nil {
		return fmt.Errorf("parsing notification: %w", err)
	}
	p.HandleNotification(n)
	return nil
}

// HandleNotification routes an already decoded notification.
func (p *Processor) HandleNotification(n *bpf.Notification) {
	task := n.Task()

	switch n.Type {
	case bpf.NotifyEnter:
		p.handler.OnEnter(task, n.Enter.Path.Addr, n.Enter.Argv)
	case bpf.NotifySuccess:
		p.handler.OnSuccess(task, n.OldPid)
	case bpf.NotifyExit:
		p.handler.OnExit(task, n.Ret)
	}
}
