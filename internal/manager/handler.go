package manager

import (
	"context"
	"errors"
)

// CtrlType enumerates control message kinds handled by handler.
type CtrlType int

const (
	CtrlStart CtrlType = iota
	CtrlStop
	CtrlRestart
	CtrlShutdown
)

func (t CtrlType) String() string {
	switch t {
	case CtrlStart:
		return "start"
	case CtrlStop:
		return "stop"
	case CtrlRestart:
		return "restart"
	case CtrlShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// CtrlMsg is a control-plane message sent to a handler to serialize lifecycle ops.
type CtrlMsg struct {
	Type  CtrlType
	Ctx   context.Context
	Reply chan error
}

// ErrShutdown is returned for operations sent after Shutdown.
var ErrShutdown = errors.New("service manager is shut down")

// handler is the actor for one service id: every start, stop and restart of
// that id runs on its goroutine, one at a time.
type handler struct {
	id   string
	ctrl chan CtrlMsg
	done chan struct{}
	// injected so the handler has no direct Manager dependency
	do func(ctx context.Context, t CtrlType) error
}

func newHandler(id string, do func(context.Context, CtrlType) error) *handler {
	return &handler{
		id:   id,
		ctrl: make(chan CtrlMsg, 16),
		done: make(chan struct{}),
		do:   do,
	}
}

func (h *handler) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.ctrl:
			if msg.Type == CtrlShutdown {
				if msg.Reply != nil {
					msg.Reply <- nil
				}
				return
			}
			// The caller may stop waiting; the operation still runs to completion.
			opCtx := context.Background()
			if msg.Ctx != nil {
				opCtx = context.WithoutCancel(msg.Ctx)
			}
			err := h.do(opCtx, msg.Type)
			if msg.Reply != nil {
				msg.Reply <- err
			}
		}
	}
}

// send queues t and waits for its result or for ctx to end.
func (h *handler) send(ctx context.Context, t CtrlType) error {
	reply := make(chan error, 1)
	select {
	case h.ctrl <- CtrlMsg{Type: t, Ctx: ctx, Reply: reply}:
	case <-h.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		// The actor may have replied just before exiting.
		select {
		case err := <-reply:
			return err
		default:
			return ErrShutdown
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
