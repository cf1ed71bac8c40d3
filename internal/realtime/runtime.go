package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bhandras/bazaar/internal/actor"
	"github.com/bhandras/bazaar/internal/notify"
	"github.com/bhandras/bazaar/internal/wire"
	"github.com/bhandras/bazaar/pkg/logger"
)

// runtime executes supervisor effects. It never touches State; results go
// back through emit.
type runtime struct {
	dialer    Dialer
	router    *Router
	scheduler Scheduler
	observe   func() Credential
	notifier  notify.Notifier
	toaster   notify.Toaster
	view      ViewContext
	reporter  *Reporter
	now       func() time.Time
	newID     func() string

	mu     sync.Mutex
	sock   Socket
	gen    int64
	timers map[string]Timer
}

var _ actor.Runtime = (*runtime)(nil)

// HandleEffects implements actor.Runtime.
func (r *runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effDial:
			r.dial(e, emit)
		case effCloseHandle:
			r.closeHandle(e.Gen)
		case effReplyHandle:
			r.mu.Lock()
			sock := r.sock
			r.mu.Unlock()
			e.Reply <- sock
		case effStartTimer:
			r.startTimer(ctx, e, emit)
		case effCancelTimer:
			r.cancelTimer(e.Name)
		case effPublishStatus:
			logger.Infof("realtime: %s", e.Status)
			r.reporter.publish(e.Status)
		case effNotify:
			go func() {
				if err := r.notifier.Notify(ctx, e.Title, e.Body); err != nil {
					logger.Warnf("realtime: notify: %v", err)
				}
			}()
		case effToast:
			r.toaster.Toast(e.Kind, e.Title, e.Description)
		case effDone:
			if e.Reply != nil {
				close(e.Reply)
			}
		default:
			logger.Debugf("realtime: unknown effect %T", eff)
		}
	}
}

// Stop implements actor.Runtime.
func (r *runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	if r.sock != nil {
		r.router.Detach()
		r.sock.Disconnect()
		r.sock = nil
	}
}

func (r *runtime) dial(e effDial, emit func(actor.Input)) {
	sock, err := r.dialer.Dial(e.Token)
	if err != nil {
		logger.Warnf("realtime: dial failed: %v", err)
		emit(evDialFailed{Gen: e.Gen, Err: err})
		return
	}

	r.mu.Lock()
	r.sock = sock
	r.gen = e.Gen
	r.mu.Unlock()

	r.router.Attach(sock, r.handlers(e.Gen, emit))
	sock.Connect()
}

func (r *runtime) closeHandle(gen int64) {
	r.mu.Lock()
	sock := r.sock
	if sock == nil || r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.sock = nil
	r.mu.Unlock()

	// Detach first so the close does not feed a disconnect back in.
	r.router.Detach()
	sock.Disconnect()
}

func (r *runtime) startTimer(ctx context.Context, e effStartTimer, emit func(actor.Input)) {
	if e.Name == "" || e.After <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers == nil {
		r.timers = make(map[string]Timer)
	}
	if prev := r.timers[e.Name]; prev != nil {
		prev.Stop()
	}
	r.timers[e.Name] = r.scheduler.AfterFunc(e.After, func() {
		if ctx.Err() != nil {
			return
		}
		emit(evTimerFired{Name: e.Name, Seq: e.Seq, Cred: r.observe()})
	})
}

func (r *runtime) cancelTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.timers[name]; t != nil {
		t.Stop()
	}
	delete(r.timers, name)
}

// handlers builds the router bindings for the handle of generation gen.
// Payloads are normalized here, off the loop, because normalization needs the
// clock and id source.
func (r *runtime) handlers(gen int64, emit func(actor.Input)) Handlers {
	return Handlers{
		wire.EventConnect: func(...any) {
			emit(evConnected{Gen: gen})
		},
		wire.EventConnectError: func(args ...any) {
			reason := describe(args)
			logger.Warnf("realtime: connect error: %s", reason)
			emit(evConnectError{Gen: gen, Reason: reason})
		},
		wire.EventDisconnect: func(args ...any) {
			reason := describe(args)
			logger.Infof("realtime: disconnected: %s", reason)
			emit(evDisconnected{Gen: gen, Reason: reason})
		},
		wire.EventMessageDelivered: func(args ...any) {
			d := wire.NormalizeDelivery(wire.Decode(args))
			if d.MessageID == "" {
				logger.Warnf("realtime: %s without messageId", wire.EventMessageDelivered)
				return
			}
			emit(evDelivered{Gen: gen, Delivery: d})
		},
		wire.EventMessagesRead: func(args ...any) {
			rr := wire.NormalizeReadReceipt(wire.Decode(args))
			if rr.ReadBy == "" {
				logger.Warnf("realtime: %s without readBy", wire.EventMessagesRead)
				return
			}
			emit(evRead{Gen: gen, Receipt: rr})
		},
		wire.EventReceiveMessage: func(args ...any) {
			m := wire.NormalizeMessage(wire.Decode(args), r.now())
			emit(evMessage{Gen: gen, Message: m, Viewing: r.view.IsViewing(m)})
		},
		wire.EventNewNotification: func(args ...any) {
			n := wire.NormalizeNotification(wire.Decode(args), r.now(), r.newID)
			emit(evNotification{Gen: gen, Notification: n})
		},
	}
}

func describe(args []any) string {
	if len(args) == 0 || args[0] == nil {
		return ""
	}
	switch v := args[0].(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}
