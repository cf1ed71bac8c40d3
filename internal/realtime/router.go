package realtime

import (
	"sync"

	"github.com/bhandras/bazaar/internal/wire"
	"github.com/bhandras/bazaar/pkg/logger"
)

// Handlers maps event names to callbacks.
type Handlers map[string]func(args ...any)

// Router binds one handler set to at most one socket at a time.
type Router struct {
	mu    sync.Mutex
	bound *binding
}

type binding struct {
	sock   Socket
	events []string
	done   bool
}

// NewRouter returns an unbound router.
func NewRouter() *Router { return &Router{} }

// Attach binds handlers for the inbound event set to sock and returns a
// detach func removing exactly those bindings. Attaching to the socket that is
// already bound is a no-op returning the existing detach. Attaching to a
// different socket first detaches the previous one.
func (r *Router) Attach(sock Socket, handlers Handlers) func() {
	if sock == nil {
		return func() {}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bound != nil && r.bound.sock == sock {
		return r.detachFunc(r.bound)
	}
	if r.bound != nil {
		r.unbindLocked(r.bound)
	}

	b := &binding{sock: sock}
	for _, ev := range wire.InboundEvents {
		h, ok := handlers[ev]
		if !ok || h == nil {
			continue
		}
		sock.On(ev, guard(ev, h))
		b.events = append(b.events, ev)
	}
	r.bound = b
	return r.detachFunc(b)
}

// Detach removes the current binding, if any.
func (r *Router) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound != nil {
		r.unbindLocked(r.bound)
	}
}

// Bound returns the socket handlers are attached to, or nil.
func (r *Router) Bound() Socket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound == nil {
		return nil
	}
	return r.bound.sock
}

func (r *Router) detachFunc(b *binding) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.unbindLocked(b)
	}
}

func (r *Router) unbindLocked(b *binding) {
	if b.done {
		return
	}
	b.done = true
	for _, ev := range b.events {
		b.sock.Off(ev)
	}
	if r.bound == b {
		r.bound = nil
	}
}

// guard keeps a misbehaving handler from taking down the transport goroutine.
func guard(event string, h func(args ...any)) func(args ...any) {
	return func(args ...any) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("realtime: %s handler panicked: %v", event, rec)
			}
		}()
		h(args...)
	}
}
