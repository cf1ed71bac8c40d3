// Package actor is a small single-goroutine event loop with pure reducers and
// declarative effects.
//
// One goroutine owns the state. A reducer maps (state, input) to the next
// state plus a list of effects, and a Runtime executes those effects and feeds
// observations back into the mailbox as new inputs.
package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned by helpers when the actor has been stopped.
var ErrStopped = errors.New("actor stopped")

// Input is an item delivered to an actor mailbox.
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect produced by a reducer.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition function.
//
// Reducers must not perform I/O, spawn goroutines, read the clock or draw
// random values. Anything non-deterministic is carried in on the input.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs back to the actor.
type Runtime interface {
	// HandleEffects runs on the loop goroutine and must return quickly.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background resources. It may be called more than once.
	Stop()
}

// Hooks provide optional observability into an actor's execution.
type Hooks[S any] struct {
	OnInput      func(input Input)
	OnTransition func(prev, next S, input Input)
	OnEffects    func(effects []Effect)
	// OnDrop is called when an input is rejected because the mailbox is full.
	OnDrop func(input Input)
	// OnPanic is called when the loop panics. If nil, panics propagate.
	OnPanic func(recovered any)
}

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu    sync.Mutex
	state S

	mailbox chan Input
	dropped atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started sync.Once
	stopped sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches hooks for observability.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize sets the mailbox buffer size.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.mailbox = make(chan Input, n)
		}
	}
}

// New creates an actor with initial state, reducer and runtime.
func New[S any](initial S, reduce ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reduce,
		runtime: runtime,
		state:   initial,
		mailbox: make(chan Input, 512),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop. Subsequent calls are no-ops.
func (a *Actor[S]) Start() {
	a.started.Do(func() { go a.loop() })
}

// Stop cancels the loop and stops the runtime. Safe to call repeatedly.
func (a *Actor[S]) Stop() {
	a.stopped.Do(func() {
		a.cancel()
		if a.runtime != nil {
			a.runtime.Stop()
		}
	})
}

// Done closes when the loop goroutine exits.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Context is canceled when the actor stops.
func (a *Actor[S]) Context() context.Context { return a.ctx }

// Dropped reports how many inputs were rejected by a full mailbox.
func (a *Actor[S]) Dropped() int64 { return a.dropped.Load() }

// Enqueue delivers an input without blocking. It returns false when the
// actor is stopped or the mailbox is full.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	if a.ctx.Err() != nil {
		return false
	}
	select {
	case a.mailbox <- input:
		return true
	default:
		a.dropped.Add(1)
		if a.hooks.OnDrop != nil {
			a.hooks.OnDrop(input)
		}
		return false
	}
}

// State returns the last committed state.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Ask enqueues the input built by mk and waits for a value on its reply
// channel. It returns ErrStopped if the actor stops first or the input could
// not be delivered.
func Ask[S, T any](ctx context.Context, a *Actor[S], mk func(reply chan T) Input) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if !a.Enqueue(mk(reply)) {
		return zero, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-a.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic == nil {
				panic(r)
			}
			a.hooks.OnPanic(r)
		}
	}()

	emit := func(in Input) { a.Enqueue(in) }

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.mailbox:
			a.step(in, emit)
		}
	}
}

func (a *Actor[S]) step(in Input, emit func(Input)) {
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	a.mu.Lock()
	prev := a.state
	a.mu.Unlock()

	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, emit)
	}
}

// InputBase can be embedded into input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase can be embedded into effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}
