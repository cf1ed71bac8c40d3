// Package realtime keeps one authenticated socket.io connection alive for the
// signed-in user and applies the inbound chat events to local state.
//
// A Supervisor owns the connection. It dials when a credential appears,
// reconnects with exponential backoff after failures, and binds a single
// handler set through a Router. All state lives on one loop goroutine; see
// Reduce for the transition rules.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bhandras/bazaar/internal/actor"
	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/internal/credential"
	"github.com/bhandras/bazaar/internal/inbox"
	"github.com/bhandras/bazaar/internal/notify"
	"github.com/bhandras/bazaar/internal/wire"
	"github.com/bhandras/bazaar/pkg/logger"
)

// ErrStopped is returned once the supervisor has been stopped.
var ErrStopped = actor.ErrStopped

// ErrLoopPanicked is reported by Err when the loop died from a panic.
var ErrLoopPanicked = errors.New("realtime: supervisor loop panicked")

// Config wires a Supervisor to its collaborators. Credentials and Dialer are
// required; everything else has a default.
type Config struct {
	Credentials credential.Source
	Dialer      Dialer

	Notifier  notify.Notifier
	Toaster   notify.Toaster
	View      ViewContext
	Scheduler Scheduler

	Backoff      BackoffPolicy
	PollInterval time.Duration

	Now   func() time.Time
	NewID func() string

	// Hooks observe the loop, mainly for tests and tracing.
	Hooks actor.Hooks[State]
}

// Supervisor manages the lifecycle of the realtime connection.
type Supervisor struct {
	cfg      Config
	actor    *actor.Actor[State]
	runtime  *runtime
	reporter *Reporter

	mu  sync.Mutex
	err error
}

// NewSupervisor validates cfg and builds a stopped supervisor.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("realtime: credential source is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("realtime: dialer is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	if cfg.Toaster == nil {
		cfg.Toaster = notify.Nop{}
	}
	if cfg.View == nil {
		cfg.View = ViewFunc(func(wire.Message) bool { return false })
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = SystemScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	initial := InitialState(cfg.Backoff, cfg.PollInterval)
	s := &Supervisor{
		cfg:      cfg,
		reporter: NewReporter(initial.Status),
	}
	s.runtime = &runtime{
		dialer:    cfg.Dialer,
		router:    NewRouter(),
		scheduler: cfg.Scheduler,
		observe:   s.credential,
		notifier:  cfg.Notifier,
		toaster:   cfg.Toaster,
		view:      cfg.View,
		reporter:  s.reporter,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}

	hooks := cfg.Hooks
	if hooks.OnDrop == nil {
		hooks.OnDrop = func(in actor.Input) {
			logger.Warnf("realtime: mailbox full, dropped %T", in)
		}
	}
	onPanic := hooks.OnPanic
	hooks.OnPanic = func(rec any) {
		s.mu.Lock()
		s.err = fmt.Errorf("%w: %v", ErrLoopPanicked, rec)
		s.mu.Unlock()
		if onPanic != nil {
			onPanic(rec)
			return
		}
		logger.Errorf("realtime: supervisor loop panicked and stopped: %v", rec)
	}
	if hooks.OnInput == nil && logger.Enabled(logger.LevelTrace) {
		hooks.OnInput = func(in actor.Input) { logger.Tracef("realtime: input %T", in) }
	}

	s.actor = actor.New(initial, Reduce, s.runtime, actor.WithHooks(hooks))
	return s, nil
}

// Start launches the loop and makes the first acquisition attempt. Without a
// credential the supervisor reports not-authenticated and waits for one.
func (s *Supervisor) Start() {
	s.actor.Start()
	s.actor.Enqueue(cmdAcquire{Cred: s.credential()})
}

// Acquire returns the live socket, dialing one if a credential is available
// and none exists. It returns nil when there is no credential or the dial
// failed. Acquire clears a previous Release.
func (s *Supervisor) Acquire(ctx context.Context) (Socket, error) {
	cred := s.credential()
	return actor.Ask(ctx, s.actor, func(reply chan Socket) actor.Input {
		return cmdAcquire{Cred: cred, Reply: reply}
	})
}

// Release closes the current socket, cancels pending reconnection and clears
// local state. The credential that was in use is not picked up again until it
// changes or Acquire is called.
func (s *Supervisor) Release(ctx context.Context) error {
	cred := s.credential()
	_, err := actor.Ask(ctx, s.actor, func(reply chan struct{}) actor.Input {
		return cmdRelease{Cred: cred, Reply: reply}
	})
	return err
}

// CredentialChanged tells the supervisor the stored credential may have
// changed.
func (s *Supervisor) CredentialChanged() {
	s.actor.Enqueue(evCredentialObserved{Cred: s.credential(), Origin: "storage"})
}

// ClearUnread resets the unread counter.
func (s *Supervisor) ClearUnread() {
	s.actor.Enqueue(cmdClearUnread{})
}

// Status returns the current connection status.
func (s *Supervisor) Status() Status {
	return s.actor.State().Status
}

// Subscribe streams status changes; see Reporter.Subscribe.
func (s *Supervisor) Subscribe() (<-chan Status, func()) {
	return s.reporter.Subscribe()
}

// Snapshot returns the current messages, notifications and unread count. The
// returned value is never mutated by the supervisor.
func (s *Supervisor) Snapshot() inbox.State {
	return s.actor.State().Inbox
}

// UserID returns the subject of the credential in use, if known.
func (s *Supervisor) UserID() string {
	return s.actor.State().UserID
}

// Stop closes the socket, cancels timers and halts the loop.
func (s *Supervisor) Stop(ctx context.Context) error {
	_, err := actor.Ask(ctx, s.actor, func(reply chan struct{}) actor.Input {
		return cmdStop{Reply: reply}
	})
	s.actor.Stop()
	if errors.Is(err, ErrStopped) {
		return nil
	}
	return err
}

// Done closes when the loop has exited.
func (s *Supervisor) Done() <-chan struct{} { return s.actor.Done() }

// Err returns why the loop exited on its own, or nil after a clean Stop.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) credential() Credential {
	token := s.cfg.Credentials.Token()
	return Credential{Token: token, UserID: auth.SubjectOf(token)}
}
