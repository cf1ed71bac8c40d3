package realtime

import (
	"time"

	"github.com/bhandras/bazaar/internal/actor"
	"github.com/bhandras/bazaar/internal/inbox"
	"github.com/bhandras/bazaar/internal/notify"
	"github.com/bhandras/bazaar/internal/wire"
)

const (
	reconnectTimer = "reconnect"
	pollTimer      = "credential-poll"
)

// Credential is a token snapshot taken outside the loop.
type Credential struct {
	Token string
	// UserID is the token subject, empty for opaque tokens.
	UserID string
}

// State is owned by the supervisor loop.
type State struct {
	Status Status

	// Gen is the generation of the most recent handle. Live is true while
	// that handle exists; events tagged with any other generation are stale.
	Gen  int64
	Live bool

	// Connected is true between connect and the next failure.
	Connected bool

	// Token and UserID describe the credential of the most recent handle.
	Token  string
	UserID string

	// Failures counts consecutive failed attempts since the last connect.
	Failures int
	Backoff  BackoffPolicy

	// TimerSeq numbers armed timers. ReconnectSeq/PollSeq hold the sequence of
	// the armed timer, or 0 when none is armed.
	TimerSeq     int64
	ReconnectSeq int64
	PollSeq      int64
	PollInterval time.Duration

	// Released is set by an explicit release. ReleasedToken is not reused
	// until an explicit acquire.
	Released      bool
	ReleasedToken string

	Stopped bool

	Inbox inbox.State
}

func (s State) reconnectArmed() bool { return s.ReconnectSeq != 0 }
func (s State) polling() bool        { return s.PollSeq != 0 }

// Commands.

type cmdAcquire struct {
	actor.InputBase
	Cred  Credential
	Reply chan Socket
}

type cmdRelease struct {
	actor.InputBase
	Cred  Credential
	Reply chan struct{}
}

type cmdStop struct {
	actor.InputBase
	Reply chan struct{}
}

type cmdClearUnread struct {
	actor.InputBase
}

// Events.

// evCredentialObserved is fed by storage-change notifications and by the
// poll timer.
type evCredentialObserved struct {
	actor.InputBase
	Cred   Credential
	Origin string
}

type evTimerFired struct {
	actor.InputBase
	Name string
	Seq  int64
	Cred Credential
}

type evDialFailed struct {
	actor.InputBase
	Gen int64
	Err error
}

type evConnected struct {
	actor.InputBase
	Gen int64
}

type evConnectError struct {
	actor.InputBase
	Gen    int64
	Reason string
}

type evDisconnected struct {
	actor.InputBase
	Gen    int64
	Reason string
}

type evDelivered struct {
	actor.InputBase
	Gen      int64
	Delivery wire.Delivery
}

type evRead struct {
	actor.InputBase
	Gen     int64
	Receipt wire.ReadReceipt
}

type evMessage struct {
	actor.InputBase
	Gen     int64
	Message wire.Message
	Viewing bool
}

type evNotification struct {
	actor.InputBase
	Gen          int64
	Notification wire.Notification
}

// Effects.

type effDial struct {
	actor.EffectBase
	Gen   int64
	Token string
}

type effCloseHandle struct {
	actor.EffectBase
	Gen int64
}

type effReplyHandle struct {
	actor.EffectBase
	Reply chan Socket
}

type effStartTimer struct {
	actor.EffectBase
	Name  string
	Seq   int64
	After time.Duration
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

type effPublishStatus struct {
	actor.EffectBase
	Status Status
}

type effNotify struct {
	actor.EffectBase
	Title string
	Body  string
}

type effToast struct {
	actor.EffectBase
	Kind        notify.Kind
	Title       string
	Description string
}

type effDone struct {
	actor.EffectBase
	Reply chan struct{}
}
