package realtime

import (
	"time"

	"github.com/bhandras/bazaar/internal/wire"
)

// Socket is the transport surface the supervisor needs from one live
// connection. Implementations invoke handlers on their own goroutines.
type Socket interface {
	// Connect starts the handshake. Handlers must be bound before calling it.
	Connect()
	// Disconnect closes the connection. It must not trigger reconnection.
	Disconnect()
	// On adds a handler for event.
	On(event string, fn func(args ...any))
	// Off removes every handler for event.
	Off(event string)
	// Connected reports whether the transport is currently up.
	Connected() bool
}

// Dialer constructs an unconnected Socket authenticated with token.
type Dialer interface {
	Dial(token string) (Socket, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(token string) (Socket, error)

// Dial implements Dialer.
func (f DialFunc) Dial(token string) (Socket, error) { return f(token) }

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call if it has not started. It reports whether the
	// call was prevented.
	Stop() bool
}

// Scheduler runs fn once after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemScheduler schedules on the wall clock.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// ViewContext tells the supervisor whether the user is currently looking at
// the conversation a message belongs to.
type ViewContext interface {
	IsViewing(m wire.Message) bool
}

// ViewFunc adapts a function to ViewContext.
type ViewFunc func(m wire.Message) bool

// IsViewing implements ViewContext.
func (f ViewFunc) IsViewing(m wire.Message) bool { return f(m) }

// ThreadView reports a message as viewed when it belongs to the conversation
// with Peer.
type ThreadView struct {
	Peer string
}

// IsViewing implements ViewContext.
func (v ThreadView) IsViewing(m wire.Message) bool {
	return v.Peer != "" && (m.SenderID == v.Peer || m.ReceiverID == v.Peer)
}
