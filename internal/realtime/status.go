package realtime

import "sync"

// Status is the connection state shown to users.
type Status string

const (
	// StatusNotAuthenticated means no credential is available.
	StatusNotAuthenticated Status = "not-authenticated"
	// StatusNoSocket means a credential exists but no connection could be
	// constructed.
	StatusNoSocket Status = "no-socket"
	// StatusConnecting means a connection is being established.
	StatusConnecting Status = "connecting"
	// StatusConnected means the transport is up.
	StatusConnected Status = "connected"
	// StatusDisconnected means the transport dropped and a reconnect is
	// scheduled.
	StatusDisconnected Status = "disconnected"
	// StatusError means the last connection attempt failed.
	StatusError Status = "error"
)

// Label returns display text for the status.
func (s Status) Label() string {
	switch s {
	case StatusNotAuthenticated:
		return "Not signed in"
	case StatusNoSocket:
		return "Offline"
	case StatusConnecting:
		return "Connecting…"
	case StatusConnected:
		return "Online"
	case StatusDisconnected:
		return "Reconnecting…"
	case StatusError:
		return "Connection error"
	default:
		return string(s)
	}
}

// Reporter fans status changes out to subscribers. Slow subscribers miss
// intermediate values but always observe the latest one eventually published
// after they catch up.
type Reporter struct {
	mu      sync.Mutex
	current Status
	subs    map[int]chan Status
	nextID  int
}

// NewReporter starts at initial.
func NewReporter(initial Status) *Reporter {
	return &Reporter{current: initial, subs: make(map[int]chan Status)}
}

// Current returns the last published status.
func (r *Reporter) Current() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Subscribe returns a channel that immediately yields the current status and
// then every change, plus a cancel func that closes the channel.
func (r *Reporter) Subscribe() (<-chan Status, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	ch := make(chan Status, 16)
	ch <- r.current
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}

func (r *Reporter) publish(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = s
	for _, ch := range r.subs {
		select {
		case ch <- s:
		default:
			// Full: replace the oldest pending value so the latest wins.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
