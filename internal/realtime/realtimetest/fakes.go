// Package realtimetest provides deterministic transport and timer fakes for
// exercising the realtime supervisor without a network or wall clock.
package realtimetest

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bhandras/bazaar/internal/realtime"
)

// FakeSocket records bindings and lets tests fire inbound events.
type FakeSocket struct {
	Token string

	mu          sync.Mutex
	handlers    map[string][]func(args ...any)
	connects    int
	disconnects int
	connected   bool
}

var _ realtime.Socket = (*FakeSocket)(nil)

// NewFakeSocket returns an unconnected socket.
func NewFakeSocket(token string) *FakeSocket {
	return &FakeSocket{Token: token, handlers: make(map[string][]func(args ...any))}
}

// Connect implements realtime.Socket.
func (s *FakeSocket) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
}

// Disconnect implements realtime.Socket.
func (s *FakeSocket) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.connected = false
}

// On implements realtime.Socket.
func (s *FakeSocket) On(event string, fn func(args ...any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
}

// Off implements realtime.Socket.
func (s *FakeSocket) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Connected implements realtime.Socket.
func (s *FakeSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Fire invokes every handler bound to event, synchronously. It reports
// whether any handler was bound.
func (s *FakeSocket) Fire(event string, args ...any) bool {
	s.mu.Lock()
	if event == "connect" {
		s.connected = true
	}
	hs := append([]func(args ...any){}, s.handlers[event]...)
	s.mu.Unlock()

	for _, h := range hs {
		h(args...)
	}
	return len(hs) > 0
}

// HandlerCount returns the number of handlers bound to event.
func (s *FakeSocket) HandlerCount(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers[event])
}

// Bound returns the number of events with at least one handler.
func (s *FakeSocket) Bound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Connects returns how many times Connect was called.
func (s *FakeSocket) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Disconnects returns how many times Disconnect was called.
func (s *FakeSocket) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// ErrDialRefused is returned by FakeDialer when configured to fail.
var ErrDialRefused = errors.New("dial refused")

// FakeDialer hands out FakeSockets and remembers them.
type FakeDialer struct {
	mu      sync.Mutex
	sockets []*FakeSocket
	fail    int
}

var _ realtime.Dialer = (*FakeDialer)(nil)

// FailNext makes the next n dials return ErrDialRefused.
func (d *FakeDialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = n
}

// Dial implements realtime.Dialer.
func (d *FakeDialer) Dial(token string) (realtime.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail > 0 {
		d.fail--
		return nil, ErrDialRefused
	}
	s := NewFakeSocket(token)
	d.sockets = append(d.sockets, s)
	return s, nil
}

// Sockets returns every socket dialed so far.
func (d *FakeDialer) Sockets() []*FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSocket(nil), d.sockets...)
}

// Last returns the most recently dialed socket, or nil.
func (d *FakeDialer) Last() *FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// FakeScheduler runs timers only when the test advances its clock.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers map[int]*fakeTimer
}

var _ realtime.Scheduler = (*FakeScheduler)(nil)

type fakeTimer struct {
	s  *FakeScheduler
	id int
	at time.Duration
	fn func()
}

// NewFakeScheduler returns a scheduler at virtual time zero.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{timers: make(map[int]*fakeTimer)}
}

// AfterFunc implements realtime.Scheduler.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) realtime.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &fakeTimer{s: s, id: s.nextID, at: s.now + d, fn: fn}
	s.timers[t.id] = t
	return t
}

// Stop implements realtime.Timer.
func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.timers[t.id]; !ok {
		return false
	}
	delete(t.s.timers, t.id)
	return true
}

// Advance moves virtual time forward by d and runs due timers in deadline
// order on the calling goroutine.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due []*fakeTimer
		for _, t := range s.timers {
			if t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at == due[j].at {
				return due[i].id < due[j].id
			}
			return due[i].at < due[j].at
		})
		next := due[0]
		delete(s.timers, next.id)
		s.now = next.at
		s.mu.Unlock()

		next.fn()
	}
}

// Pending returns the remaining delays of armed timers, shortest first.
func (s *FakeScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.at-s.now)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Credential is a mutable credential.Source.
type Credential struct {
	mu    sync.Mutex
	token string
}

// Set replaces the token.
func (c *Credential) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token implements credential.Source.
func (c *Credential) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}
