package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/internal/notify"
	"github.com/bhandras/bazaar/internal/realtime"
	"github.com/bhandras/bazaar/internal/realtime/realtimetest"
	"github.com/bhandras/bazaar/internal/wire"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu     sync.Mutex
	notes  []string
	toasts []string
}

func (r *recorder) Notify(_ context.Context, _, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, body)
	return nil
}

func (r *recorder) Toast(_ notify.Kind, _, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, description)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes), len(r.toasts)
}

type harness struct {
	t     *testing.T
	cred  *realtimetest.Credential
	dial  *realtimetest.FakeDialer
	sched *realtimetest.FakeScheduler
	rec   *recorder
	sup   *realtime.Supervisor
}

func newHarness(t *testing.T, view realtime.ViewContext) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		cred:  &realtimetest.Credential{},
		dial:  &realtimetest.FakeDialer{},
		sched: realtimetest.NewFakeScheduler(),
		rec:   &recorder{},
	}
	sup, err := realtime.NewSupervisor(realtime.Config{
		Credentials: h.cred,
		Dialer:      h.dial,
		Notifier:    h.rec,
		Toaster:     h.rec,
		View:        view,
		Scheduler:   h.sched,
		NewID:       func() string { return "generated-id" },
	})
	require.NoError(t, err)
	h.sup = sup
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = sup.Stop(ctx)
	})
	return h
}

func mintToken(t *testing.T, user string) string {
	t.Helper()
	m, err := auth.NewJWTManager("test-secret")
	require.NoError(t, err)
	token, err := m.CreateToken(user, "", time.Hour)
	require.NoError(t, err)
	return token
}

func (h *harness) waitSockets(n int) *realtimetest.FakeSocket {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.dial.Sockets()) >= n }, waitFor, time.Millisecond)
	return h.dial.Sockets()[n-1]
}

func (h *harness) waitStatus(want realtime.Status) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.sup.Status() == want }, waitFor, time.Millisecond,
		"status=%s want=%s", h.sup.Status(), want)
}

func (h *harness) waitPending(want ...time.Duration) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		got := h.sched.Pending()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}, waitFor, time.Millisecond, "pending=%v want=%v", h.sched.Pending(), want)
}

func TestSupervisor_WaitsForCredentialThenConnects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.sup.Start()

	h.waitStatus(realtime.StatusNotAuthenticated)
	h.waitPending(realtime.DefaultCredentialPoll)
	require.Empty(t, h.dial.Sockets())

	sock, err := h.sup.Acquire(context.Background())
	require.NoError(t, err)
	require.Nil(t, sock)

	h.cred.Set(mintToken(t, "bob"))
	h.sched.Advance(realtime.DefaultCredentialPoll)

	first := h.waitSockets(1)
	h.waitStatus(realtime.StatusConnecting)
	require.Equal(t, 1, first.Connects())
	// The poll is cancelled once a handle exists.
	h.waitPending()

	first.Fire(wire.EventConnect)
	h.waitStatus(realtime.StatusConnected)
	require.Equal(t, "bob", h.sup.UserID())

	// Acquire while bound returns the same handle without dialing.
	got, err := h.sup.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, realtime.Socket(first), got)
	require.Len(t, h.dial.Sockets(), 1)
}

func TestSupervisor_StorageChangeTriggersAcquire(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.sup.Start()
	h.waitStatus(realtime.StatusNotAuthenticated)

	h.cred.Set(mintToken(t, "bob"))
	h.sup.CredentialChanged()
	h.sup.CredentialChanged()

	h.waitSockets(1)
	h.waitStatus(realtime.StatusConnecting)
	require.Len(t, h.dial.Sockets(), 1)
}

func TestSupervisor_FailTwiceThenConnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "bob"))

	statuses, cancel := h.sup.Subscribe()
	defer cancel()

	h.sup.Start()
	first := h.waitSockets(1)
	h.waitStatus(realtime.StatusConnecting)

	first.Fire(wire.EventConnectError, "xhr poll error")
	h.waitStatus(realtime.StatusError)
	h.waitPending(900 * time.Millisecond)
	require.Zero(t, first.Bound())
	require.Equal(t, 1, first.Disconnects())

	h.sched.Advance(900 * time.Millisecond)
	second := h.waitSockets(2)
	h.waitStatus(realtime.StatusConnecting)

	second.Fire(wire.EventConnectError, "xhr poll error")
	h.waitStatus(realtime.StatusError)
	h.waitPending(1620 * time.Millisecond)

	h.sched.Advance(1620 * time.Millisecond)
	third := h.waitSockets(3)
	h.waitStatus(realtime.StatusConnecting)
	third.Fire(wire.EventConnect)
	h.waitStatus(realtime.StatusConnected)
	h.waitPending()

	var seen []realtime.Status
	require.Eventually(t, func() bool {
		for {
			select {
			case s := <-statuses:
				seen = append(seen, s)
			default:
				return len(seen) >= 7
			}
		}
	}, waitFor, time.Millisecond)
	require.Equal(t, []realtime.Status{
		realtime.StatusNoSocket,
		realtime.StatusConnecting, realtime.StatusError,
		realtime.StatusConnecting, realtime.StatusError,
		realtime.StatusConnecting, realtime.StatusConnected,
	}, seen)

	// Late events from a discarded handle change nothing.
	first.Fire(wire.EventDisconnect, "transport close")
	require.False(t, first.Fire(wire.EventDisconnect))
	require.Equal(t, realtime.StatusConnected, h.sup.Status())
}

// A server that keeps refusing the token answers each handshake with
// connect_error; the client backs off further on every refusal.
func TestSupervisor_RejectedTokenBacksOffFurther(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "bob"))
	h.sup.Start()

	rejected := errors.New("invalid authentication token")
	for i, delay := range []time.Duration{
		900 * time.Millisecond,
		1620 * time.Millisecond,
		2916 * time.Millisecond,
	} {
		sock := h.waitSockets(i + 1)
		h.waitStatus(realtime.StatusConnecting)
		sock.Fire(wire.EventConnectError, rejected)
		h.waitStatus(realtime.StatusError)
		h.waitPending(delay)
		h.sched.Advance(delay)
	}
	h.waitSockets(4)
}

func TestSupervisor_ReleaseCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "bob"))
	h.sup.Start()

	first := h.waitSockets(1)
	first.Fire(wire.EventConnect)
	h.waitStatus(realtime.StatusConnected)

	first.Fire(wire.EventDisconnect, "transport close")
	h.waitStatus(realtime.StatusDisconnected)
	h.waitPending(900 * time.Millisecond)

	require.NoError(t, h.sup.Release(context.Background()))
	require.Equal(t, realtime.StatusNotAuthenticated, h.sup.Status())
	// Only the credential poll remains.
	h.waitPending(realtime.DefaultCredentialPoll)

	// Well past the original reconnect delay, with the old token still
	// stored: no new handle.
	for i := 0; i < 10; i++ {
		h.sched.Advance(realtime.DefaultCredentialPoll)
		h.waitPending(realtime.DefaultCredentialPoll)
	}
	require.Len(t, h.dial.Sockets(), 1)

	// An explicit acquire resumes.
	sock, err := h.sup.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sock)
	require.Len(t, h.dial.Sockets(), 2)
}

func TestSupervisor_LogoutWhileConnectedDisconnects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "alice"))
	h.sup.Start()

	sock := h.waitSockets(1)
	sock.Fire(wire.EventConnect)
	h.waitStatus(realtime.StatusConnected)

	h.cred.Set("")
	h.sup.CredentialChanged()

	h.waitStatus(realtime.StatusNotAuthenticated)
	require.Eventually(t, func() bool { return sock.Disconnects() == 1 }, waitFor, time.Millisecond)
	require.Zero(t, sock.Bound())
	require.Empty(t, h.sup.UserID())
	h.waitPending(realtime.DefaultCredentialPoll)

	// Polling keeps finding nothing and never redials.
	for i := 0; i < 5; i++ {
		h.sched.Advance(realtime.DefaultCredentialPoll)
		h.waitPending(realtime.DefaultCredentialPoll)
	}
	require.Len(t, h.dial.Sockets(), 1)
}

func TestSupervisor_LoginAsAnotherUserReplacesSocket(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "alice"))
	h.sup.Start()

	first := h.waitSockets(1)
	first.Fire(wire.EventConnect)
	h.waitStatus(realtime.StatusConnected)

	bobToken := mintToken(t, "bob")
	h.cred.Set(bobToken)
	h.sup.CredentialChanged()

	second := h.waitSockets(2)
	require.Equal(t, bobToken, second.Token)
	h.waitStatus(realtime.StatusConnecting)
	require.Equal(t, 1, first.Disconnects())
	require.Zero(t, first.Bound())
	require.Equal(t, "bob", h.sup.UserID())

	second.Fire(wire.EventConnect)
	h.waitStatus(realtime.StatusConnected)
	require.Len(t, h.dial.Sockets(), 2)
}

func TestSupervisor_CredentialChangedDuringBackoffRedialsNow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "bob"))
	h.sup.Start()

	first := h.waitSockets(1)
	first.Fire(wire.EventConnectError, "xhr poll error")
	h.waitStatus(realtime.StatusError)
	h.waitPending(900 * time.Millisecond)

	h.sup.CredentialChanged()
	h.waitSockets(2)
	h.waitStatus(realtime.StatusConnecting)
	h.waitPending()

	// The cancelled timer's deadline passing dials nothing more.
	h.sched.Advance(time.Second)
	require.Len(t, h.dial.Sockets(), 2)
}

func TestSupervisor_DialFailureReportsNoSocket(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "bob"))
	h.dial.FailNext(1)

	h.sup.Start()
	h.waitPending(900 * time.Millisecond)
	require.Equal(t, realtime.StatusNoSocket, h.sup.Status())
	require.Empty(t, h.dial.Sockets())

	h.sched.Advance(900 * time.Millisecond)
	h.waitSockets(1)
	h.waitStatus(realtime.StatusConnecting)
}

func TestSupervisor_ReconcilesInboundEvents(t *testing.T) {
	t.Parallel()

	h := newHarness(t, realtime.ThreadView{Peer: "carol"})
	h.cred.Set(mintToken(t, "bob"))
	h.sup.Start()

	sock := h.waitSockets(1)
	sock.Fire(wire.EventConnect)
	h.waitStatus(realtime.StatusConnected)

	sock.Fire(wire.EventReceiveMessage, map[string]any{
		"_id":      "m1",
		"text":     "still for sale?",
		"sender":   map[string]any{"_id": "alice"},
		"receiver": "bob",
	})
	sock.Fire(wire.EventReceiveMessage, map[string]any{
		"_id":      "m2",
		"text":     "hi",
		"senderId": "carol",
	})
	sock.Fire(wire.EventMessageDelivered, map[string]any{"messageId": "m1"})
	sock.Fire(wire.EventMessagesRead, map[string]any{"readBy": "alice"})
	sock.Fire(wire.EventMessageDelivered, map[string]any{})
	sock.Fire(wire.EventNewNotification, map[string]any{"userId": "bob"})
	sock.Fire(wire.EventNewNotification, "garbage")

	require.Eventually(t, func() bool {
		return len(h.sup.Snapshot().Notifications) == 2
	}, waitFor, time.Millisecond)

	snap := h.sup.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "alice", snap.Messages[0].SenderID)
	require.True(t, snap.Messages[0].IsDelivered)
	require.Nil(t, snap.Messages[0].DeliveredAt)
	require.True(t, snap.Messages[0].IsRead)
	require.False(t, snap.Messages[1].IsRead)

	// Only alice's message counts: carol's thread is on screen.
	require.Equal(t, 1, snap.Unread)

	n := snap.Notifications[0]
	require.Equal(t, wire.DefaultNotificationText, n.Text)
	require.Equal(t, "generated-id", n.ID)
	require.False(t, n.Read)

	require.Eventually(t, func() bool {
		notes, toasts := h.rec.counts()
		return notes == 1 && toasts == 2
	}, waitFor, time.Millisecond)

	h.sup.ClearUnread()
	require.Eventually(t, func() bool { return h.sup.Snapshot().Unread == 0 }, waitFor, time.Millisecond)
}

func TestSupervisor_StopIsFinal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cred.Set(mintToken(t, "bob"))
	h.sup.Start()
	sock := h.waitSockets(1)

	require.NoError(t, h.sup.Stop(context.Background()))
	require.Equal(t, 1, sock.Disconnects())
	select {
	case <-h.sup.Done():
	case <-time.After(waitFor):
		t.Fatalf("loop did not exit")
	}

	_, err := h.sup.Acquire(context.Background())
	require.ErrorIs(t, err, realtime.ErrStopped)
}

func TestNewSupervisorRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := realtime.NewSupervisor(realtime.Config{Dialer: &realtimetest.FakeDialer{}})
	require.Error(t, err)
	_, err = realtime.NewSupervisor(realtime.Config{Credentials: &realtimetest.Credential{}})
	require.Error(t, err)
}

func TestSupervisor_PanicEndsLoopWithError(t *testing.T) {
	t.Parallel()

	cred := &realtimetest.Credential{}
	cred.Set(mintToken(t, "bob"))
	sup, err := realtime.NewSupervisor(realtime.Config{
		Credentials: cred,
		Dialer: realtime.DialFunc(func(string) (realtime.Socket, error) {
			panic("dialer exploded")
		}),
		Scheduler: realtimetest.NewFakeScheduler(),
	})
	require.NoError(t, err)
	require.NoError(t, sup.Err())

	sup.Start()
	select {
	case <-sup.Done():
	case <-time.After(waitFor):
		t.Fatalf("loop did not exit")
	}
	require.ErrorIs(t, sup.Err(), realtime.ErrLoopPanicked)
	require.ErrorContains(t, sup.Err(), "dialer exploded")
	require.NoError(t, sup.Stop(context.Background()))
}
