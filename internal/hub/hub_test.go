package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/internal/broker"
)

type sent struct {
	socket  string
	event   string
	payload any
}

type sink struct {
	mu   sync.Mutex
	sent []sent
}

func (s *sink) conn(id, user string) *conn {
	return &conn{id: id, userID: user, send: func(event string, payload any) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sent = append(s.sent, sent{socket: id, event: event, payload: payload})
	}}
}

func (s *sink) all() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

type fakeFanout struct {
	mu        sync.Mutex
	published []broker.Envelope
	fail      error
	envs      chan broker.Envelope
}

func (f *fakeFanout) Publish(_ context.Context, env broker.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.published = append(f.published, env)
	return nil
}

func (f *fakeFanout) Consume(context.Context) (<-chan broker.Envelope, error) {
	return f.envs, nil
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.Verifier == nil {
		m, err := auth.NewJWTManager("hub-secret")
		require.NoError(t, err)
		opts.Verifier = m
	}
	return &Hub{opts: opts, conns: newRegistry()}
}

func TestNewRequiresVerifier(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	m, err := auth.NewJWTManager("hub-secret")
	require.NoError(t, err)
	h := newTestHub(t, Options{Verifier: m})

	token, err := m.CreateToken("bob", "Bob", time.Hour)
	require.NoError(t, err)

	user, err := h.authenticate(map[string]any{"token": token})
	require.NoError(t, err)
	require.Equal(t, "bob", user)

	_, err = h.authenticate(nil)
	require.ErrorIs(t, err, ErrMissingAuth)

	_, err = h.authenticate(map[string]any{})
	require.ErrorIs(t, err, ErrMissingAuth)

	_, err = h.authenticate(map[string]any{"token": 42})
	require.ErrorIs(t, err, ErrMissingAuth)

	_, err = h.authenticate(map[string]any{"token": "garbage"})
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := auth.NewJWTManager("other-secret")
	require.NoError(t, err)
	forged, err := other.CreateToken("bob", "", time.Hour)
	require.NoError(t, err)
	_, err = h.authenticate(map[string]any{"token": forged})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmitToUserLocal(t *testing.T) {
	t.Parallel()

	var s sink
	h := newTestHub(t, Options{})
	h.conns.add(s.conn("s1", "bob"))
	h.conns.add(s.conn("s2", "bob"))
	h.conns.add(s.conn("s3", "alice"))

	require.True(t, h.Online("bob"))
	require.False(t, h.Online("carol"))
	require.Equal(t, 3, h.Connections())

	h.EmitToUser(context.Background(), "bob", "receive_message", "hi")
	got := s.all()
	require.Len(t, got, 2)
	for _, g := range got {
		require.Contains(t, []string{"s1", "s2"}, g.socket)
		require.Equal(t, "receive_message", g.event)
	}

	h.conns.remove("s1")
	h.conns.remove("s2")
	require.False(t, h.Online("bob"))
}

func TestEmitToUserThroughFanout(t *testing.T) {
	t.Parallel()

	var s sink
	fan := &fakeFanout{}
	h := newTestHub(t, Options{Fanout: fan, NodeID: "node-a"})
	h.conns.add(s.conn("s1", "bob"))

	h.EmitToUser(context.Background(), "bob", "messages_read", map[string]string{"readBy": "bob"})
	require.Empty(t, s.all(), "delivery waits for the consumer")
	require.Len(t, fan.published, 1)
	require.Equal(t, "node-a", fan.published[0].Origin)
	require.JSONEq(t, `{"readBy":"bob"}`, string(fan.published[0].Payload))

	fan.fail = errors.New("broker down")
	h.EmitToUser(context.Background(), "bob", "messages_read", "x")
	require.Len(t, s.all(), 1, "falls back to local delivery")
}

func TestRunDeliversConsumedEnvelopes(t *testing.T) {
	t.Parallel()

	var s sink
	fan := &fakeFanout{envs: make(chan broker.Envelope, 2)}
	h := newTestHub(t, Options{Fanout: fan})
	h.conns.add(s.conn("s1", "bob"))

	fan.envs <- broker.Envelope{UserID: "bob", Event: "new_notification", Payload: json.RawMessage(`{}`)}
	fan.envs <- broker.Envelope{UserID: "nobody", Event: "new_notification"}
	close(fan.envs)

	require.NoError(t, h.Run(context.Background()))
	got := s.all()
	require.Len(t, got, 1)
	require.Equal(t, "new_notification", got[0].event)
}

func TestRunWithoutFanoutReturns(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, Options{})
	require.NoError(t, h.Run(context.Background()))
}

func TestCorsOrigin(t *testing.T) {
	t.Parallel()

	require.Equal(t, "*", corsOrigin(nil))
	require.Equal(t, "*", corsOrigin([]string{"*"}))
	require.Equal(t, []any{"https://a", "https://b"}, corsOrigin([]string{"https://a", "https://b"}))
}
