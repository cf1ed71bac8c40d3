package notify

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushoverNotifier_SendsForm(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "tok", r.PostForm.Get("token"))
		assert.Equal(t, "usr", r.PostForm.Get("user"))
		assert.Equal(t, "New message", r.PostForm.Get("title"))
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewPushoverNotifier(PushoverConfig{
		Token:    "tok",
		UserKey:  "usr",
		Cooldown: time.Hour,
		Endpoint: srv.URL,
	})
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), "New message", "hello"))
	// Second notification with the same title is inside the cooldown.
	require.NoError(t, n.Notify(context.Background(), "New message", "hello"))
	require.EqualValues(t, 1, hits.Load())
	require.NoError(t, n.LastError())
}

func TestPushoverNotifier_RecordsErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := NewPushoverNotifier(PushoverConfig{Token: "tok", UserKey: "usr", Endpoint: srv.URL})
	require.NoError(t, err)

	err = n.Notify(context.Background(), "t", "body")
	require.Error(t, err)
	require.Equal(t, err, n.LastError())
}

func TestNewPushoverNotifier_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewPushoverNotifier(PushoverConfig{Token: "tok"})
	require.Error(t, err)
}

type failing struct{ err error }

func (f failing) Notify(context.Context, string, string) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := Multi{LogNotifier{}, nil, failing{err: boom}}.Notify(context.Background(), "t", "b")
	require.ErrorIs(t, err, boom)
}

func TestTerminalToaster(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	toaster := NewTerminalToaster(&buf)
	toaster.Toast(KindInfo, "Notification", "New notification")
	toaster.Toast(KindError, "Offline", "")

	require.Equal(t, "[info] Notification: New notification\n[error] Offline\n", buf.String())
}
