package inbox

import (
	"testing"
	"time"

	"github.com/bhandras/bazaar/internal/wire"
	"github.com/stretchr/testify/require"
)

func seed() State {
	return State{Messages: []wire.Message{
		{ID: "m1", SenderID: "alice", ReceiverID: "bob"},
		{ID: "m2", SenderID: "bob", ReceiverID: "alice"},
		{ID: "m3", SenderID: "alice", ReceiverID: "bob"},
	}}
}

func TestMarkDelivered(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	before := seed()

	next, ok := MarkDelivered(before, wire.Delivery{MessageID: "m2", DeliveredAt: &at})
	require.True(t, ok)
	require.True(t, next.Messages[1].IsDelivered)
	require.Equal(t, at, *next.Messages[1].DeliveredAt)
	require.False(t, next.Messages[0].IsDelivered)

	// The input snapshot is untouched.
	require.False(t, before.Messages[1].IsDelivered)
}

func TestMarkDelivered_WithoutTimestamp(t *testing.T) {
	t.Parallel()

	next, ok := MarkDelivered(seed(), wire.Delivery{MessageID: "m1"})
	require.True(t, ok)
	require.True(t, next.Messages[0].IsDelivered)
	require.Nil(t, next.Messages[0].DeliveredAt)
}

func TestMarkDelivered_NoOps(t *testing.T) {
	t.Parallel()

	s := seed()
	next, ok := MarkDelivered(s, wire.Delivery{})
	require.False(t, ok)
	require.Equal(t, s, next)

	next, ok = MarkDelivered(s, wire.Delivery{MessageID: "missing"})
	require.False(t, ok)
	require.Equal(t, s, next)
}

func TestMarkReadBy(t *testing.T) {
	t.Parallel()

	next, n := MarkReadBy(seed(), wire.ReadReceipt{ReadBy: "alice"})
	require.Equal(t, 2, n)
	for _, m := range next.Messages {
		require.Equal(t, m.SenderID == "alice", m.IsRead, m.ID)
	}

	// Already-read messages are not counted twice.
	_, n = MarkReadBy(next, wire.ReadReceipt{ReadBy: "alice"})
	require.Zero(t, n)
}

func TestMarkReadBy_ScopedToReader(t *testing.T) {
	t.Parallel()

	s := seed()
	s.Messages = append(s.Messages, wire.Message{ID: "m4", SenderID: "alice", ReceiverID: "carol"})

	next, n := MarkReadBy(s, wire.ReadReceipt{ReadBy: "alice", Reader: "carol"})
	require.Equal(t, 1, n)
	for _, m := range next.Messages {
		require.Equal(t, m.ID == "m4", m.IsRead, m.ID)
	}
}

func TestMarkReadBy_MissingReader(t *testing.T) {
	t.Parallel()

	s := seed()
	next, n := MarkReadBy(s, wire.ReadReceipt{})
	require.Zero(t, n)
	require.Equal(t, s, next)
}

func TestAppendMessage_Unread(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		sender  string
		viewing bool
		counted bool
	}{
		{name: "peer not viewing", sender: "alice", counted: true},
		{name: "peer viewing", sender: "alice", viewing: true},
		{name: "own message", sender: "bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			next, arrival := AppendMessage(seed(), wire.Message{ID: "m4", SenderID: tc.sender}, "bob", tc.viewing)
			require.Len(t, next.Messages, 4)
			require.Equal(t, "m4", next.Messages[3].ID)
			require.Equal(t, tc.counted, arrival.CountedUnread)
			if tc.counted {
				require.Equal(t, 1, next.Unread)
			} else {
				require.Zero(t, next.Unread)
			}
		})
	}
}

func TestPrependNotification(t *testing.T) {
	t.Parallel()

	s := State{}
	s = PrependNotification(s, wire.Notification{ID: "n1", Text: "first"})
	s = PrependNotification(s, wire.Notification{ID: "n2", Text: wire.DefaultNotificationText})

	require.Len(t, s.Notifications, 2)
	require.Equal(t, "n2", s.Notifications[0].ID)
	require.Equal(t, "n1", s.Notifications[1].ID)
	require.Equal(t, 2, UnreadNotifications(s))
}

func TestClearUnread(t *testing.T) {
	t.Parallel()

	require.Zero(t, ClearUnread(State{Unread: 3}).Unread)
}
