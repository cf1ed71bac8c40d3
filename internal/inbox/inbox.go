// Package inbox holds the client-side message and notification state and the
// pure reconcilers that apply inbound realtime events to it.
//
// Reconcilers never modify their input: every update returns a fresh State
// whose changed slices are copies, so snapshots handed to readers stay valid.
package inbox

import (
	"time"

	"github.com/bhandras/bazaar/internal/wire"
)

// State is the client's view of conversations and notifications.
type State struct {
	// Messages in arrival order.
	Messages []wire.Message
	// Notifications, most recent first.
	Notifications []wire.Notification
	// Unread counts messages that arrived while their thread was not in view.
	Unread int
}

// MarkDelivered sets the delivered flag and timestamp on the message named by
// d. It reports whether a message was updated; a missing id or unknown
// message leaves the state unchanged.
func MarkDelivered(s State, d wire.Delivery) (State, bool) {
	if d.MessageID == "" {
		return s, false
	}
	idx := -1
	for i := range s.Messages {
		if s.Messages[i].ID == d.MessageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, false
	}

	msgs := cloneMessages(s.Messages)
	msgs[idx].IsDelivered = true
	msgs[idx].DeliveredAt = copyTime(d.DeliveredAt)
	s.Messages = msgs
	return s, true
}

// MarkReadBy marks every message sent by r.ReadBy as read and returns how
// many messages changed. A receipt naming a Reader only covers messages
// addressed to that reader.
func MarkReadBy(s State, r wire.ReadReceipt) (State, int) {
	if r.ReadBy == "" {
		return s, 0
	}

	var msgs []wire.Message
	changed := 0
	for i := range s.Messages {
		m := s.Messages[i]
		if m.SenderID != r.ReadBy || m.IsRead {
			continue
		}
		if r.Reader != "" && m.ReceiverID != r.Reader {
			continue
		}
		if msgs == nil {
			msgs = cloneMessages(s.Messages)
		}
		msgs[i].IsRead = true
		changed++
	}
	if changed > 0 {
		s.Messages = msgs
	}
	return s, changed
}

// Arrival describes how an appended message affected the state.
type Arrival struct {
	// CountedUnread is true when the unread counter was incremented. Hosts
	// surface a platform notification in that case.
	CountedUnread bool
}

// AppendMessage appends m. When m was sent by someone other than selfID and
// its thread is not being viewed, the unread counter is incremented.
func AppendMessage(s State, m wire.Message, selfID string, viewing bool) (State, Arrival) {
	msgs := make([]wire.Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	s.Messages = append(msgs, m)

	if m.SenderID == selfID || viewing {
		return s, Arrival{}
	}
	s.Unread++
	return s, Arrival{CountedUnread: true}
}

// PrependNotification places n at the head of the notification list.
func PrependNotification(s State, n wire.Notification) State {
	out := make([]wire.Notification, 0, len(s.Notifications)+1)
	out = append(out, n)
	s.Notifications = append(out, s.Notifications...)
	return s
}

// ClearUnread resets the unread counter, for when the host opens a thread.
func ClearUnread(s State) State {
	s.Unread = 0
	return s
}

// UnreadNotifications counts notifications not yet acknowledged.
func UnreadNotifications(s State) int {
	n := 0
	for _, item := range s.Notifications {
		if !item.Read {
			n++
		}
	}
	return n
}

func cloneMessages(in []wire.Message) []wire.Message {
	out := make([]wire.Message, len(in))
	copy(out, in)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
