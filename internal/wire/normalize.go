package wire

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultNotificationText is used when a notification arrives without text.
const DefaultNotificationText = "New notification"

// TimeLayout is the ISO-8601 layout used on the wire (millisecond precision,
// UTC).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is the normalized shape of a chat message.
type Message struct {
	ID          string
	Text        string
	SenderID    string
	ReceiverID  string
	ListingID   string
	CreatedAt   time.Time
	IsRead      bool
	IsDelivered bool
	DeliveredAt *time.Time
}

// Notification is the normalized shape of a notification item.
type Notification struct {
	ID        string
	UserID    string
	SenderID  string
	ListingID string
	MessageID string
	Text      string
	Read      bool
	CreatedAt time.Time
}

// Delivery is the normalized body of message_delivered.
type Delivery struct {
	MessageID   string
	DeliveredAt *time.Time
}

// ReadReceipt is the normalized body of messages_read.
type ReadReceipt struct {
	// ReadBy is the sender of the messages that were read.
	ReadBy string
	// Reader narrows the receipt to messages addressed to this user.
	Reader string
}

// Fields is a decoded JSON object.
type Fields map[string]any

// Decode turns the first socket.io event argument into a JSON object. Values
// that are not objects decode to an empty Fields.
func Decode(args []any) Fields {
	if len(args) == 0 || args[0] == nil {
		return Fields{}
	}

	switch v := args[0].(type) {
	case map[string]any:
		return Fields(v)
	case Fields:
		return v
	case json.RawMessage:
		return decodeBytes(v)
	case []byte:
		return decodeBytes(v)
	case string:
		return decodeBytes([]byte(v))
	}

	raw, err := json.Marshal(args[0])
	if err != nil {
		return Fields{}
	}
	return decodeBytes(raw)
}

func decodeBytes(raw []byte) Fields {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return Fields{}
	}
	return Fields(out)
}

// Ref returns the id stored under the first present key. A value may be a bare
// id or an embedded object carrying `_id` or `id`.
func (f Fields) Ref(keys ...string) string {
	for _, k := range keys {
		if id := refOf(f[k]); id != "" {
			return id
		}
	}
	return ""
}

// String returns the first present string value under keys.
func (f Fields) String(keys ...string) string {
	for _, k := range keys {
		if s, ok := f[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Bool returns the boolean under key, false when absent or not a boolean.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Time parses the timestamp under key. It accepts ISO-8601 strings and epoch
// milliseconds.
func (f Fields) Time(key string) (time.Time, bool) {
	switch v := f[key].(type) {
	case string:
		return parseTime(v)
	case float64:
		if v <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(v)).UTC(), true
	case json.Number:
		ms, err := v.Int64()
		if err != nil || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func refOf(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case map[string]any:
		if id := refOf(x["_id"]); id != "" {
			return id
		}
		return refOf(x["id"])
	}
	return ""
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, TimeLayout, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t in the wire layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NormalizeDelivery converts a message_delivered body.
func NormalizeDelivery(f Fields) Delivery {
	d := Delivery{MessageID: f.Ref("messageId", "_id", "id")}
	if at, ok := f.Time("deliveredAt"); ok {
		d.DeliveredAt = &at
	}
	return d
}

// NormalizeReadReceipt converts a messages_read body.
func NormalizeReadReceipt(f Fields) ReadReceipt {
	return ReadReceipt{ReadBy: f.Ref("readBy"), Reader: f.Ref("readerId", "reader")}
}

// NormalizeMessage converts a receive_message body. Missing fields default to
// empty strings and false; a missing creation time defaults to now.
func NormalizeMessage(f Fields, now time.Time) Message {
	m := Message{
		ID:          f.Ref("_id", "id"),
		Text:        f.String("text", "content"),
		SenderID:    f.Ref("senderId", "sender"),
		ReceiverID:  f.Ref("receiverId", "receiver"),
		ListingID:   f.Ref("listingId", "listing"),
		CreatedAt:   now,
		IsRead:      f.Bool("isRead"),
		IsDelivered: f.Bool("isDelivered"),
	}
	if at, ok := f.Time("createdAt"); ok {
		m.CreatedAt = at
	}
	if at, ok := f.Time("deliveredAt"); ok {
		m.DeliveredAt = &at
	}
	return m
}

// NormalizeNotification converts a new_notification body. A notification is
// always unread on arrival. Missing id, text and creation time are filled from
// newID, DefaultNotificationText and now.
func NormalizeNotification(f Fields, now time.Time, newID func() string) Notification {
	n := Notification{
		ID:        f.Ref("_id", "id"),
		UserID:    f.Ref("userId", "user"),
		SenderID:  f.Ref("senderId", "sender"),
		ListingID: f.Ref("listingId", "listing"),
		MessageID: f.Ref("messageId"),
		Text:      f.String("text"),
		CreatedAt: now,
	}
	if n.ID == "" && newID != nil {
		n.ID = newID()
	}
	if n.Text == "" {
		n.Text = DefaultNotificationText
	}
	if at, ok := f.Time("createdAt"); ok {
		n.CreatedAt = at
	}
	return n
}
