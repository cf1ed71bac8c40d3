// Package wire defines the socket.io event contract shared by the bazaar
// client and server, and the normalization of loosely shaped inbound payloads
// into fixed internal types.
package wire

// Socket.io event names.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"

	// EventMessageDelivered tells a sender one of their messages reached the
	// receiver.
	EventMessageDelivered = "message_delivered"
	// EventMessagesRead tells both sides of a conversation that messages
	// were read.
	EventMessagesRead = "messages_read"
	// EventReceiveMessage carries a new chat message.
	EventReceiveMessage = "receive_message"
	// EventNewNotification carries a new notification item.
	EventNewNotification = "new_notification"
)

// SocketPath is the socket.io endpoint path.
const SocketPath = "/v1/updates"

// InboundEvents lists the events the client router binds, in binding order.
var InboundEvents = []string{
	EventConnect,
	EventConnectError,
	EventDisconnect,
	EventMessageDelivered,
	EventMessagesRead,
	EventReceiveMessage,
	EventNewNotification,
}

// HandshakeAuth is the socket.io handshake auth payload.
type HandshakeAuth struct {
	Token string `json:"token"`
}

// MessageDeliveredPayload is the server-emitted body of message_delivered.
type MessageDeliveredPayload struct {
	MessageID   string `json:"messageId"`
	DeliveredAt string `json:"deliveredAt,omitempty"`
}

// MessagesReadPayload is the server-emitted body of messages_read. ReadBy
// names the sender whose messages were read; Reader, when set, is the user
// who read them.
type MessagesReadPayload struct {
	ReadBy string `json:"readBy"`
	Reader string `json:"readerId,omitempty"`
}

// MessagePayload is the server-emitted body of receive_message.
type MessagePayload struct {
	ID          string `json:"_id"`
	Text        string `json:"text"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	ListingID   string `json:"listingId,omitempty"`
	CreatedAt   string `json:"createdAt"`
	IsRead      bool   `json:"isRead"`
	IsDelivered bool   `json:"isDelivered"`
	DeliveredAt string `json:"deliveredAt,omitempty"`
}

// NotificationPayload is the server-emitted body of new_notification.
type NotificationPayload struct {
	ID        string `json:"_id"`
	UserID    string `json:"userId"`
	SenderID  string `json:"senderId,omitempty"`
	ListingID string `json:"listingId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Text      string `json:"text"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}
