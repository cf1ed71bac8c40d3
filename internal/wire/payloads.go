package wire

import "time"

// MessagePayloadOf renders m for receive_message and the REST API.
func MessagePayloadOf(m Message) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		Text:        m.Text,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		ListingID:   m.ListingID,
		CreatedAt:   FormatTime(m.CreatedAt),
		IsRead:      m.IsRead,
		IsDelivered: m.IsDelivered,
		DeliveredAt: formatOptional(m.DeliveredAt),
	}
}

// NotificationPayloadOf renders n for new_notification and the REST API.
func NotificationPayloadOf(n Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		UserID:    n.UserID,
		SenderID:  n.SenderID,
		ListingID: n.ListingID,
		MessageID: n.MessageID,
		Text:      n.Text,
		Read:      n.Read,
		CreatedAt: FormatTime(n.CreatedAt),
	}
}

// DeliveredPayloadOf renders a message_delivered body.
func DeliveredPayloadOf(messageID string, at time.Time) MessageDeliveredPayload {
	return MessageDeliveredPayload{MessageID: messageID, DeliveredAt: FormatTime(at)}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
