package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bhandras/bazaar/internal/wire"
)

// InsertNotification stores n.
func (db *DB) InsertNotification(ctx context.Context, n wire.Notification) error {
	_, err := db.exec(ctx, `
		INSERT INTO notifications (id, user_id, sender_id, listing_id, message_id, text, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.SenderID, n.ListingID, nullString(n.MessageID), n.Text, n.Read, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns up to limit of user's notifications, newest
// first.
func (db *DB) ListNotifications(ctx context.Context, user string, limit int) ([]wire.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.query(ctx, `
		SELECT id, user_id, sender_id, listing_id, message_id, text, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []wire.Notification
	for rows.Next() {
		var (
			n         wire.Notification
			messageID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.SenderID, &n.ListingID, &messageID,
			&n.Text, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.MessageID = messageID.String
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead flags one of user's notifications as read. It returns
// ErrNotFound when id does not belong to user.
func (db *DB) MarkNotificationRead(ctx context.Context, user, id string) error {
	res, err := db.exec(ctx, `
		UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?
	`, true, id, user)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
