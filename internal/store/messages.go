package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bhandras/bazaar/internal/wire"
)

const messageColumns = `id, sender_id, receiver_id, listing_id, text, created_at,
	is_read, is_delivered, delivered_at`

// InsertMessage stores m. CreatedAt must be set by the caller.
func (db *DB) InsertMessage(ctx context.Context, m wire.Message) error {
	_, err := db.exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.SenderID, m.ReceiverID, m.ListingID, m.Text, m.CreatedAt.UTC(),
		m.IsRead, m.IsDelivered, nullTime(m.DeliveredAt))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessage loads one message by id.
func (db *DB) GetMessage(ctx context.Context, id string) (wire.Message, error) {
	rows, err := db.query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	if err != nil {
		return wire.Message{}, fmt.Errorf("failed to get message: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return wire.Message{}, err
	}
	if len(msgs) == 0 {
		return wire.Message{}, ErrNotFound
	}
	return msgs[0], nil
}

// MarkDelivered flags message id as delivered at at. It reports false when
// the message was already delivered or does not exist.
func (db *DB) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := db.exec(ctx, `
		UPDATE messages SET is_delivered = ?, delivered_at = ?
		WHERE id = ? AND is_delivered = ?
	`, true, at.UTC(), id, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark delivered: %w", err)
	}
	return n > 0, nil
}

// ListUndelivered returns messages addressed to receiver that have not been
// delivered yet, oldest first.
func (db *DB) ListUndelivered(ctx context.Context, receiver string) ([]wire.Message, error) {
	rows, err := db.query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE receiver_id = ? AND is_delivered = ?
		ORDER BY created_at ASC
	`, receiver, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered: %w", err)
	}
	return scanMessages(rows)
}

// MarkConversationRead marks every unread message from sender to reader as
// read and returns how many changed.
func (db *DB) MarkConversationRead(ctx context.Context, reader, sender string) (int64, error) {
	res, err := db.exec(ctx, `
		UPDATE messages SET is_read = ?
		WHERE receiver_id = ? AND sender_id = ? AND is_read = ?
	`, true, reader, sender, false)
	if err != nil {
		return 0, fmt.Errorf("failed to mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark read: %w", err)
	}
	return n, nil
}

// ListConversation returns up to limit of the most recent messages exchanged
// between a and b, oldest first.
func (db *DB) ListConversation(ctx context.Context, a, b string, limit int) ([]wire.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, a, b, b, a, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func scanMessages(rows *sql.Rows) ([]wire.Message, error) {
	defer rows.Close()

	var out []wire.Message
	for rows.Next() {
		var (
			m           wire.Message
			deliveredAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.ListingID, &m.Text,
			&m.CreatedAt, &m.IsRead, &m.IsDelivered, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		if deliveredAt.Valid {
			at := deliveredAt.Time.UTC()
			m.DeliveredAt = &at
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
