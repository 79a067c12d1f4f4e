package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateMessage is returned when appending a message whose
// (chat_id, message_id) pair is already persisted.
var ErrDuplicateMessage = errors.New("message already persisted")

// HasMessage reports whether (chatID, messageID) is already persisted.
// This backs the receive pipeline's dedup guard.
func (db *DB) HasMessage(chatID, messageID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(1) FROM messages WHERE chat_id = ? AND message_id = ?`,
		chatID, messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("message existence check: %w", err)
	}
	return n > 0, nil
}

// GetMessageByID returns a message by its (chatID, messageID) key, or
// nil when absent.
func (db *DB) GetMessageByID(chatID, messageID string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, chat_id, message_id, sender_id, content_type, data, timestamp, status
		FROM messages
		WHERE chat_id = ? AND message_id = ?`, chatID, messageID).
		Scan(&m.ID, &m.ChatID, &m.MessageID, &m.SenderID, &m.ContentType, &m.Data, &m.Timestamp, &m.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AppendMessage inserts a message. Returns ErrDuplicateMessage when the
// (chat_id, message_id) key already exists; messages are never
// overwritten on redelivery.
func (db *DB) AppendMessage(m *Message) error {
	return appendMessage(db.DB, m)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func appendMessage(e execer, m *Message) error {
	res, err := e.Exec(`
		INSERT INTO messages (chat_id, message_id, sender_id, content_type, data, timestamp, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, message_id) DO NOTHING`,
		m.ChatID, m.MessageID, m.SenderID, m.ContentType, m.Data, m.Timestamp, m.Status, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if n == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

// AppendInbound persists an inbound message and refreshes the chat's
// connection summary in a single transaction, so the summary can never
// reference a message that failed persistence.
func (db *DB) AppendInbound(m *Message, delta *ConnectionDelta, action CountAction) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendMessage(tx, m); err != nil {
		return err
	}
	if err := updateConnectionOnNewMessage(tx, delta, action); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit inbound: %w", err)
	}
	return nil
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_id, message_id, sender_id, content_type, data, timestamp, status
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MessageID, &m.SenderID, &m.ContentType, &m.Data, &m.Timestamp, &m.Status); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateMessageStatus moves a message's status forward. Regressions
// (read -> delivered) are silently ignored; status never moves backwards.
func (db *DB) UpdateMessageStatus(chatID, messageID string, to MessageStatus) error {
	if _, ok := statusRank[to]; !ok {
		return fmt.Errorf("unknown message status %q", to)
	}
	_, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE chat_id = ? AND message_id = ?
		  AND CASE status
		        WHEN 'pending' THEN 0
		        WHEN 'sent' THEN 1
		        WHEN 'delivered' THEN 2
		        ELSE 3
		      END < ?`,
		to, chatID, messageID, statusRank[to])
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return nil
}
