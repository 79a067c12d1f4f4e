package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertConnection inserts or updates a connection record.
func (db *DB) UpsertConnection(c *Connection) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO connections (chat_id, line_id, kind, name, text, recent_message_type, latest_message_id,
			read_status, unread_count, last_timestamp, disconnected, permissions_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			line_id = excluded.line_id,
			kind = excluded.kind,
			name = excluded.name,
			disconnected = excluded.disconnected,
			permissions_id = excluded.permissions_id,
			updated_at = excluded.updated_at`,
		c.ChatID, c.LineID, c.Kind, c.Name, c.Text, c.RecentMessageType, c.LatestMessageID,
		c.ReadStatus, c.UnreadCount, c.LastTimestamp, c.Disconnected, c.PermissionsID, now, now)
	return err
}

// GetConnection returns a single connection by chat id, or nil.
func (db *DB) GetConnection(chatID string) (*Connection, error) {
	var c Connection
	err := db.QueryRow(`
		SELECT chat_id, line_id, kind, name, text, recent_message_type, latest_message_id,
			read_status, unread_count, last_timestamp, disconnected, permissions_id
		FROM connections WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.LineID, &c.Kind, &c.Name, &c.Text, &c.RecentMessageType, &c.LatestMessageID,
			&c.ReadStatus, &c.UnreadCount, &c.LastTimestamp, &c.Disconnected, &c.PermissionsID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConnectionByPermissionsID resolves the chat behind a permission
// key, used when a permission change must be pushed to the peer.
func (db *DB) GetConnectionByPermissionsID(permissionsID string) (*Connection, error) {
	var c Connection
	err := db.QueryRow(`
		SELECT chat_id, line_id, kind, name, text, recent_message_type, latest_message_id,
			read_status, unread_count, last_timestamp, disconnected, permissions_id
		FROM connections WHERE permissions_id = ?`, permissionsID).
		Scan(&c.ChatID, &c.LineID, &c.Kind, &c.Name, &c.Text, &c.RecentMessageType, &c.LatestMessageID,
			&c.ReadStatus, &c.UnreadCount, &c.LastTimestamp, &c.Disconnected, &c.PermissionsID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConnections returns connections sorted by last activity descending.
func (db *DB) ListConnections(limit, offset int) ([]Connection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, line_id, kind, name, text, recent_message_type, latest_message_id,
			read_status, unread_count, last_timestamp, disconnected, permissions_id
		FROM connections
		ORDER BY last_timestamp DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var conns []Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ChatID, &c.LineID, &c.Kind, &c.Name, &c.Text, &c.RecentMessageType, &c.LatestMessageID,
			&c.ReadStatus, &c.UnreadCount, &c.LastTimestamp, &c.Disconnected, &c.PermissionsID); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// UpdateConnectionOnNewMessage refreshes the summary row for a chat:
// preview text, recent content type, latest message id, timestamp, and
// the unread counter per the requested action.
func (db *DB) UpdateConnectionOnNewMessage(delta *ConnectionDelta, action CountAction) error {
	return updateConnectionOnNewMessage(db.DB, delta, action)
}

func updateConnectionOnNewMessage(e execer, delta *ConnectionDelta, action CountAction) error {
	var countExpr string
	switch action {
	case CountIncrement:
		countExpr = "unread_count + 1"
	case CountReset:
		countExpr = "0"
	case CountUnchanged:
		countExpr = "unread_count"
	default:
		return fmt.Errorf("unknown count action %q", action)
	}

	res, err := e.Exec(fmt.Sprintf(`
		UPDATE connections SET
			text = ?,
			recent_message_type = ?,
			latest_message_id = ?,
			read_status = ?,
			unread_count = %s,
			last_timestamp = ?,
			updated_at = ?
		WHERE chat_id = ?`, countExpr),
		delta.Text, delta.RecentMessageType, delta.LatestMessageID, delta.ReadStatus,
		delta.Timestamp, time.Now().UnixMilli(), delta.ChatID)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update connection: no connection for chat %q", delta.ChatID)
	}
	return nil
}

// MarkConnectionRead zeroes the unread counter, e.g. when the chat is
// opened by a client.
func (db *DB) MarkConnectionRead(chatID string) error {
	_, err := db.Exec(`UPDATE connections SET unread_count = 0, updated_at = ? WHERE chat_id = ?`,
		time.Now().UnixMilli(), chatID)
	return err
}

// SetDisconnected flags or unflags a connection as disconnected. A
// disconnected chat keeps receiving queued messages; the flag is a
// display hint for clients and the notifier.
func (db *DB) SetDisconnected(chatID string, disconnected bool) error {
	_, err := db.Exec(`UPDATE connections SET disconnected = ?, updated_at = ? WHERE chat_id = ?`,
		disconnected, time.Now().UnixMilli(), chatID)
	return err
}
