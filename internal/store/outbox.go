package store

import "time"

// QueueOutbox enqueues an outgoing payload for the sender loop.
func (db *DB) QueueOutbox(clientMsgID, chatID, contentType, data string) error {
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, chat_id, content_type, data, status, created_at)
		VALUES (?, ?, ?, ?, 'queued', ?)`,
		clientMsgID, chatID, contentType, data, time.Now().UnixMilli())
	return err
}

// PendingOutbox returns entries still waiting to be sent, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, chat_id, content_type, data, status, error_message
		FROM outbox
		WHERE status = 'queued'
		ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ChatID, &e.ContentType, &e.Data, &e.Status, &e.ErrorMessage); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkOutboxSending flags an entry as in flight.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	_, err := db.Exec(`UPDATE outbox SET status = 'sending' WHERE client_msg_id = ?`, clientMsgID)
	return err
}

// MarkOutboxSent flags an entry as delivered to the transport.
func (db *DB) MarkOutboxSent(clientMsgID string) error {
	_, err := db.Exec(`UPDATE outbox SET status = 'sent' WHERE client_msg_id = ?`, clientMsgID)
	return err
}

// RequeueOutbox returns failed and stuck in-flight entries to the
// queue, typically after the relay connection comes back.
func (db *DB) RequeueOutbox() error {
	_, err := db.Exec(`UPDATE outbox SET status = 'queued' WHERE status IN ('sending', 'failed')`)
	return err
}

// MarkOutboxFailed records a send failure.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ? WHERE client_msg_id = ?`,
		errMsg, clientMsgID)
	return err
}
