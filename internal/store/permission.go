package store

import (
	"database/sql"
	"fmt"
	"time"
)

// EnsurePermissions creates a permission row with defaults if one does
// not exist yet.
func (db *DB) EnsurePermissions(permissionsID string) error {
	p := DefaultPermissions(permissionsID)
	_, err := db.Exec(`
		INSERT INTO permissions (permissions_id, notifications, calling, contact_sharing, display_picture,
			read_receipts, auto_download, disappearing_messages, focus, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(permissions_id) DO NOTHING`,
		p.PermissionsID, p.Notifications, p.Calling, p.ContactSharing, p.DisplayPicture,
		p.ReadReceipts, p.AutoDownload, p.DisappearingMessages, p.Focus, time.Now().UnixMilli())
	return err
}

// GetPermissions returns the permission set stored under permissionsID,
// or nil when absent.
func (db *DB) GetPermissions(permissionsID string) (*Permissions, error) {
	var p Permissions
	err := db.QueryRow(`
		SELECT permissions_id, notifications, calling, contact_sharing, display_picture,
			read_receipts, auto_download, disappearing_messages, focus
		FROM permissions WHERE permissions_id = ?`, permissionsID).
		Scan(&p.PermissionsID, &p.Notifications, &p.Calling, &p.ContactSharing, &p.DisplayPicture,
			&p.ReadReceipts, &p.AutoDownload, &p.DisappearingMessages, &p.Focus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetChatPermissions resolves the permission set for a chat. Direct
// chats key their permissions by the peer line id; group chats key by
// the group's chat id.
func (db *DB) GetChatPermissions(chatID string, kind ChatKind) (*Permissions, error) {
	conn, err := db.GetConnection(chatID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("no connection for chat %q", chatID)
	}

	id := conn.PermissionsID
	if id == "" {
		// Legacy rows: fall back to the keying convention.
		if kind == ChatDirect && conn.LineID != "" {
			id = conn.LineID
		} else {
			id = chatID
		}
	}
	p, err := db.GetPermissions(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("no permissions under %q for chat %q", id, chatID)
	}
	return p, nil
}

// UpdatePermissions applies a partial update; nil patch fields keep
// their stored values.
func (db *DB) UpdatePermissions(permissionsID string, patch *PermissionPatch) error {
	p, err := db.GetPermissions(permissionsID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no permissions under %q", permissionsID)
	}

	if patch.Notifications != nil {
		p.Notifications = *patch.Notifications
	}
	if patch.Calling != nil {
		p.Calling = *patch.Calling
	}
	if patch.ContactSharing != nil {
		p.ContactSharing = *patch.ContactSharing
	}
	if patch.DisplayPicture != nil {
		p.DisplayPicture = *patch.DisplayPicture
	}
	if patch.ReadReceipts != nil {
		p.ReadReceipts = *patch.ReadReceipts
	}
	if patch.AutoDownload != nil {
		p.AutoDownload = *patch.AutoDownload
	}
	if patch.DisappearingMessages != nil {
		p.DisappearingMessages = *patch.DisappearingMessages
	}
	if patch.Focus != nil {
		p.Focus = *patch.Focus
	}

	_, err = db.Exec(`
		UPDATE permissions SET
			notifications = ?, calling = ?, contact_sharing = ?, display_picture = ?,
			read_receipts = ?, auto_download = ?, disappearing_messages = ?, focus = ?, updated_at = ?
		WHERE permissions_id = ?`,
		p.Notifications, p.Calling, p.ContactSharing, p.DisplayPicture,
		p.ReadReceipts, p.AutoDownload, p.DisappearingMessages, p.Focus,
		time.Now().UnixMilli(), permissionsID)
	if err != nil {
		return fmt.Errorf("update permissions: %w", err)
	}
	return nil
}
