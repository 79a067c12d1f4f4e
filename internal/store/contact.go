package store

import (
	"database/sql"
	"time"
)

// UpsertContact inserts or updates a contact record.
func (db *DB) UpsertContact(c *Contact) error {
	_, err := db.Exec(`
		INSERT INTO contacts (contact_id, name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`,
		c.ContactID, c.Name, time.Now().UnixMilli())
	return err
}

// GetContact returns a contact by id, or nil.
func (db *DB) GetContact(contactID string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`SELECT contact_id, name FROM contacts WHERE contact_id = ?`, contactID).
		Scan(&c.ContactID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ContactName resolves a display name for a contact id, falling back to
// the id itself when the contact is unknown.
func (db *DB) ContactName(contactID string) string {
	c, err := db.GetContact(contactID)
	if err != nil || c == nil || c.Name == "" {
		return contactID
	}
	return c.Name
}
