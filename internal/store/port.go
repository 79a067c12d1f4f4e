package store

import (
	"database/sql"
	"time"
)

// Port states.
const (
	PortActive = "active"
	PortPaused = "paused"
)

// Port is a shareable invite: redeeming its bundle forms a new direct
// chat. Paused ports are kept but must be refused by the redemption
// flow.
type Port struct {
	PortID    string
	Label     string
	Bundle    string
	State     string
	CreatedAt int64
}

// CreatePort stores a new invite in the active state.
func (db *DB) CreatePort(p *Port) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO ports (port_id, label, bundle, state, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?)`,
		p.PortID, p.Label, p.Bundle, now, now)
	return err
}

// GetPort returns a port by id, or nil if it does not exist.
func (db *DB) GetPort(portID string) (*Port, error) {
	var p Port
	err := db.QueryRow(`
		SELECT port_id, label, bundle, state, created_at
		FROM ports WHERE port_id = ?`, portID).
		Scan(&p.PortID, &p.Label, &p.Bundle, &p.State, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPorts returns all ports, newest first.
func (db *DB) ListPorts() ([]Port, error) {
	rows, err := db.Query(`
		SELECT port_id, label, bundle, state, created_at
		FROM ports ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ports []Port
	for rows.Next() {
		var p Port
		if err := rows.Scan(&p.PortID, &p.Label, &p.Bundle, &p.State, &p.CreatedAt); err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, rows.Err()
}

// SetPortState moves a port between active and paused.
func (db *DB) SetPortState(portID, state string) error {
	res, err := db.Exec(`UPDATE ports SET state = ?, updated_at = ? WHERE port_id = ?`,
		state, time.Now().UnixMilli(), portID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
