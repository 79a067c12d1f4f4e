// Package port manages shareable invites. A port is a small bundle a
// peer redeems to form a direct chat; pausing a port keeps it on file
// but refuses new redemptions.
package port

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/port-messenger/portd/internal/store"
	"go.uber.org/zap"
)

const uriScheme = "port://"

// ErrNotFound reports an operation against an unknown port id.
var ErrNotFound = errors.New("port not found")

// bundle is the redeemable payload encoded into the shareable URI.
type bundle struct {
	PortID   string `json:"portId"`
	Label    string `json:"label,omitempty"`
	RelayURL string `json:"relayUrl"`
}

// Manager creates and controls ports.
type Manager struct {
	db       *store.DB
	relayURL string
	logger   *zap.Logger
}

// NewManager creates a port manager. relayURL is baked into every
// bundle so the redeeming peer knows where to rendezvous.
func NewManager(db *store.DB, relayURL string, logger *zap.Logger) *Manager {
	return &Manager{db: db, relayURL: relayURL, logger: logger}
}

// Create mints a new active port and returns it with the shareable URI
// already encoded.
func (m *Manager) Create(label string) (*store.Port, string, error) {
	id := uuid.New().String()
	raw, err := json.Marshal(bundle{PortID: id, Label: label, RelayURL: m.relayURL})
	if err != nil {
		return nil, "", err
	}
	encoded := uriScheme + base64.RawURLEncoding.EncodeToString(raw)

	p := &store.Port{PortID: id, Label: label, Bundle: encoded, State: store.PortActive}
	if err := m.db.CreatePort(p); err != nil {
		return nil, "", err
	}
	m.logger.Info("port created", zap.String("port_id", id), zap.String("label", label))
	return p, encoded, nil
}

// Decode parses a shareable URI back into its bundle fields. Used by
// the redemption flow and by tests; redemption itself is driven by the
// relay handshake.
func Decode(uri string) (portID, label, relayURL string, err error) {
	if len(uri) <= len(uriScheme) || uri[:len(uriScheme)] != uriScheme {
		return "", "", "", fmt.Errorf("not a port uri: %q", uri)
	}
	raw, err := base64.RawURLEncoding.DecodeString(uri[len(uriScheme):])
	if err != nil {
		return "", "", "", fmt.Errorf("decode port uri: %w", err)
	}
	var b bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", "", "", fmt.Errorf("decode port bundle: %w", err)
	}
	if b.PortID == "" {
		return "", "", "", errors.New("port bundle missing portId")
	}
	return b.PortID, b.Label, b.RelayURL, nil
}

// QRPNG renders the port's shareable URI as a PNG QR code.
func (m *Manager) QRPNG(portID string, size int) ([]byte, error) {
	p, err := m.db.GetPort(portID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(p.Bundle, qrcode.Medium, size)
}

// Pause stops a port from accepting new redemptions.
func (m *Manager) Pause(portID string) error {
	return m.setState(portID, store.PortPaused)
}

// Resume reactivates a paused port.
func (m *Manager) Resume(portID string) error {
	return m.setState(portID, store.PortActive)
}

func (m *Manager) setState(portID, state string) error {
	if err := m.db.SetPortState(portID, state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	m.logger.Info("port state changed", zap.String("port_id", portID), zap.String("state", state))
	return nil
}

// List returns all ports, newest first.
func (m *Manager) List() ([]store.Port, error) {
	return m.db.ListPorts()
}
