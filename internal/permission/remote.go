package permission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/port-messenger/portd/internal/store"
	"github.com/port-messenger/portd/internal/transport"
)

// permissionUpdate is the wire payload for a pushed permission change.
type permissionUpdate struct {
	Field   string `json:"field"`
	Enabled bool   `json:"enabled"`
}

// RelayRemote pushes remote-backed permission changes to the peer over
// the relay transport.
type RelayRemote struct {
	db *store.DB
	tx transport.Sender
}

// NewRelayRemote creates a relay-backed permission remote.
func NewRelayRemote(db *store.DB, tx transport.Sender) *RelayRemote {
	return &RelayRemote{db: db, tx: tx}
}

// PushPermission sends the change to the chat behind the permission
// key. An unknown key is an error: the caller's local write would
// otherwise silently diverge from the peer.
func (r *RelayRemote) PushPermission(ctx context.Context, permissionsID string, field Field, enabled bool) error {
	conn, err := r.db.GetConnectionByPermissionsID(permissionsID)
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("no connection for permissions id %q", permissionsID)
	}

	data, err := json.Marshal(permissionUpdate{Field: string(field), Enabled: enabled})
	if err != nil {
		return err
	}
	return r.tx.Send(ctx, conn.ChatID, "permission_update", data)
}
