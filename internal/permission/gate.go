// Package permission implements the per-chat policy gate and the
// optimistic toggle flow used by permission updates that have a remote
// counterpart on the peer side.
package permission

import (
	"context"
	"fmt"

	"github.com/port-messenger/portd/internal/store"
	"go.uber.org/zap"
)

// Field names a toggleable permission.
type Field string

const (
	FieldNotifications  Field = "notifications"
	FieldCalling        Field = "calling"
	FieldContactSharing Field = "contact_sharing"
	FieldDisplayPicture Field = "display_picture"
	FieldReadReceipts   Field = "read_receipts"
	FieldAutoDownload   Field = "auto_download"
	FieldFocus          Field = "focus"
)

// remoteBacked lists the permissions whose change must also be pushed
// to the peer. The rest are purely local.
var remoteBacked = map[Field]bool{
	FieldNotifications:  true,
	FieldCalling:        true,
	FieldContactSharing: true,
}

// Remote pushes a permission change to the peer. The transport
// collaborator owns delivery; the gate only cares about success or
// failure of the push.
type Remote interface {
	PushPermission(ctx context.Context, permissionsID string, field Field, enabled bool) error
}

// Gate wraps permission reads and optimistic toggle updates.
type Gate struct {
	db     *store.DB
	remote Remote
	logger *zap.Logger
}

// NewGate creates a permission gate. remote may be nil when the daemon
// runs without a transport (all toggles then stay local).
func NewGate(db *store.DB, remote Remote, logger *zap.Logger) *Gate {
	return &Gate{db: db, remote: remote, logger: logger}
}

// ForChat returns the current permission set for a chat.
func (g *Gate) ForChat(chatID string, kind store.ChatKind) (*store.Permissions, error) {
	return g.db.GetChatPermissions(chatID, kind)
}

// Toggle flips a boolean permission using the optimistic pattern:
// apply locally first, push to the peer when the field has a remote
// counterpart, and revert the local value if the push fails.
func (g *Gate) Toggle(ctx context.Context, permissionsID string, field Field, enabled bool) error {
	prior, err := g.db.GetPermissions(permissionsID)
	if err != nil {
		return fmt.Errorf("read permissions: %w", err)
	}
	if prior == nil {
		return fmt.Errorf("no permissions under %q", permissionsID)
	}

	if err := g.db.UpdatePermissions(permissionsID, patchFor(field, enabled)); err != nil {
		return fmt.Errorf("apply local: %w", err)
	}

	if !remoteBacked[field] || g.remote == nil {
		return nil
	}

	if err := g.remote.PushPermission(ctx, permissionsID, field, enabled); err != nil {
		priorValue := fieldValue(prior, field)
		if revertErr := g.db.UpdatePermissions(permissionsID, patchFor(field, priorValue)); revertErr != nil {
			g.logger.Error("permission revert failed",
				zap.String("permissions_id", permissionsID),
				zap.String("field", string(field)),
				zap.Error(revertErr))
		}
		return fmt.Errorf("remote push for %s: %w", field, err)
	}
	return nil
}

// SetDisappearing updates the disappearing-message timeout locally.
// The reactive echo to the peer is the receive pipeline's concern; the
// user-initiated path enqueues its own outbox notice.
func (g *Gate) SetDisappearing(permissionsID string, timeoutSeconds int64) error {
	return g.db.UpdatePermissions(permissionsID, &store.PermissionPatch{
		DisappearingMessages: &timeoutSeconds,
	})
}

func patchFor(field Field, enabled bool) *store.PermissionPatch {
	v := enabled
	p := &store.PermissionPatch{}
	switch field {
	case FieldNotifications:
		p.Notifications = &v
	case FieldCalling:
		p.Calling = &v
	case FieldContactSharing:
		p.ContactSharing = &v
	case FieldDisplayPicture:
		p.DisplayPicture = &v
	case FieldReadReceipts:
		p.ReadReceipts = &v
	case FieldAutoDownload:
		p.AutoDownload = &v
	case FieldFocus:
		p.Focus = &v
	}
	return p
}

func fieldValue(p *store.Permissions, field Field) bool {
	switch field {
	case FieldNotifications:
		return p.Notifications
	case FieldCalling:
		return p.Calling
	case FieldContactSharing:
		return p.ContactSharing
	case FieldDisplayPicture:
		return p.DisplayPicture
	case FieldReadReceipts:
		return p.ReadReceipts
	case FieldAutoDownload:
		return p.AutoDownload
	case FieldFocus:
		return p.Focus
	}
	return false
}
