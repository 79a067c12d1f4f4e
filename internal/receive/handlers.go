package receive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/port-messenger/portd/internal/bus"
	"github.com/port-messenger/portd/internal/content"
	"github.com/port-messenger/portd/internal/store"
	"go.uber.org/zap"
)

// receiveVisible is the common path for content that shows up as a
// regular message: persist + summary bump, then notify if permitted.
func (a *action) receiveVisible(ctx context.Context, preview string) error {
	if err := a.persist(store.CountIncrement, preview); err != nil {
		return err
	}
	a.notifyIfPermitted(ctx, preview)
	return nil
}

// receiveMedia behaves like a visible message and additionally asks
// the media collaborator to fetch the attachment when auto-download is
// on for this chat.
func (a *action) receiveMedia(ctx context.Context, p content.Media) error {
	preview := p.PreviewText()
	if err := a.persist(store.CountIncrement, preview); err != nil {
		return err
	}

	if perms := a.currentPermissions(); perms != nil && perms.AutoDownload {
		a.d.bus.Publish(bus.Event{
			Kind:      bus.KindMediaDownload,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"chat_id":  a.chatID,
				"media_id": p.MediaID,
				"mime":     p.MimeType,
			},
		})
	}

	a.notifyIfPermitted(ctx, preview)
	return nil
}

// receiveDisappearingChange records the timer change as an
// informational message (preview updates, unread count does not move),
// applies the new timeout to the chat's permissions, and echoes the
// change back to the peer on direct chats so both sides converge.
// No notification: timer changes are ambient, not conversational.
func (a *action) receiveDisappearingChange(_ context.Context, p content.DisappearingChange) error {
	if err := a.persist(store.CountUnchanged, a.payload.PreviewText()); err != nil {
		return err
	}

	timeout := p.TimeoutSeconds
	if err := a.d.store.UpdatePermissions(a.permissionsID(), &store.PermissionPatch{
		DisappearingMessages: &timeout,
	}); err != nil {
		// The message is already persisted; a failed timer update is
		// recoverable on the next change, so log rather than fail the
		// action and trigger a redelivery of a stored message.
		a.d.logger.Error("disappearing timer update failed",
			zap.String("chat_id", a.chatID), zap.Error(err))
		return nil
	}

	if a.conn.Kind == store.ChatDirect {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal disappearing echo: %w", err)
		}
		if err := a.d.store.QueueOutbox(uuid.New().String(), a.chatID, string(content.TypeDisappearingChange), string(data)); err != nil {
			a.d.logger.Error("disappearing echo enqueue failed",
				zap.String("chat_id", a.chatID), zap.Error(err))
		}
	}
	return nil
}

// receiveCallSignal persists a call record and routes the signal to
// the call side channel instead of a text notification. The calling
// permission gates the side channel, not the record.
func (a *action) receiveCallSignal(_ context.Context, p content.CallSignal) error {
	if err := a.persist(store.CountIncrement, a.payload.PreviewText()); err != nil {
		return err
	}

	perms := a.currentPermissions()
	if perms == nil || !perms.Calling {
		a.d.logger.Info("call signal suppressed by permissions",
			zap.String("chat_id", a.chatID), zap.String("call_id", p.CallID))
		return nil
	}

	a.d.metrics.CallSignals.Inc()
	a.d.bus.Publish(bus.Event{
		Kind:      bus.KindCallSignal,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_id": a.chatID,
			"call_id": p.CallID,
			"signal":  string(p.Signal),
		},
	})
	return nil
}

// receiveContactShare persists the share like a visible message and,
// when contact sharing is allowed for this chat, surfaces the shared
// port to the contact flow.
func (a *action) receiveContactShare(ctx context.Context, p content.ContactShare) error {
	preview := p.PreviewText()
	if err := a.persist(store.CountIncrement, preview); err != nil {
		return err
	}

	if perms := a.currentPermissions(); perms != nil && perms.ContactSharing {
		a.d.bus.Publish(bus.Event{
			Kind:      bus.KindPortShared,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"chat_id": a.chatID,
				"port_id": p.PortID,
				"name":    p.Name,
			},
		})
	}

	a.notifyIfPermitted(ctx, preview)
	return nil
}

// applyReceipt moves referenced messages' statuses forward. Status
// transitions are monotonic in the store, so replays are harmless.
func (a *action) applyReceipt(r content.Receipt) error {
	to := store.StatusDelivered
	if r.Read {
		to = store.StatusRead
	}
	for _, id := range r.MessageIDs {
		if err := a.d.store.UpdateMessageStatus(a.chatID, id, to); err != nil {
			return &StorageError{Op: "receipt status update", Err: err}
		}
	}
	return nil
}

// persist writes the message and the refreshed conversation summary as
// one unit. Group messages record the sender and prefix the preview
// with the sender's display name.
func (a *action) persist(countAction store.CountAction, preview string) error {
	data, err := json.Marshal(a.payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	summaryText := preview
	senderID := ""
	if a.conn.Kind == store.ChatGroup {
		senderID = a.senderID
		if senderID != "" {
			summaryText = a.d.store.ContactName(senderID) + ": " + preview
		}
	}

	msg := &store.Message{
		ChatID:      a.chatID,
		MessageID:   a.messageID,
		SenderID:    senderID,
		ContentType: string(a.payload.ContentType()),
		Data:        string(data),
		Timestamp:   a.timestamp,
		Status:      store.StatusDelivered,
	}
	delta := &store.ConnectionDelta{
		ChatID:            a.chatID,
		Text:              summaryText,
		RecentMessageType: string(a.payload.ContentType()),
		LatestMessageID:   a.messageID,
		ReadStatus:        store.StatusDelivered,
		Timestamp:         a.timestamp,
	}

	if err := a.d.store.AppendInbound(msg, delta, countAction); err != nil {
		return &StorageError{Op: "append inbound", Err: err}
	}

	a.d.metrics.MessagesStored.Inc()
	a.d.bus.Publish(bus.Event{
		Kind:      bus.KindMessageStored,
		Timestamp: time.Now(),
		Payload:   map[string]string{"chat_id": a.chatID, "message_id": a.messageID},
	})
	return nil
}

// currentPermissions reads the chat's permissions at processing time.
// A fetch failure is treated as "unknowable" and logged; callers see
// nil and fail closed on their side effect.
func (a *action) currentPermissions() *store.Permissions {
	perms, err := a.d.store.GetChatPermissions(a.chatID, a.conn.Kind)
	if err != nil {
		a.d.logger.Warn("permission fetch failed, failing closed",
			zap.String("chat_id", a.chatID), zap.Error(err))
		return nil
	}
	return perms
}

// notifyIfPermitted emits a notification request when the chat allows
// it. Dispatch is fire-and-forget: notification errors are logged and
// never fail the action. A disconnected chat still notifies; the flag
// only demotes the rendering via showAsActive.
func (a *action) notifyIfPermitted(_ context.Context, body string) {
	perms := a.currentPermissions()
	if perms == nil || !perms.Notifications {
		return
	}

	title := a.conn.Name
	showAsActive := !a.conn.Disconnected

	a.d.metrics.Notifications.Inc()
	go func() {
		if err := a.d.notifier.Notify(title, body, showAsActive, a.chatID); err != nil {
			a.d.logger.Warn("notification dispatch failed",
				zap.String("chat_id", a.chatID), zap.Error(err))
		}
	}()
}

// permissionsID resolves the permission key for this chat: direct
// chats key by the peer line id, groups by the group's chat id.
func (a *action) permissionsID() string {
	if a.conn.PermissionsID != "" {
		return a.conn.PermissionsID
	}
	if a.conn.Kind == store.ChatDirect && a.conn.LineID != "" {
		return a.conn.LineID
	}
	return a.chatID
}
