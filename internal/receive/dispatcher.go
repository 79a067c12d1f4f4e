// Package receive implements the inbound message pipeline: classify
// the decrypted payload, guard against duplicate delivery, persist the
// message together with the conversation summary, and run
// permission-gated side effects (notification, call routing, timer
// updates).
package receive

import (
	"context"
	"errors"
	"time"

	"github.com/port-messenger/portd/internal/bus"
	"github.com/port-messenger/portd/internal/content"
	"github.com/port-messenger/portd/internal/metrics"
	"github.com/port-messenger/portd/internal/notify"
	"github.com/port-messenger/portd/internal/store"
	"github.com/port-messenger/portd/internal/transport"
	"go.uber.org/zap"
)

// Store is the persistence surface the pipeline needs. *store.DB
// implements it; tests substitute fault-injecting wrappers.
type Store interface {
	HasMessage(chatID, messageID string) (bool, error)
	AppendInbound(m *store.Message, delta *store.ConnectionDelta, action store.CountAction) error
	GetConnection(chatID string) (*store.Connection, error)
	GetChatPermissions(chatID string, kind store.ChatKind) (*store.Permissions, error)
	UpdatePermissions(permissionsID string, patch *store.PermissionPatch) error
	UpdateMessageStatus(chatID, messageID string, to store.MessageStatus) error
	QueueOutbox(clientMsgID, chatID, contentType, data string) error
	ContactName(contactID string) string
}

// Dispatcher routes classified payloads through their per-type receive
// actions.
type Dispatcher struct {
	store    Store
	notifier notify.Notifier
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	locks    *chatLocks
}

// NewDispatcher creates a receive dispatcher.
func NewDispatcher(st Store, notifier notify.Notifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		notifier: notifier,
		bus:      b,
		metrics:  m,
		logger:   logger,
		locks:    newChatLocks(),
	}
}

// HandleEnvelope is the transport.Handler for inbound envelopes.
//
// A nil return acknowledges the envelope: that covers successful
// processing, duplicates (already durably processed), and decode
// errors (malformed payloads gain nothing from redelivery). Storage
// failures return the error so the relay redelivers.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, env *transport.Envelope) error {
	d.metrics.EnvelopesReceived.WithLabelValues(env.ContentType).Inc()

	payload, err := content.Classify(content.Type(env.ContentType), env.Data)
	if err != nil {
		var de *content.DecodeError
		if errors.As(err, &de) {
			d.metrics.DecodeErrors.Inc()
			d.logger.Warn("dropping undecodable payload",
				zap.String("chat_id", env.ChatID),
				zap.String("message_id", env.MessageID),
				zap.String("content_type", env.ContentType),
				zap.String("reason", de.Reason))
			return nil
		}
		return err
	}

	conn, err := d.store.GetConnection(env.ChatID)
	if err != nil {
		d.metrics.ActionFailures.Inc()
		return &StorageError{Op: "connection lookup", Err: err}
	}
	if conn == nil {
		// No formed chat for this id: the port-redemption flow owns
		// chat creation. Redelivery is the right call once it lands.
		d.metrics.ActionFailures.Inc()
		return &StorageError{Op: "connection lookup", Err: errors.New("no connection for chat " + env.ChatID)}
	}

	act := &action{
		d:         d,
		conn:      conn,
		chatID:    env.ChatID,
		senderID:  env.SenderID,
		messageID: env.MessageID,
		timestamp: env.Timestamp,
		payload:   payload,
	}

	if err := act.perform(ctx); err != nil {
		d.metrics.ActionFailures.Inc()
		return err
	}
	return nil
}

// action is one receive invocation: a single envelope against a single
// chat, direct or group.
type action struct {
	d         *Dispatcher
	conn      *store.Connection
	chatID    string
	senderID  string
	messageID string
	timestamp int64
	payload   content.Payload
}

// perform runs the common receive sequence and the variant extras.
// The per-chat lock spans guard check through persistence so that two
// concurrent deliveries of the same message cannot both pass the guard.
func (a *action) perform(ctx context.Context) error {
	if a.payload == nil {
		return ErrMissingContent
	}

	unlock := a.d.locks.acquire(a.chatID)
	defer unlock()

	// Receipts apply status updates to prior messages and are not
	// themselves persisted; their handling is idempotent without the
	// guard.
	if receipt, ok := a.payload.(content.Receipt); ok {
		return a.applyReceipt(receipt)
	}

	proceed, err := a.shouldProcess()
	if err != nil {
		// Guard check failed: abort before any side effect.
		return err
	}
	if !proceed {
		a.d.metrics.Duplicates.Inc()
		a.d.bus.Publish(bus.Event{
			Kind:      bus.KindMessageDuplicate,
			Timestamp: time.Now(),
			Payload:   map[string]string{"chat_id": a.chatID, "message_id": a.messageID},
		})
		return nil
	}

	switch p := a.payload.(type) {
	case content.Text:
		return a.receiveVisible(ctx, p.PreviewText())
	case content.LinkPreview:
		return a.receiveVisible(ctx, p.PreviewText())
	case content.Media:
		return a.receiveMedia(ctx, p)
	case content.DisappearingChange:
		return a.receiveDisappearingChange(ctx, p)
	case content.CallSignal:
		return a.receiveCallSignal(ctx, p)
	case content.ContactShare:
		return a.receiveContactShare(ctx, p)
	case content.Reaction:
		return a.receiveVisible(ctx, p.PreviewText())
	default:
		return a.receiveVisible(ctx, a.payload.PreviewText())
	}
}

// shouldProcess is the dedup guard: false means this (chatID,
// messageID) pair was already durably processed. A failed existence
// check aborts the action (fail-closed).
func (a *action) shouldProcess() (bool, error) {
	exists, err := a.d.store.HasMessage(a.chatID, a.messageID)
	if err != nil {
		return false, &StorageError{Op: "dedup check", Err: err}
	}
	return !exists, nil
}
