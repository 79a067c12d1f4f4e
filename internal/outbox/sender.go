// Package outbox drains queued outgoing payloads to the relay: user
// sends enqueued over the control API plus reactive echoes produced by
// the receive pipeline.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/port-messenger/portd/internal/bus"
	"github.com/port-messenger/portd/internal/content"
	"github.com/port-messenger/portd/internal/metrics"
	"github.com/port-messenger/portd/internal/store"
	"github.com/port-messenger/portd/internal/transport"
	"go.uber.org/zap"
)

// Sender drains the outbox through the relay transport.
type Sender struct {
	db      *store.DB
	tx      transport.Sender
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, tx transport.Sender, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Sender {
	return &Sender{db: db, tx: tx, bus: b, metrics: m, logger: logger}
}

// SendText enqueues a user text message for a chat. The message is
// recorded locally right away so clients render it without waiting for
// the relay round trip.
func (s *Sender) SendText(chatID, text string) (string, error) {
	conn, err := s.db.GetConnection(chatID)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", &UnknownChatError{ChatID: chatID}
	}

	payload := content.Text{Text: text}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	clientMsgID := uuid.New().String()
	now := time.Now().UnixMilli()

	msg := &store.Message{
		ChatID:      chatID,
		MessageID:   clientMsgID,
		ContentType: string(content.TypeText),
		Data:        string(data),
		Timestamp:   now,
		Status:      store.StatusPending,
	}
	delta := &store.ConnectionDelta{
		ChatID:            chatID,
		Text:              text,
		RecentMessageType: string(content.TypeText),
		LatestMessageID:   clientMsgID,
		ReadStatus:        store.StatusPending,
		Timestamp:         now,
	}
	// Own sends refresh the preview but never count as unread.
	if err := s.db.AppendInbound(msg, delta, store.CountUnchanged); err != nil {
		return "", err
	}

	if err := s.db.QueueOutbox(clientMsgID, chatID, string(content.TypeText), string(data)); err != nil {
		return "", err
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageSendQueued,
		Timestamp: time.Now(),
		Payload:   map[string]string{"chat_id": chatID, "client_msg_id": clientMsgID},
	})
	return clientMsgID, nil
}

// Start begins the drain loop and the relay-reconnect requeue watcher.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	go s.watchReconnect(ctx)
}

// Stop stops the sender.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// watchReconnect returns failed and stuck entries to the queue whenever
// the relay connection is re-established.
func (s *Sender) watchReconnect(ctx context.Context) {
	ch, unsub := s.bus.Subscribe(bus.KindRelayConnected, 4)
	defer unsub()

	for {
		select {
		case <-ch:
			if err := s.db.RequeueOutbox(); err != nil {
				s.logger.Error("outbox requeue failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		if err := s.tx.Send(ctx, entry.ChatID, entry.ContentType, json.RawMessage(entry.Data)); err != nil {
			s.logger.Error("send failed", zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			s.metrics.OutboxFailed.Inc()
			s.bus.Publish(bus.Event{
				Kind:      bus.KindMessageSendFailed,
				Timestamp: time.Now(),
				Payload: map[string]string{
					"chat_id":       entry.ChatID,
					"client_msg_id": entry.ClientMsgID,
					"error":         err.Error(),
				},
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID))
		}
		s.metrics.OutboxSent.Inc()

		// Delivery and read confirmations arrive later as receipts;
		// sent here means handed to the relay.
		if entry.ContentType == string(content.TypeText) {
			_ = s.db.UpdateMessageStatus(entry.ChatID, entry.ClientMsgID, store.StatusSent)
		}

		s.logger.Info("outbox entry sent",
			zap.String("chat_id", entry.ChatID),
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("content_type", entry.ContentType))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageSendAck,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"chat_id":       entry.ChatID,
				"client_msg_id": entry.ClientMsgID,
			},
		})
	}
}
