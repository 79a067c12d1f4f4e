package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/port-messenger/portd/internal/bus"
	"github.com/port-messenger/portd/internal/store"
	"go.uber.org/zap"
)

const cursorKey = "relay_cursor"

// outboundFrame is the wire shape for payloads handed back to the relay.
type outboundFrame struct {
	Type        string          `json:"type"`
	ChatID      string          `json:"chatId"`
	ContentType string          `json:"contentType"`
	Data        json.RawMessage `json:"data"`
}

// ackFrame acknowledges a processed (or duplicate) envelope.
type ackFrame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

// Relay is a websocket client for the local relay collaborator. It
// reads envelope frames, hands them to the registered handler, acks on
// success, and reconnects with backoff when the feed drops.
type Relay struct {
	url       string
	reconnect time.Duration
	handler   Handler
	db        *store.DB
	bus       *bus.Bus
	logger    *zap.Logger

	mu     sync.Mutex // guards conn writes
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay creates a relay client. The handler must be registered with
// SetHandler before Start.
func NewRelay(url string, reconnect time.Duration, db *store.DB, b *bus.Bus, logger *zap.Logger) *Relay {
	if reconnect <= 0 {
		reconnect = 2 * time.Second
	}
	return &Relay{
		url:       url,
		reconnect: reconnect,
		db:        db,
		bus:       b,
		logger:    logger,
	}
}

// SetHandler registers the inbound envelope handler.
func (r *Relay) SetHandler(h Handler) {
	r.handler = h
}

// Start runs the read loop in the background until Stop.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Stop tears down the connection and waits for the loop to exit.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Lock()
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.mu.Unlock()
	if r.done != nil {
		<-r.done
	}
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("relay feed dropped", zap.Error(err))
			r.bus.Publish(bus.Event{Kind: bus.KindRelayDropped, Timestamp: time.Now()})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.reconnect):
		}
	}
}

func (r *Relay) connectAndRead(ctx context.Context) error {
	url := r.url
	if cursor, err := r.db.GetSyncState(cursorKey); err == nil && cursor != "" {
		url = fmt.Sprintf("%s?cursor=%s", r.url, cursor)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		_ = conn.Close()
	}()

	r.logger.Info("relay connected", zap.String("url", r.url))
	r.bus.Publish(bus.Event{Kind: bus.KindRelayConnected, Timestamp: time.Now()})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := ParseEnvelope(raw)
		if err != nil {
			// Malformed frame: log and drop, there is nothing to retry.
			r.logger.Error("bad relay frame", zap.Error(err))
			continue
		}
		if r.handler == nil {
			continue
		}
		if err := r.handler(ctx, env); err != nil {
			// Leave unacked so the relay redelivers.
			r.logger.Error("envelope processing failed",
				zap.String("chat_id", env.ChatID),
				zap.String("message_id", env.MessageID),
				zap.Error(err))
			continue
		}
		r.ack(env.Seq)
	}
}

func (r *Relay) ack(seq uint64) {
	if seq == 0 {
		return
	}
	r.mu.Lock()
	conn := r.conn
	if conn != nil {
		_ = conn.WriteJSON(ackFrame{Type: "ack", Seq: seq})
	}
	r.mu.Unlock()
	if err := r.db.SetSyncState(cursorKey, strconv.FormatUint(seq, 10)); err != nil {
		r.logger.Warn("cursor persist failed", zap.Error(err))
	}
}

// Send hands an outbound payload to the relay.
func (r *Relay) Send(_ context.Context, chatID, contentType string, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("relay not connected")
	}
	return r.conn.WriteJSON(outboundFrame{
		Type:        "send",
		ChatID:      chatID,
		ContentType: contentType,
		Data:        data,
	})
}
