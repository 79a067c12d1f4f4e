package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/port-messenger/portd/internal/bus"
	"github.com/port-messenger/portd/internal/store"
	"go.uber.org/zap"
)

// fakeRelay is a minimal websocket relay: it pushes queued frames to
// the first client and records acks and outbound sends.
type fakeRelay struct {
	upgrader websocket.Upgrader
	frames   []string

	mu       sync.Mutex
	acks     []uint64
	outbound []outboundFrame
	cursors  []string
	ackCh    chan uint64
	sendCh   chan outboundFrame
}

func newFakeRelay(frames ...string) *fakeRelay {
	return &fakeRelay{
		frames: frames,
		ackCh:  make(chan uint64, 16),
		sendCh: make(chan outboundFrame, 16),
	}
}

func (f *fakeRelay) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.cursors = append(f.cursors, r.URL.Query().Get("cursor"))
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	for _, frame := range f.frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		switch probe.Type {
		case "ack":
			var ack ackFrame
			if err := json.Unmarshal(raw, &ack); err == nil {
				f.mu.Lock()
				f.acks = append(f.acks, ack.Seq)
				f.mu.Unlock()
				f.ackCh <- ack.Seq
			}
		case "send":
			var out outboundFrame
			if err := json.Unmarshal(raw, &out); err == nil {
				f.mu.Lock()
				f.outbound = append(f.outbound, out)
				f.mu.Unlock()
				f.sendCh <- out
			}
		}
	}
}

func testRelay(t *testing.T, fake *fakeRelay) (*Relay, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return NewRelay(url, 100*time.Millisecond, db, bus.New(), zap.NewNop()), db
}

func TestRelayDeliversAndAcks(t *testing.T) {
	fake := newFakeRelay(`{"chatId":"C1","messageId":"m1","contentType":"text","data":{"text":"hi"},"timestamp":1000,"seq":7}`)
	relay, db := testRelay(t, fake)

	var mu sync.Mutex
	var got []*Envelope
	relay.SetHandler(func(_ context.Context, env *Envelope) error {
		mu.Lock()
		got = append(got, env)
		mu.Unlock()
		return nil
	})

	relay.Start(context.Background())
	defer relay.Stop()

	select {
	case seq := <-fake.ackCh:
		if seq != 7 {
			t.Errorf("acked seq = %d, want 7", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ack")
	}

	mu.Lock()
	if len(got) != 1 || got[0].ChatID != "C1" || got[0].MessageID != "m1" {
		t.Errorf("handler got %+v", got)
	}
	mu.Unlock()

	// The acked seq becomes the resume cursor.
	cursor, err := db.GetSyncState("relay_cursor")
	if err != nil {
		t.Fatal(err)
	}
	if cursor != "7" {
		t.Errorf("cursor = %q, want 7", cursor)
	}
}

func TestRelayLeavesFailedEnvelopeUnacked(t *testing.T) {
	fake := newFakeRelay(`{"chatId":"C1","messageId":"m1","contentType":"text","data":{"text":"hi"},"timestamp":1000,"seq":3}`)
	relay, db := testRelay(t, fake)

	relay.SetHandler(func(context.Context, *Envelope) error {
		return errors.New("store down")
	})

	relay.Start(context.Background())
	defer relay.Stop()

	select {
	case seq := <-fake.ackCh:
		t.Fatalf("failed envelope was acked with seq %d", seq)
	case <-time.After(300 * time.Millisecond):
	}
	if cursor, _ := db.GetSyncState("relay_cursor"); cursor != "" {
		t.Errorf("cursor advanced to %q despite failure", cursor)
	}
}

func TestRelaySkipsMalformedFrames(t *testing.T) {
	fake := newFakeRelay(
		`{"this is": "not an envelope"}`,
		`{"chatId":"C1","messageId":"m2","contentType":"text","data":{"text":"ok"},"timestamp":1000,"seq":2}`,
	)
	relay, _ := testRelay(t, fake)

	var mu sync.Mutex
	var ids []string
	relay.SetHandler(func(_ context.Context, env *Envelope) error {
		mu.Lock()
		ids = append(ids, env.MessageID)
		mu.Unlock()
		return nil
	})

	relay.Start(context.Background())
	defer relay.Stop()

	select {
	case <-fake.ackCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ack of valid frame")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 1 || ids[0] != "m2" {
		t.Errorf("handled ids = %v, want [m2]", ids)
	}
}

func TestRelaySendsOutbound(t *testing.T) {
	fake := newFakeRelay()
	relay, _ := testRelay(t, fake)
	relay.SetHandler(func(context.Context, *Envelope) error { return nil })

	relay.Start(context.Background())
	defer relay.Stop()

	// Wait until connected; Send fails before the dial completes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := relay.Send(context.Background(), "C1", "text", json.RawMessage(`{"text":"yo"}`))
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Send never succeeded: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case out := <-fake.sendCh:
		if out.ChatID != "C1" || out.ContentType != "text" {
			t.Errorf("outbound = %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outbound frame")
	}
}

func TestRelayResumesFromCursor(t *testing.T) {
	fake := newFakeRelay()
	relay, db := testRelay(t, fake)
	relay.SetHandler(func(context.Context, *Envelope) error { return nil })

	if err := db.SetSyncState("relay_cursor", "42"); err != nil {
		t.Fatal(err)
	}

	relay.Start(context.Background())
	defer relay.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		fake.mu.Lock()
		n := len(fake.cursors)
		var first string
		if n > 0 {
			first = fake.cursors[0]
		}
		fake.mu.Unlock()
		if n > 0 {
			if first != "42" {
				t.Errorf("dial cursor = %q, want 42", first)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("relay never dialed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
