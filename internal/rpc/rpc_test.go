package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/port-messenger/portd/internal/bus"
	"github.com/port-messenger/portd/internal/metrics"
	"github.com/port-messenger/portd/internal/outbox"
	"github.com/port-messenger/portd/internal/permission"
	"github.com/port-messenger/portd/internal/port"
	"github.com/port-messenger/portd/internal/status"
	"github.com/port-messenger/portd/internal/store"
	"go.uber.org/zap"
)

type nullTransport struct{}

func (nullTransport) Send(context.Context, string, string, json.RawMessage) error { return nil }

func testServer(t *testing.T) (*Client, *store.DB) {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.UpsertConnection(&store.Connection{
		ChatID: "C1", LineID: "L1", Kind: store.ChatDirect, Name: "Alice", PermissionsID: "L1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.EnsurePermissions("L1"); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	handlers := NewHandlers(
		"main",
		status.NewMachine(b),
		db,
		permission.NewGate(db, nil, logger),
		outbox.NewSender(db, nullTransport{}, b, metrics.New(), logger),
		port.NewManager(db, "wss://relay.example.net/v1", logger),
	)

	socketPath := filepath.Join(dir, "daemon.sock")
	srv, err := NewServer(socketPath, handlers, logger)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	return NewClient(socketPath), db
}

func TestStatus(t *testing.T) {
	client, _ := testServer(t)

	var result map[string]string
	if err := client.Call(context.Background(), "status", nil, &result); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if result["session"] != "main" {
		t.Errorf("session = %q", result["session"])
	}
	if result["state"] != string(status.Booting) {
		t.Errorf("state = %q, want booting", result["state"])
	}
	if result["version"] != Version {
		t.Errorf("version = %q", result["version"])
	}
}

func TestSendTextAndListMessages(t *testing.T) {
	client, _ := testServer(t)
	ctx := context.Background()

	var sent map[string]string
	err := client.Call(ctx, "send.text",
		map[string]string{"chatId": "C1", "text": "hello"}, &sent)
	if err != nil {
		t.Fatalf("send.text error = %v", err)
	}
	if sent["clientMsgId"] == "" {
		t.Fatal("no clientMsgId returned")
	}

	var msgs []MessageInfo
	err = client.Call(ctx, "messages.list",
		map[string]any{"chatId": "C1", "limit": 10}, &msgs)
	if err != nil {
		t.Fatalf("messages.list error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].MessageID != sent["clientMsgId"] {
		t.Errorf("messages = %+v", msgs)
	}

	var conns []ConnectionInfo
	if err := client.Call(ctx, "connections.list", nil, &conns); err != nil {
		t.Fatalf("connections.list error = %v", err)
	}
	if len(conns) != 1 || conns[0].Text != "hello" {
		t.Errorf("connections = %+v", conns)
	}
}

func TestSendTextUnknownChat(t *testing.T) {
	client, _ := testServer(t)

	err := client.Call(context.Background(), "send.text",
		map[string]string{"chatId": "C404", "text": "hi"}, nil)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
	if re.Code != codeInvalidParams {
		t.Errorf("code = %d, want invalid params", re.Code)
	}
}

func TestPermissionsGetAndSet(t *testing.T) {
	client, db := testServer(t)
	ctx := context.Background()

	var perms PermissionsInfo
	if err := client.Call(ctx, "permissions.get", map[string]string{"chatId": "C1"}, &perms); err != nil {
		t.Fatalf("permissions.get error = %v", err)
	}
	if !perms.Notifications || perms.AutoDownload {
		t.Errorf("defaults = %+v", perms)
	}

	err := client.Call(ctx, "permissions.set",
		map[string]any{"chatId": "C1", "field": "auto_download", "enabled": true}, nil)
	if err != nil {
		t.Fatalf("permissions.set error = %v", err)
	}
	stored, _ := db.GetPermissions("L1")
	if !stored.AutoDownload {
		t.Error("auto_download not applied")
	}

	err = client.Call(ctx, "permissions.set",
		map[string]any{"chatId": "C1", "disappearingSeconds": int64(86400)}, nil)
	if err != nil {
		t.Fatalf("disappearing set error = %v", err)
	}
	stored, _ = db.GetPermissions("L1")
	if stored.DisappearingMessages != 86400 {
		t.Errorf("disappearing = %d, want 86400", stored.DisappearingMessages)
	}
}

func TestPortLifecycle(t *testing.T) {
	client, _ := testServer(t)
	ctx := context.Background()

	var created PortInfo
	if err := client.Call(ctx, "port.create", map[string]string{"label": "work"}, &created); err != nil {
		t.Fatalf("port.create error = %v", err)
	}
	if created.PortID == "" || created.URI == "" || created.State != store.PortActive {
		t.Fatalf("created = %+v", created)
	}

	if err := client.Call(ctx, "port.pause", map[string]string{"portId": created.PortID}, nil); err != nil {
		t.Fatalf("port.pause error = %v", err)
	}
	var ports []PortInfo
	if err := client.Call(ctx, "port.list", nil, &ports); err != nil {
		t.Fatalf("port.list error = %v", err)
	}
	if len(ports) != 1 || ports[0].State != store.PortPaused {
		t.Errorf("ports = %+v", ports)
	}

	var qr map[string]string
	if err := client.Call(ctx, "port.qr", map[string]string{"portId": created.PortID}, &qr); err != nil {
		t.Fatalf("port.qr error = %v", err)
	}
	if qr["png"] == "" {
		t.Error("empty QR payload")
	}
}

func TestMethodNotFound(t *testing.T) {
	client, _ := testServer(t)

	err := client.Call(context.Background(), "no.such.method", nil, nil)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
	if re.Code != codeMethodNotFound {
		t.Errorf("code = %d, want method not found", re.Code)
	}
}
