package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedConnection(t *testing.T, db *DB, chatID string) {
	t.Helper()
	if err := db.UpsertConnection(&Connection{
		ChatID:        chatID,
		LineID:        "line-" + chatID,
		Kind:          ChatDirect,
		Name:          "Peer " + chatID,
		PermissionsID: "line-" + chatID,
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.EnsurePermissions("line-" + chatID); err != nil {
		t.Fatal(err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
}

func TestConnectionUpsertAndList(t *testing.T) {
	db := testDB(t)

	c := &Connection{ChatID: "c1", Kind: ChatDirect, Name: "Alice", LineID: "l1"}
	if err := db.UpsertConnection(c); err != nil {
		t.Fatal(err)
	}

	c.Name = "Alice Updated"
	if err := db.UpsertConnection(c); err != nil {
		t.Fatal(err)
	}

	conns, err := db.ListConnections(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 {
		t.Fatalf("got %d connections, want 1", len(conns))
	}
	if conns[0].Name != "Alice Updated" {
		t.Errorf("name = %q, want Alice Updated", conns[0].Name)
	}
}

func TestGetConnectionMissing(t *testing.T) {
	db := testDB(t)

	c, err := db.GetConnection("missing")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("expected nil for missing connection")
	}
}

func TestAppendMessageDuplicate(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	msg := &Message{ChatID: "c1", MessageID: "m1", ContentType: "text", Data: `{"text":"hi"}`, Timestamp: 1000, Status: StatusDelivered}
	if err := db.AppendMessage(msg); err != nil {
		t.Fatal(err)
	}

	err := db.AppendMessage(msg)
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("second append error = %v, want ErrDuplicateMessage", err)
	}

	msgs, err := db.ListMessages("c1", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}

func TestHasMessage(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	ok, err := db.HasMessage("c1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("HasMessage true before append")
	}

	if err := db.AppendMessage(&Message{ChatID: "c1", MessageID: "m1", ContentType: "text", Timestamp: 1, Status: StatusDelivered}); err != nil {
		t.Fatal(err)
	}

	ok, err = db.HasMessage("c1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("HasMessage false after append")
	}

	// Same message id on a different chat is a different message.
	ok, err = db.HasMessage("c2", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("HasMessage leaked across chats")
	}
}

func TestAppendInboundUpdatesSummary(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	msg := &Message{ChatID: "c1", MessageID: "m1", ContentType: "text", Data: `{"text":"hi"}`, Timestamp: 1000, Status: StatusDelivered}
	delta := &ConnectionDelta{
		ChatID: "c1", Text: "hi", RecentMessageType: "text",
		LatestMessageID: "m1", ReadStatus: StatusDelivered, Timestamp: 1000,
	}
	if err := db.AppendInbound(msg, delta, CountIncrement); err != nil {
		t.Fatal(err)
	}

	conn, err := db.GetConnection("c1")
	if err != nil {
		t.Fatal(err)
	}
	if conn.Text != "hi" || conn.LatestMessageID != "m1" || conn.UnreadCount != 1 {
		t.Errorf("summary = %+v, want text=hi latest=m1 unread=1", conn)
	}
	if conn.LastTimestamp != 1000 {
		t.Errorf("last_timestamp = %d, want 1000", conn.LastTimestamp)
	}
}

func TestAppendInboundDuplicateLeavesSummaryAlone(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	msg := &Message{ChatID: "c1", MessageID: "m1", ContentType: "text", Timestamp: 1000, Status: StatusDelivered}
	delta := &ConnectionDelta{ChatID: "c1", Text: "hi", LatestMessageID: "m1", ReadStatus: StatusDelivered, Timestamp: 1000}

	if err := db.AppendInbound(msg, delta, CountIncrement); err != nil {
		t.Fatal(err)
	}
	err := db.AppendInbound(msg, delta, CountIncrement)
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("duplicate AppendInbound error = %v, want ErrDuplicateMessage", err)
	}

	conn, _ := db.GetConnection("c1")
	if conn.UnreadCount != 1 {
		t.Errorf("unread = %d after duplicate, want 1 (tx must roll back)", conn.UnreadCount)
	}
}

func TestAppendInboundUnknownChatRollsBack(t *testing.T) {
	db := testDB(t)
	// No connection row for c9: the summary update must fail and roll
	// back the message insert with it.
	msg := &Message{ChatID: "c9", MessageID: "m1", ContentType: "text", Timestamp: 1000, Status: StatusDelivered}
	delta := &ConnectionDelta{ChatID: "c9", Text: "hi", LatestMessageID: "m1", ReadStatus: StatusDelivered, Timestamp: 1000}

	if err := db.AppendInbound(msg, delta, CountIncrement); err == nil {
		t.Fatal("AppendInbound should fail without a connection row")
	}

	ok, err := db.HasMessage("c9", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("message persisted despite summary failure")
	}
}

func TestCountActions(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	delta := func(id string, ts int64) *ConnectionDelta {
		return &ConnectionDelta{ChatID: "c1", Text: "x", LatestMessageID: id, ReadStatus: StatusDelivered, Timestamp: ts}
	}

	if err := db.UpdateConnectionOnNewMessage(delta("m1", 1), CountIncrement); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateConnectionOnNewMessage(delta("m2", 2), CountIncrement); err != nil {
		t.Fatal(err)
	}
	conn, _ := db.GetConnection("c1")
	if conn.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", conn.UnreadCount)
	}

	if err := db.UpdateConnectionOnNewMessage(delta("m3", 3), CountUnchanged); err != nil {
		t.Fatal(err)
	}
	conn, _ = db.GetConnection("c1")
	if conn.UnreadCount != 2 {
		t.Errorf("unread = %d after unchanged, want 2", conn.UnreadCount)
	}
	if conn.LatestMessageID != "m3" {
		t.Errorf("latest = %q, want m3 (unchanged still refreshes preview)", conn.LatestMessageID)
	}

	if err := db.UpdateConnectionOnNewMessage(delta("m4", 4), CountReset); err != nil {
		t.Fatal(err)
	}
	conn, _ = db.GetConnection("c1")
	if conn.UnreadCount != 0 {
		t.Errorf("unread = %d after reset, want 0", conn.UnreadCount)
	}
}

func TestUpdateMessageStatusMonotonic(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	if err := db.AppendMessage(&Message{ChatID: "c1", MessageID: "m1", ContentType: "text", Timestamp: 1, Status: StatusDelivered}); err != nil {
		t.Fatal(err)
	}

	if err := db.UpdateMessageStatus("c1", "m1", StatusRead); err != nil {
		t.Fatal(err)
	}
	m, _ := db.GetMessageByID("c1", "m1")
	if m.Status != StatusRead {
		t.Errorf("status = %q, want read", m.Status)
	}

	// Regression must be ignored.
	if err := db.UpdateMessageStatus("c1", "m1", StatusPending); err != nil {
		t.Fatal(err)
	}
	m, _ = db.GetMessageByID("c1", "m1")
	if m.Status != StatusRead {
		t.Errorf("status regressed to %q, want read", m.Status)
	}
}

func TestMarkConnectionRead(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	d := &ConnectionDelta{ChatID: "c1", Text: "x", LatestMessageID: "m1", ReadStatus: StatusDelivered, Timestamp: 1}
	if err := db.UpdateConnectionOnNewMessage(d, CountIncrement); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkConnectionRead("c1"); err != nil {
		t.Fatal(err)
	}
	conn, _ := db.GetConnection("c1")
	if conn.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", conn.UnreadCount)
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)
	seedConnection(t, db, "c1")

	if err := db.QueueOutbox("client1", "c1", "text", `{"text":"hello"}`); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ClientMsgID != "client1" || pending[0].ContentType != "text" {
		t.Errorf("entry = %+v", pending[0])
	}

	if err := db.MarkOutboxSending("client1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("client1"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}
}

func TestContact(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertContact(&Contact{ContactID: "p1", Name: "John"}); err != nil {
		t.Fatal(err)
	}
	if got := db.ContactName("p1"); got != "John" {
		t.Errorf("ContactName = %q, want John", got)
	}
	if got := db.ContactName("unknown"); got != "unknown" {
		t.Errorf("ContactName fallback = %q, want unknown", got)
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)

	v, err := db.GetSyncState("cursor")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Errorf("unset key = %q, want empty", v)
	}

	if err := db.SetSyncState("cursor", "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncState("cursor", "43"); err != nil {
		t.Fatal(err)
	}
	v, err = db.GetSyncState("cursor")
	if err != nil {
		t.Fatal(err)
	}
	if v != "43" {
		t.Errorf("cursor = %q, want 43", v)
	}
}
