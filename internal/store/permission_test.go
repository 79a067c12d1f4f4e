package store

import "testing"

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(n int64) *int64 { return &n }

func TestEnsurePermissionsDefaults(t *testing.T) {
	db := testDB(t)

	if err := db.EnsurePermissions("line1"); err != nil {
		t.Fatal(err)
	}
	p, err := db.GetPermissions("line1")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("permissions missing after EnsurePermissions")
	}
	if !p.Notifications || !p.Calling || p.AutoDownload {
		t.Errorf("defaults = %+v", p)
	}
	if p.DisappearingMessages != 0 {
		t.Errorf("disappearing = %d, want 0", p.DisappearingMessages)
	}
}

func TestEnsurePermissionsKeepsExisting(t *testing.T) {
	db := testDB(t)

	if err := db.EnsurePermissions("line1"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdatePermissions("line1", &PermissionPatch{Notifications: boolPtr(false)}); err != nil {
		t.Fatal(err)
	}
	// Re-ensuring must not clobber the stored toggle.
	if err := db.EnsurePermissions("line1"); err != nil {
		t.Fatal(err)
	}
	p, _ := db.GetPermissions("line1")
	if p.Notifications {
		t.Error("EnsurePermissions overwrote an existing row")
	}
}

func TestUpdatePermissionsPartial(t *testing.T) {
	db := testDB(t)

	if err := db.EnsurePermissions("line1"); err != nil {
		t.Fatal(err)
	}
	patch := &PermissionPatch{
		DisappearingMessages: int64Ptr(86400),
		AutoDownload:         boolPtr(true),
	}
	if err := db.UpdatePermissions("line1", patch); err != nil {
		t.Fatal(err)
	}

	p, _ := db.GetPermissions("line1")
	if p.DisappearingMessages != 86400 {
		t.Errorf("disappearing = %d, want 86400", p.DisappearingMessages)
	}
	if !p.AutoDownload {
		t.Error("auto_download not applied")
	}
	if !p.Notifications {
		t.Error("untouched field changed")
	}
}

func TestUpdatePermissionsMissing(t *testing.T) {
	db := testDB(t)
	if err := db.UpdatePermissions("ghost", &PermissionPatch{Notifications: boolPtr(false)}); err == nil {
		t.Error("expected error updating missing permissions")
	}
}

func TestGetChatPermissionsDirectKeysByLine(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConnection(&Connection{
		ChatID: "c1", LineID: "l1", Kind: ChatDirect, PermissionsID: "l1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.EnsurePermissions("l1"); err != nil {
		t.Fatal(err)
	}

	p, err := db.GetChatPermissions("c1", ChatDirect)
	if err != nil {
		t.Fatal(err)
	}
	if p.PermissionsID != "l1" {
		t.Errorf("permissions id = %q, want l1 (direct chats key by line id)", p.PermissionsID)
	}
}

func TestGetChatPermissionsGroupKeysByChat(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConnection(&Connection{
		ChatID: "g1", Kind: ChatGroup, PermissionsID: "g1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.EnsurePermissions("g1"); err != nil {
		t.Fatal(err)
	}

	p, err := db.GetChatPermissions("g1", ChatGroup)
	if err != nil {
		t.Fatal(err)
	}
	if p.PermissionsID != "g1" {
		t.Errorf("permissions id = %q, want g1", p.PermissionsID)
	}
}

func TestGetChatPermissionsUnknownChat(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetChatPermissions("nope", ChatDirect); err == nil {
		t.Error("expected error for unknown chat")
	}
}
