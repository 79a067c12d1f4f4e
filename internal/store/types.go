package store

// ChatKind distinguishes one-to-one lines from group chats.
type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// MessageStatus tracks delivery progress. Transitions are monotonic:
// pending -> delivered -> read.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CountAction tells UpdateConnectionOnNewMessage what to do with the
// unread counter.
type CountAction string

const (
	CountIncrement CountAction = "increment"
	CountReset     CountAction = "reset"
	CountUnchanged CountAction = "unchanged"
)

// Connection is the per-chat conversation summary backing the
// conversation list: preview text, unread counter, last activity.
type Connection struct {
	ChatID            string
	LineID            string // direct chats only: peer session id used for permission RPCs
	Kind              ChatKind
	Name              string
	Text              string // preview of the latest message
	RecentMessageType string
	LatestMessageID   string
	ReadStatus        MessageStatus
	UnreadCount       int
	LastTimestamp     int64
	Disconnected      bool
	PermissionsID     string
}

// ConnectionDelta carries the summary fields refreshed when a new
// message lands on a chat.
type ConnectionDelta struct {
	ChatID            string
	Text              string
	RecentMessageType string
	LatestMessageID   string
	ReadStatus        MessageStatus
	Timestamp         int64
}

// Message is one persisted chat message. Uniquely keyed by
// (chat_id, message_id); the receive pipeline's dedup guard depends on
// that uniqueness.
type Message struct {
	ID          int64
	ChatID      string
	MessageID   string
	SenderID    string // group chats only
	ContentType string
	Data        string // variant payload, JSON
	Timestamp   int64
	Status      MessageStatus
}

// Permissions is the per-chat policy consulted before side effects.
// Direct chats key by line id, groups by group id.
type Permissions struct {
	PermissionsID        string
	Notifications        bool
	Calling              bool
	ContactSharing       bool
	DisplayPicture       bool
	ReadReceipts         bool
	AutoDownload         bool
	DisappearingMessages int64 // seconds, 0 = off
	Focus                bool
}

// DefaultPermissions is the policy applied to a newly formed chat.
func DefaultPermissions(id string) *Permissions {
	return &Permissions{
		PermissionsID:  id,
		Notifications:  true,
		Calling:        true,
		ContactSharing: true,
		DisplayPicture: true,
		ReadReceipts:   true,
	}
}

// PermissionPatch is a partial permission update; nil fields are left
// untouched.
type PermissionPatch struct {
	Notifications        *bool
	Calling              *bool
	ContactSharing       *bool
	DisplayPicture       *bool
	ReadReceipts         *bool
	AutoDownload         *bool
	DisappearingMessages *int64
	Focus                *bool
}

// Contact is a known peer, used to resolve sender display names in
// group previews.
type Contact struct {
	ContactID string
	Name      string
}

// OutboxEntry is a pending outgoing payload (user sends and reactive
// echoes such as disappearing-timer change notices).
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatID       string
	ContentType  string
	Data         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
}
