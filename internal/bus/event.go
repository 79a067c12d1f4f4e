package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix,
// e.g. "message." catches every message event.
const (
	KindMessageStored     = "message.stored"
	KindMessageDuplicate  = "message.duplicate"
	KindMessageSendQueued = "message.send_queued"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"

	KindNotification   = "notify.request"
	KindCallSignal     = "call.signal"
	KindMediaDownload  = "media.download_request"
	KindPortShared     = "port.contact_shared"
	KindRelayConnected = "relay.connected"
	KindRelayDropped   = "relay.dropped"
	KindStatusChanged  = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
