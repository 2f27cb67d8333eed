package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, e.g. "store." or "push.".
const (
	KindPushMessage = "push.message"
	KindPushStatus  = "push.status"

	KindPushConnected    = "push.connected"
	KindPushDisconnected = "push.disconnected"

	KindSyncStarted   = "sync.started"
	KindSyncPage      = "sync.page"
	KindSyncCompleted = "sync.completed"
	KindSyncFailed    = "sync.failed"

	KindOutboxAck    = "outbox.ack"
	KindOutboxFailed = "outbox.failed"

	KindStatusChanged = "daemon.status_changed"
	KindViewChanged   = "view.open_chat"
)

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
