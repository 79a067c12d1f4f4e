// Package notify carries local-notification requests from the receive
// pipeline to whichever surface presents them (OS bridge, TUI). The
// daemon itself never talks to an OS notification API.
package notify

import (
	"time"

	"github.com/port-messenger/portd/internal/bus"
)

// Request is one notification to surface. ShowAsActive is a display
// hint: false means the chat is disconnected and clients should render
// the notification in its muted style, not suppress it.
type Request struct {
	Title        string
	Body         string
	ShowAsActive bool
	ChatID       string
}

// Notifier surfaces a local notification. Best effort: callers log
// errors and move on; a lost notification must never fail message
// processing.
type Notifier interface {
	Notify(title, body string, showAsActive bool, chatID string) error
}

// BusNotifier publishes notification requests on the event bus for
// connected clients to render.
type BusNotifier struct {
	bus *bus.Bus
}

// NewBusNotifier creates a bus-backed notifier.
func NewBusNotifier(b *bus.Bus) *BusNotifier {
	return &BusNotifier{bus: b}
}

// Notify publishes the request. Never blocks; the bus drops events for
// slow subscribers.
func (n *BusNotifier) Notify(title, body string, showAsActive bool, chatID string) error {
	n.bus.Publish(bus.Event{
		Kind:      bus.KindNotification,
		Timestamp: time.Now(),
		Payload: Request{
			Title:        title,
			Body:         body,
			ShowAsActive: showAsActive,
			ChatID:       chatID,
		},
	})
	return nil
}
