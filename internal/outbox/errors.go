package outbox

import "fmt"

// UnknownChatError reports a send against a chat that has no formed
// connection.
type UnknownChatError struct {
	ChatID string
}

func (e *UnknownChatError) Error() string {
	return fmt.Sprintf("no connection for chat %q", e.ChatID)
}
