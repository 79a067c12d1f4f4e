// Package tui is the terminal client: a conversation list, message
// pane, and composer over the daemon's control API.
package tui

import (
	"context"
	"time"

	"github.com/port-messenger/portd/internal/rpc"
)

// Client wraps the control API with typed calls for the views.
type Client struct {
	rpc *rpc.Client
}

// NewClient creates a typed client over the daemon socket.
func NewClient(socketPath string) *Client {
	return &Client{rpc: rpc.NewClient(socketPath)}
}

func (c *Client) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// Status returns session name, daemon state, and version.
func (c *Client) Status() (map[string]string, error) {
	ctx, cancel := c.callCtx()
	defer cancel()
	var result map[string]string
	err := c.rpc.Call(ctx, "status", nil, &result)
	return result, err
}

// Connections lists conversation summaries, most recent first.
func (c *Client) Connections() ([]rpc.ConnectionInfo, error) {
	ctx, cancel := c.callCtx()
	defer cancel()
	var result []rpc.ConnectionInfo
	err := c.rpc.Call(ctx, "connections.list", map[string]int{"limit": 100}, &result)
	return result, err
}

// Messages lists a chat's messages, newest first.
func (c *Client) Messages(chatID string, limit int) ([]rpc.MessageInfo, error) {
	ctx, cancel := c.callCtx()
	defer cancel()
	var result []rpc.MessageInfo
	err := c.rpc.Call(ctx, "messages.list", map[string]any{"chatId": chatID, "limit": limit}, &result)
	return result, err
}

// SendText enqueues a text message and returns its client message id.
func (c *Client) SendText(chatID, text string) (string, error) {
	ctx, cancel := c.callCtx()
	defer cancel()
	var result map[string]string
	err := c.rpc.Call(ctx, "send.text", map[string]string{"chatId": chatID, "text": text}, &result)
	return result["clientMsgId"], err
}

// MarkRead zeroes a chat's unread counter.
func (c *Client) MarkRead(chatID string) error {
	ctx, cancel := c.callCtx()
	defer cancel()
	return c.rpc.Call(ctx, "connections.markRead", map[string]string{"chatId": chatID}, nil)
}
