package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/port-messenger/portd/internal/outbox"
	"github.com/port-messenger/portd/internal/permission"
	"github.com/port-messenger/portd/internal/port"
	"github.com/port-messenger/portd/internal/status"
	"github.com/port-messenger/portd/internal/store"
)

// Version is the daemon version reported over the control API.
const Version = "0.3.0"

// Handlers implements the control API methods.
type Handlers struct {
	sessionName string
	machine     *status.Machine
	db          *store.DB
	gate        *permission.Gate
	sender      *outbox.Sender
	ports       *port.Manager
}

// NewHandlers wires the control API against the daemon's collaborators.
func NewHandlers(sessionName string, machine *status.Machine, db *store.DB, gate *permission.Gate, sender *outbox.Sender, ports *port.Manager) *Handlers {
	return &Handlers{
		sessionName: sessionName,
		machine:     machine,
		db:          db,
		gate:        gate,
		sender:      sender,
		ports:       ports,
	}
}

// ConnectionInfo is the wire shape of a conversation summary.
type ConnectionInfo struct {
	ChatID            string `json:"chatId"`
	Kind              string `json:"kind"`
	Name              string `json:"name"`
	Text              string `json:"text"`
	RecentMessageType string `json:"recentMessageType"`
	LatestMessageID   string `json:"latestMessageId"`
	UnreadCount       int    `json:"unreadCount"`
	LastTimestamp     int64  `json:"lastTimestamp"`
	Disconnected      bool   `json:"disconnected"`
}

// MessageInfo is the wire shape of a stored message.
type MessageInfo struct {
	MessageID   string `json:"messageId"`
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId,omitempty"`
	ContentType string `json:"contentType"`
	Data        string `json:"data"`
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"status"`
}

// PermissionsInfo is the wire shape of a chat's permission set.
type PermissionsInfo struct {
	PermissionsID        string `json:"permissionsId"`
	Notifications        bool   `json:"notifications"`
	Calling              bool   `json:"calling"`
	ContactSharing       bool   `json:"contactSharing"`
	DisplayPicture       bool   `json:"displayPicture"`
	ReadReceipts         bool   `json:"readReceipts"`
	AutoDownload         bool   `json:"autoDownload"`
	DisappearingMessages int64  `json:"disappearingMessages"`
	Focus                bool   `json:"focus"`
}

// PortInfo is the wire shape of a shareable invite.
type PortInfo struct {
	PortID    string `json:"portId"`
	Label     string `json:"label"`
	URI       string `json:"uri"`
	State     string `json:"state"`
	CreatedAt int64  `json:"createdAt"`
}

func (h *Handlers) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *respError) {
	switch method {
	case "status":
		return h.status()
	case "connections.list":
		return h.connectionsList(params)
	case "connections.get":
		return h.connectionsGet(params)
	case "connections.markRead":
		return h.connectionsMarkRead(params)
	case "messages.list":
		return h.messagesList(params)
	case "permissions.get":
		return h.permissionsGet(params)
	case "permissions.set":
		return h.permissionsSet(ctx, params)
	case "send.text":
		return h.sendText(params)
	case "port.create":
		return h.portCreate(params)
	case "port.list":
		return h.portList()
	case "port.pause":
		return h.portSetState(params, false)
	case "port.resume":
		return h.portSetState(params, true)
	case "port.qr":
		return h.portQR(params)
	default:
		return nil, &respError{Code: codeMethodNotFound, Message: "method not found: " + method}
	}
}

func (h *Handlers) status() (any, *respError) {
	return map[string]string{
		"session": h.sessionName,
		"state":   string(h.machine.Current()),
		"version": Version,
	}, nil
}

func (h *Handlers) connectionsList(params json.RawMessage) (any, *respError) {
	var p struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	conns, err := h.db.ListConnections(p.Limit, p.Offset)
	if err != nil {
		return nil, internal(err)
	}
	infos := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, connectionInfo(&c))
	}
	return infos, nil
}

func (h *Handlers) connectionsGet(params json.RawMessage) (any, *respError) {
	chatID, rpcErr := chatIDParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	conn, err := h.db.GetConnection(chatID)
	if err != nil {
		return nil, internal(err)
	}
	if conn == nil {
		return nil, &respError{Code: codeInvalidParams, Message: "unknown chat: " + chatID}
	}
	return connectionInfo(conn), nil
}

func (h *Handlers) connectionsMarkRead(params json.RawMessage) (any, *respError) {
	chatID, rpcErr := chatIDParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := h.db.MarkConnectionRead(chatID); err != nil {
		return nil, internal(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (h *Handlers) messagesList(params json.RawMessage) (any, *respError) {
	var p struct {
		ChatID          string `json:"chatId"`
		BeforeTimestamp int64  `json:"beforeTimestamp"`
		Limit           int    `json:"limit"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ChatID == "" {
		return nil, &respError{Code: codeInvalidParams, Message: "chatId is required"}
	}
	msgs, err := h.db.ListMessages(p.ChatID, p.BeforeTimestamp, p.Limit)
	if err != nil {
		return nil, internal(err)
	}
	infos := make([]MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		infos = append(infos, MessageInfo{
			MessageID:   m.MessageID,
			ChatID:      m.ChatID,
			SenderID:    m.SenderID,
			ContentType: m.ContentType,
			Data:        m.Data,
			Timestamp:   m.Timestamp,
			Status:      string(m.Status),
		})
	}
	return infos, nil
}

func (h *Handlers) permissionsGet(params json.RawMessage) (any, *respError) {
	chatID, rpcErr := chatIDParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	conn, err := h.db.GetConnection(chatID)
	if err != nil {
		return nil, internal(err)
	}
	if conn == nil {
		return nil, &respError{Code: codeInvalidParams, Message: "unknown chat: " + chatID}
	}
	perms, err := h.gate.ForChat(chatID, conn.Kind)
	if err != nil {
		return nil, internal(err)
	}
	return PermissionsInfo{
		PermissionsID:        perms.PermissionsID,
		Notifications:        perms.Notifications,
		Calling:              perms.Calling,
		ContactSharing:       perms.ContactSharing,
		DisplayPicture:       perms.DisplayPicture,
		ReadReceipts:         perms.ReadReceipts,
		AutoDownload:         perms.AutoDownload,
		DisappearingMessages: perms.DisappearingMessages,
		Focus:                perms.Focus,
	}, nil
}

func (h *Handlers) permissionsSet(ctx context.Context, params json.RawMessage) (any, *respError) {
	var p struct {
		ChatID              string `json:"chatId"`
		Field               string `json:"field"`
		Enabled             *bool  `json:"enabled"`
		DisappearingSeconds *int64 `json:"disappearingSeconds"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ChatID == "" {
		return nil, &respError{Code: codeInvalidParams, Message: "chatId is required"}
	}
	conn, err := h.db.GetConnection(p.ChatID)
	if err != nil {
		return nil, internal(err)
	}
	if conn == nil {
		return nil, &respError{Code: codeInvalidParams, Message: "unknown chat: " + p.ChatID}
	}
	permissionsID := conn.PermissionsID
	if permissionsID == "" {
		permissionsID = p.ChatID
	}

	if p.DisappearingSeconds != nil {
		if err := h.gate.SetDisappearing(permissionsID, *p.DisappearingSeconds); err != nil {
			return nil, internal(err)
		}
		return map[string]bool{"ok": true}, nil
	}

	if p.Field == "" || p.Enabled == nil {
		return nil, &respError{Code: codeInvalidParams, Message: "field and enabled are required"}
	}
	if err := h.gate.Toggle(ctx, permissionsID, permission.Field(p.Field), *p.Enabled); err != nil {
		return nil, internal(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (h *Handlers) sendText(params json.RawMessage) (any, *respError) {
	var p struct {
		ChatID string `json:"chatId"`
		Text   string `json:"text"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ChatID == "" || p.Text == "" {
		return nil, &respError{Code: codeInvalidParams, Message: "chatId and text are required"}
	}
	clientMsgID, err := h.sender.SendText(p.ChatID, p.Text)
	if err != nil {
		var uc *outbox.UnknownChatError
		if errors.As(err, &uc) {
			return nil, &respError{Code: codeInvalidParams, Message: err.Error()}
		}
		return nil, internal(err)
	}
	return map[string]string{"clientMsgId": clientMsgID}, nil
}

func (h *Handlers) portCreate(params json.RawMessage) (any, *respError) {
	var p struct {
		Label string `json:"label"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	created, uri, err := h.ports.Create(p.Label)
	if err != nil {
		return nil, internal(err)
	}
	return PortInfo{
		PortID:    created.PortID,
		Label:     created.Label,
		URI:       uri,
		State:     created.State,
		CreatedAt: created.CreatedAt,
	}, nil
}

func (h *Handlers) portList() (any, *respError) {
	ports, err := h.ports.List()
	if err != nil {
		return nil, internal(err)
	}
	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			PortID:    p.PortID,
			Label:     p.Label,
			URI:       p.Bundle,
			State:     p.State,
			CreatedAt: p.CreatedAt,
		})
	}
	return infos, nil
}

func (h *Handlers) portSetState(params json.RawMessage, resume bool) (any, *respError) {
	var p struct {
		PortID string `json:"portId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.PortID == "" {
		return nil, &respError{Code: codeInvalidParams, Message: "portId is required"}
	}
	var err error
	if resume {
		err = h.ports.Resume(p.PortID)
	} else {
		err = h.ports.Pause(p.PortID)
	}
	if errors.Is(err, port.ErrNotFound) {
		return nil, &respError{Code: codeInvalidParams, Message: "unknown port: " + p.PortID}
	}
	if err != nil {
		return nil, internal(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (h *Handlers) portQR(params json.RawMessage) (any, *respError) {
	var p struct {
		PortID string `json:"portId"`
		Size   int    `json:"size"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	png, err := h.ports.QRPNG(p.PortID, p.Size)
	if errors.Is(err, port.ErrNotFound) {
		return nil, &respError{Code: codeInvalidParams, Message: "unknown port: " + p.PortID}
	}
	if err != nil {
		return nil, internal(err)
	}
	return map[string]string{"png": base64.StdEncoding.EncodeToString(png)}, nil
}

func connectionInfo(c *store.Connection) ConnectionInfo {
	return ConnectionInfo{
		ChatID:            c.ChatID,
		Kind:              string(c.Kind),
		Name:              c.Name,
		Text:              c.Text,
		RecentMessageType: c.RecentMessageType,
		LatestMessageID:   c.LatestMessageID,
		UnreadCount:       c.UnreadCount,
		LastTimestamp:     c.LastTimestamp,
		Disconnected:      c.Disconnected,
	}
}

func chatIDParam(params json.RawMessage) (string, *respError) {
	var p struct {
		ChatID string `json:"chatId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return "", err
	}
	if p.ChatID == "" {
		return "", &respError{Code: codeInvalidParams, Message: "chatId is required"}
	}
	return p.ChatID, nil
}

func decodeParams(params json.RawMessage, into any) *respError {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return &respError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func internal(err error) *respError {
	return &respError{Code: codeInternalError, Message: err.Error()}
}
