// Package content defines the typed payload variants carried inside
// decrypted message envelopes and the classifier that validates a raw
// payload against its declared content type.
package content

import (
	"encoding/json"
	"fmt"
)

// Type tags a payload variant.
type Type string

const (
	TypeText               Type = "text"
	TypeLinkPreview        Type = "link_preview"
	TypeMedia              Type = "media"
	TypeDisappearingChange Type = "disappearing_change"
	TypeCallSignal         Type = "call_signal"
	TypeContactShare       Type = "contact_share"
	TypeReaction           Type = "reaction"
	TypeReceipt            Type = "receipt"
)

// DecodeError reports a payload whose shape does not match its declared
// content type. Such messages are dropped without side effects.
type DecodeError struct {
	ContentType Type
	Reason      string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %s", e.ContentType, e.Reason)
}

// Payload is a validated, typed message payload.
type Payload interface {
	ContentType() Type
	// PreviewText renders the short human-readable summary used for
	// the conversation list. Pure; never persisted as the message body.
	PreviewText() string
}

// Text is a plain text message.
type Text struct {
	Text    string `json:"text"`
	ReplyID string `json:"replyId,omitempty"`
}

func (Text) ContentType() Type     { return TypeText }
func (p Text) PreviewText() string { return p.Text }

// LinkPreview is a text message with unfurled link metadata.
type LinkPreview struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

func (LinkPreview) ContentType() Type { return TypeLinkPreview }
func (p LinkPreview) PreviewText() string {
	if p.Text != "" {
		return p.Text
	}
	if p.Title != "" {
		return p.Title
	}
	return p.URL
}

// Media references an encrypted attachment held by the media
// collaborator; the daemon never touches attachment bytes.
type Media struct {
	MediaID  string `json:"mediaId"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType"`
	Caption  string `json:"caption,omitempty"`
	Size     int64  `json:"sizeBytes,omitempty"`
}

func (Media) ContentType() Type { return TypeMedia }
func (p Media) PreviewText() string {
	if p.Caption != "" {
		return p.Caption
	}
	return "Sent a media file"
}

// DisappearingChange announces a new disappearing-message timeout for
// the chat. TimeoutSeconds of 0 switches the timer off.
type DisappearingChange struct {
	TimeoutSeconds int64 `json:"timeoutValue"`
}

func (DisappearingChange) ContentType() Type { return TypeDisappearingChange }
func (p DisappearingChange) PreviewText() string {
	if p.TimeoutSeconds == 0 {
		return "Disappearing messages turned off"
	}
	return "Disappearing message timer updated"
}

// CallSignalKind enumerates call signaling payloads.
type CallSignalKind string

const (
	CallOffer   CallSignalKind = "offer"
	CallAnswer  CallSignalKind = "answer"
	CallDecline CallSignalKind = "decline"
	CallEnd     CallSignalKind = "end"
)

// CallSignal carries call setup/teardown signaling.
type CallSignal struct {
	CallID string         `json:"callId"`
	Signal CallSignalKind `json:"signal"`
}

func (CallSignal) ContentType() Type { return TypeCallSignal }
func (p CallSignal) PreviewText() string {
	switch p.Signal {
	case CallOffer:
		return "Incoming call"
	case CallEnd, CallDecline:
		return "Call ended"
	default:
		return "Call update"
	}
}

// ContactShare carries a shared port bundle for a third contact.
type ContactShare struct {
	PortID string `json:"portId"`
	Name   string `json:"name"`
	Bundle string `json:"bundle,omitempty"`
}

func (ContactShare) ContentType() Type     { return TypeContactShare }
func (p ContactShare) PreviewText() string { return "Shared a contact" }

// Reaction attaches an emoji reaction to a prior message.
type Reaction struct {
	TargetMessageID string `json:"targetMessageId"`
	Reaction        string `json:"reaction"`
}

func (Reaction) ContentType() Type { return TypeReaction }
func (p Reaction) PreviewText() string {
	return fmt.Sprintf("Reacted %s to a message", p.Reaction)
}

// Receipt marks prior messages delivered or read on the peer side.
type Receipt struct {
	MessageIDs []string `json:"messageIds"`
	Read       bool     `json:"read"`
}

func (Receipt) ContentType() Type     { return TypeReceipt }
func (p Receipt) PreviewText() string { return "" }

// Classify decodes raw into the payload variant declared by
// contentType and validates required fields. It is side-effect free;
// any mismatch yields a *DecodeError.
func Classify(contentType Type, raw json.RawMessage) (Payload, error) {
	fail := func(reason string) (Payload, error) {
		return nil, &DecodeError{ContentType: contentType, Reason: reason}
	}
	if len(raw) == 0 {
		return fail("empty payload")
	}

	switch contentType {
	case TypeText:
		var p Text
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.Text == "" {
			return fail("missing text field")
		}
		return p, nil

	case TypeLinkPreview:
		var p LinkPreview
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.URL == "" {
			return fail("missing url field")
		}
		return p, nil

	case TypeMedia:
		var p Media
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.MediaID == "" {
			return fail("missing mediaId field")
		}
		if p.MimeType == "" {
			return fail("missing mimeType field")
		}
		return p, nil

	case TypeDisappearingChange:
		var p DisappearingChange
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.TimeoutSeconds < 0 {
			return fail("negative timeoutValue")
		}
		return p, nil

	case TypeCallSignal:
		var p CallSignal
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.CallID == "" {
			return fail("missing callId field")
		}
		switch p.Signal {
		case CallOffer, CallAnswer, CallDecline, CallEnd:
		default:
			return fail(fmt.Sprintf("unknown call signal %q", p.Signal))
		}
		return p, nil

	case TypeContactShare:
		var p ContactShare
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.PortID == "" {
			return fail("missing portId field")
		}
		return p, nil

	case TypeReaction:
		var p Reaction
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.TargetMessageID == "" {
			return fail("missing targetMessageId field")
		}
		if p.Reaction == "" {
			return fail("missing reaction field")
		}
		return p, nil

	case TypeReceipt:
		var p Receipt
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if len(p.MessageIDs) == 0 {
			return fail("missing messageIds field")
		}
		return p, nil

	default:
		return fail("unknown content type")
	}
}
