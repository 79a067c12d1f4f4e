package content

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClassifyText(t *testing.T) {
	p, err := Classify(TypeText, json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	text, ok := p.(Text)
	if !ok {
		t.Fatalf("payload type = %T, want Text", p)
	}
	if text.PreviewText() != "hi" {
		t.Errorf("preview = %q, want hi", text.PreviewText())
	}
}

func TestClassifyRejectsMismatchedShape(t *testing.T) {
	tests := []struct {
		name string
		ct   Type
		raw  string
	}{
		{"text without text field", TypeText, `{"foo":"bar"}`},
		{"text with empty payload", TypeText, ``},
		{"text with malformed json", TypeText, `{"text":`},
		{"link preview without url", TypeLinkPreview, `{"title":"t"}`},
		{"media without mediaId", TypeMedia, `{"mimeType":"image/png"}`},
		{"media without mimeType", TypeMedia, `{"mediaId":"m"}`},
		{"disappearing negative timeout", TypeDisappearingChange, `{"timeoutValue":-1}`},
		{"call without callId", TypeCallSignal, `{"signal":"offer"}`},
		{"call with bogus signal", TypeCallSignal, `{"callId":"c","signal":"wave"}`},
		{"contact share without portId", TypeContactShare, `{"name":"Bob"}`},
		{"reaction without target", TypeReaction, `{"reaction":"x"}`},
		{"receipt without ids", TypeReceipt, `{"read":true}`},
		{"unknown type", Type("telepathy"), `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.ct, json.RawMessage(tt.raw))
			if err == nil {
				t.Fatal("Classify() expected error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error type = %T, want *DecodeError", err)
			}
		})
	}
}

func TestClassifyVariants(t *testing.T) {
	tests := []struct {
		name        string
		ct          Type
		raw         string
		wantPreview string
	}{
		{"link preview uses title", TypeLinkPreview, `{"url":"https://x.test","title":"Example"}`, "Example"},
		{"link preview falls back to url", TypeLinkPreview, `{"url":"https://x.test"}`, "https://x.test"},
		{"media with caption", TypeMedia, `{"mediaId":"m1","mimeType":"image/png","caption":"sunset"}`, "sunset"},
		{"media without caption", TypeMedia, `{"mediaId":"m1","mimeType":"image/png"}`, "Sent a media file"},
		{"disappearing on", TypeDisappearingChange, `{"timeoutValue":86400}`, "Disappearing message timer updated"},
		{"disappearing off", TypeDisappearingChange, `{"timeoutValue":0}`, "Disappearing messages turned off"},
		{"call offer", TypeCallSignal, `{"callId":"c1","signal":"offer"}`, "Incoming call"},
		{"call end", TypeCallSignal, `{"callId":"c1","signal":"end"}`, "Call ended"},
		{"contact share", TypeContactShare, `{"portId":"p1","name":"Bob"}`, "Shared a contact"},
		{"reaction", TypeReaction, `{"targetMessageId":"m1","reaction":"👍"}`, "Reacted 👍 to a message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Classify(tt.ct, json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if p.ContentType() != tt.ct {
				t.Errorf("content type = %q, want %q", p.ContentType(), tt.ct)
			}
			if p.PreviewText() != tt.wantPreview {
				t.Errorf("preview = %q, want %q", p.PreviewText(), tt.wantPreview)
			}
		})
	}
}

func TestClassifyDisappearingTimeout(t *testing.T) {
	p, err := Classify(TypeDisappearingChange, json.RawMessage(`{"timeoutValue":86400}`))
	if err != nil {
		t.Fatal(err)
	}
	dc := p.(DisappearingChange)
	if dc.TimeoutSeconds != 86400 {
		t.Errorf("timeout = %d, want 86400", dc.TimeoutSeconds)
	}
}

func TestClassifyReceipt(t *testing.T) {
	p, err := Classify(TypeReceipt, json.RawMessage(`{"messageIds":["m1","m2"],"read":true}`))
	if err != nil {
		t.Fatal(err)
	}
	r := p.(Receipt)
	if len(r.MessageIDs) != 2 || !r.Read {
		t.Errorf("receipt = %+v", r)
	}
}
