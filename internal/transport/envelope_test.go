package transport

import "testing"

func TestParseEnvelope(t *testing.T) {
	raw := []byte(`{"chatId":"c1","messageId":"m1","contentType":"text","data":{"text":"hi"},"timestamp":1000,"seq":7}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	if env.ChatID != "c1" || env.MessageID != "m1" || env.ContentType != "text" {
		t.Errorf("envelope = %+v", env)
	}
	if env.Seq != 7 {
		t.Errorf("seq = %d, want 7", env.Seq)
	}
	if string(env.Data) != `{"text":"hi"}` {
		t.Errorf("data = %s", env.Data)
	}
}

func TestParseEnvelopeRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"missing chatId", `{"messageId":"m1","contentType":"text","timestamp":1}`},
		{"missing messageId", `{"chatId":"c1","contentType":"text","timestamp":1}`},
		{"missing contentType", `{"chatId":"c1","messageId":"m1","timestamp":1}`},
		{"missing timestamp", `{"chatId":"c1","messageId":"m1","contentType":"text"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(tt.raw)); err == nil {
				t.Error("ParseEnvelope() expected error")
			}
		})
	}
}

func TestParseEnvelopeGroupSender(t *testing.T) {
	raw := []byte(`{"chatId":"g1","senderId":"member-3","messageId":"m1","contentType":"text","data":{"text":"yo"},"timestamp":5}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatal(err)
	}
	if env.SenderID != "member-3" {
		t.Errorf("senderId = %q, want member-3", env.SenderID)
	}
}
