package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid hello message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Hello(t *testing.T) {
	input := []byte(`{"type":"hello","identity":"76561198000000001","name":"Alice"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeHello {
		t.Fatalf("expected type %q, got %q", TypeHello, msgType)
	}

	h, ok := msg.(HelloMsg)
	if !ok {
		t.Fatalf("expected HelloMsg, got %T", msg)
	}
	if h.Identity != "76561198000000001" {
		t.Errorf("expected identity %q, got %q", "76561198000000001", h.Identity)
	}
	if h.Name != "Alice" {
		t.Errorf("expected name %q, got %q", "Alice", h.Name)
	}
}

func TestParseClientMessage_HelloWithoutIdentity(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"hello","name":"Alice"}`))
	if err == nil {
		t.Fatal("expected an error for a hello without identity")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid chat message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"message","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", cm.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a blocked server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_Blocked(t *testing.T) {
	payload := BlockedMsg{
		Reason: "Contains URL",
		Reply:  "<color=#e63946>Your message has been blocked with reason: Contains URL</color>",
	}

	data, err := NewServerMessage(TypeBlocked, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeBlocked {
		t.Errorf("expected type %q, got %v", TypeBlocked, result["type"])
	}
	if result["reason"] != "Contains URL" {
		t.Errorf("expected reason %q, got %v", "Contains URL", result["reason"])
	}
	if result["reply"] != payload.Reply {
		t.Errorf("expected reply %q, got %v", payload.Reply, result["reply"])
	}
}

func TestNewServerMessage_OverridesType(t *testing.T) {
	data, err := NewServerMessage(TypeChat, ServerChatMsg{Type: "wrong", From: "id1", Name: "Alice", Text: "hi", Ts: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ServerChatMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeChat {
		t.Errorf("expected type %q, got %q", TypeChat, decoded.Type)
	}
	if decoded.Name != "Alice" || decoded.Ts != 42 {
		t.Errorf("unexpected payload: %+v", decoded)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"find_match","interests":["music"]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "find_match" {
		t.Errorf("expected returned type %q, got %q", "find_match", msgType)
	}
}

func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"blocked","reason":"x"}`)); err == nil {
		t.Fatal("expected an error for a server-only type")
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"hello", `{"type":"hello","identity":"id1","name":"Alice"}`, TypeHello},
		{"message", `{"type":"message","text":"hi"}`, TypeMessage},
		{"command", `{"type":"message","text":"/stats bob"}`, TypeMessage},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
