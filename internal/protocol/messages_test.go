package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid authenticate message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Authenticate(t *testing.T) {
	input := []byte(`{"type":"authenticate","userId":"user-42"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeAuthenticate {
		t.Fatalf("expected type %q, got %q", TypeAuthenticate, msgType)
	}

	am, ok := msg.(AuthenticateMsg)
	if !ok {
		t.Fatalf("expected AuthenticateMsg, got %T", msg)
	}
	if am.UserID != "user-42" {
		t.Errorf("expected userId %q, got %q", "user-42", am.UserID)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message:send message
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"message:send","recipientId":"bob","content":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessageSend {
		t.Fatalf("expected type %q, got %q", TypeMessageSend, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.RecipientID != "bob" {
		t.Errorf("expected recipientId %q, got %q", "bob", sm.RecipientID)
	}
	if sm.Content != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", sm.Content)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a user:status server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_UserStatus(t *testing.T) {
	payload := UserStatusMsg{
		UserID:   "alice",
		Status:   StatusOffline,
		LastSeen: 1700000000000,
	}

	data, err := NewServerMessage(TypeUserStatus, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeUserStatus {
		t.Errorf("expected type %q, got %v", TypeUserStatus, result["type"])
	}
	if result["userId"] != "alice" {
		t.Errorf("expected userId %q, got %v", "alice", result["userId"])
	}
	if result["status"] != StatusOffline {
		t.Errorf("expected status %q, got %v", StatusOffline, result["status"])
	}

	lastSeen, ok := result["lastSeen"].(float64)
	if !ok {
		t.Fatalf("expected lastSeen to be a number, got %T", result["lastSeen"])
	}
	if int64(lastSeen) != 1700000000000 {
		t.Errorf("expected lastSeen 1700000000000, got %v", lastSeen)
	}
}

// ---------------------------------------------------------------------------
// Test: NewServerMessage accepts an arbitrary notification payload
// ---------------------------------------------------------------------------

func TestNewServerMessage_ArbitraryNotification(t *testing.T) {
	payload := map[string]interface{}{
		"kind":     "new_message",
		"senderId": "alice",
		"content":  "hi there",
	}

	data, err := NewServerMessage(TypeNotificationNew, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeNotificationNew {
		t.Errorf("expected type %q, got %v", TypeNotificationNew, result["type"])
	}
	if result["kind"] != "new_message" {
		t.Errorf("expected kind %q, got %v", "new_message", result["kind"])
	}
	if result["senderId"] != "alice" {
		t.Errorf("expected senderId %q, got %v", "alice", result["senderId"])
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
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
		{"authenticate", `{"type":"authenticate","userId":"u1"}`, TypeAuthenticate},
		{"message_send", `{"type":"message:send","recipientId":"u2","content":"hi"}`, TypeMessageSend},
		{"message_read", `{"type":"message:read","messageId":"m1"}`, TypeMessageRead},
		{"typing_start", `{"type":"typing:start","recipientId":"u2"}`, TypeTypingStart},
		{"typing_stop", `{"type":"typing:stop","recipientId":"u2"}`, TypeTypingStop},
		{"notification_read", `{"type":"notification:read","notificationId":"n1"}`, TypeNotificationRead},
		{"presence_update", `{"type":"presence:update","status":"away"}`, TypePresenceUpdate},
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
