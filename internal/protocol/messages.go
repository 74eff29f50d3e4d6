// Package protocol defines the WebSocket message types and structures used for
// communication between the browser client and server. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator. Field names are camelCase to match the web client.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeAuthenticate     = "authenticate"
	TypeMessageSend      = "message:send"
	TypeMessageRead      = "message:read"
	TypeTypingStart      = "typing:start"
	TypeTypingStop       = "typing:stop"
	TypeNotificationRead = "notification:read"
	TypePresenceUpdate   = "presence:update"
	TypePing             = "ping"
)

// Server -> Client message types.
const (
	TypeConnected              = "connected"
	TypeUserStatus             = "user:status"
	TypeOnlineUsers            = "online:users"
	TypeMessageNew             = "message:new"
	TypeMessageSent            = "message:sent"
	TypeMessageReadReceipt     = "message:read"
	TypeUserTyping             = "user:typing"
	TypeUserStoppedTyping      = "user:stopped-typing"
	TypeNotificationMarkedRead = "notification:marked-read"
	TypeUserPresence           = "user:presence"
	TypeNotificationNew        = "notification:new"
	TypeAnnouncement           = "announcement"
	TypeError                  = "error"
	TypePong                   = "pong"
)

// Presence status values carried by user:status events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// AuthenticateMsg associates a user identity with the current connection.
type AuthenticateMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// SendMessageMsg is a private message addressed to another user.
type SendMessageMsg struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// ReadMessageMsg reports that the client has read a message.
type ReadMessageMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// TypingStartMsg signals that the client started typing to a recipient.
type TypingStartMsg struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipientId"`
}

// TypingStopMsg signals that the client explicitly stopped typing.
type TypingStopMsg struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipientId"`
}

// NotificationReadMsg reports that the client marked a notification as read.
type NotificationReadMsg struct {
	Type           string `json:"type"`
	NotificationID string `json:"notificationId"`
}

// PresenceUpdateMsg carries a caller-supplied presence status string.
type PresenceUpdateMsg struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent by the server when a connection is established.
type ConnectedMsg struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// UserStatusMsg announces a user's online/offline transition. LastSeen is a
// unix millisecond timestamp and is only set for offline transitions.
type UserStatusMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

// OnlineUsersMsg carries the snapshot of other online user ids, sent once to
// a connection immediately after it authenticates.
type OnlineUsersMsg struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// MessageMsg is a private message envelope, delivered as message:new to the
// recipient and echoed as message:sent to the sender.
type MessageMsg struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
	IsRead      bool   `json:"isRead"`
}

// MessageReadMsg is a read receipt broadcast to other connections.
type MessageReadMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

// TypingEventMsg identifies which user is (or stopped) typing.
type TypingEventMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// NotificationMarkedReadMsg propagates a read notification id to the user's
// other sessions.
type NotificationMarkedReadMsg struct {
	Type           string `json:"type"`
	NotificationID string `json:"notificationId"`
}

// UserPresenceMsg relays a caller-supplied presence status to other users.
type UserPresenceMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"` // unix milliseconds
}

// AnnouncementMsg is a site-wide broadcast to every connection.
type AnnouncementMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAuthenticate:
		var m AuthenticateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessageSend:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessageRead:
		var m ReadMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart:
		var m TypingStartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStop:
		var m TypingStopMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeNotificationRead:
		var m NotificationReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePresenceUpdate:
		var m PresenceUpdateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// may be any JSON-marshalable value (one of the *Msg structs, or an arbitrary
// notification object supplied by a request handler).
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload to a generic map so we can ensure the "type" field
	// is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
