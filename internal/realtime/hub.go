// Package realtime implements the presence and messaging coordinator that sits
// between the WebSocket transport and the rest of the application. It tracks
// which users currently have a live connection, routes private messages and
// typing indicators to the correct connection, and exposes the push/broadcast
// operations used by HTTP request handlers after they persist data.
//
// All presence state (user -> connection mapping, connection -> user
// association, pending typing timers) is owned exclusively by the Hub and is
// never touched directly by other packages.
package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/ripple/social-app/internal/metrics"
	"github.com/ripple/social-app/internal/protocol"
)

// DefaultTypingTimeout is the debounce window after the last typing:start
// signal before the recipient is told the sender stopped typing.
const DefaultTypingTimeout = 3 * time.Second

// Sender is the capability the Hub uses to reach live connections. The
// WebSocket connection manager satisfies it in production; tests use a fake.
//
// Implementations must not call back into the Hub: every Hub operation may
// invoke the Sender while holding the Hub's internal lock.
type Sender interface {
	// SendToConn writes a frame to a single connection. Delivery is
	// best-effort; an error means the frame was not written.
	SendToConn(connID string, data []byte) error

	// BroadcastExcept writes a frame to every connection except the given one.
	BroadcastExcept(connID string, data []byte)

	// BroadcastAll writes a frame to every connection.
	BroadcastAll(data []byte)
}

// Hub is the per-process presence and messaging coordinator. A single Hub is
// created at startup and shared by the WebSocket dispatcher, the HTTP API
// handlers, and the NATS bridge.
//
// The transport dispatches handler bodies from a worker pool, so every state
// mutation happens under one mutex; each operation is atomic with respect to
// all others, matching the run-to-completion model of the event handlers.
type Hub struct {
	sender        Sender
	typingTimeout time.Duration

	mu     sync.Mutex
	online map[string]string       // userID -> connID (at most one entry per user)
	users  map[string]string       // connID -> userID association
	typing map[string]*typingTimer // sender userID -> pending debounce timer
}

// Option configures a Hub.
type Option func(*Hub)

// WithTypingTimeout overrides the typing debounce window. Used by tests.
func WithTypingTimeout(d time.Duration) Option {
	return func(h *Hub) { h.typingTimeout = d }
}

// NewHub creates a Hub that delivers events through the given sender.
func NewHub(sender Sender, opts ...Option) *Hub {
	h := &Hub{
		sender:        sender,
		typingTimeout: DefaultTypingTimeout,
		online:        make(map[string]string),
		users:         make(map[string]string),
		typing:        make(map[string]*typingTimer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Authenticate records the userID -> connID presence mapping, overwriting any
// prior entry for that user (last-writer-wins; the previous connection is not
// closed, only orphaned from lookup). It broadcasts the user's online status
// to all other connections and sends the authenticating connection a snapshot
// of the other currently online user ids. An empty userID is a silent no-op.
func (h *Hub) Authenticate(connID, userID string) {
	if userID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.online[userID] = connID
	h.users[connID] = userID
	metrics.OnlineUsers.Set(float64(len(h.online)))

	h.emitExcept(connID, protocol.TypeUserStatus, protocol.UserStatusMsg{
		UserID: userID,
		Status: protocol.StatusOnline,
	})

	others := make([]string, 0, len(h.online))
	for id := range h.online {
		if id != userID {
			others = append(others, id)
		}
	}
	h.emitTo(connID, protocol.TypeOnlineUsers, protocol.OnlineUsersMsg{Users: others})

	log.Printf("realtime: user authenticated user=%s conn=%s (online=%d)", userID, connID, len(h.online))
}

// Lookup returns the connection id currently representing the given user.
// A false result means the user is considered offline.
func (h *Hub) Lookup(userID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	connID, ok := h.online[userID]
	return connID, ok
}

// UserFor returns the user identity associated with a connection, if the
// connection has authenticated.
func (h *Hub) UserFor(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.users[connID]
	return userID, ok
}

// OnlineCount returns the number of users with a presence entry.
func (h *Hub) OnlineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.online)
}

// Disconnect removes the connection's user association and, if the presence
// entry still points at this connection, removes it, cancels the user's
// pending typing timer, and broadcasts the offline status to all other
// connections. A connection that was orphaned by a later authenticate for the
// same user leaves the newer presence entry untouched.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.users[connID]
	if !ok {
		return // never authenticated
	}
	delete(h.users, connID)

	if h.online[userID] != connID {
		return // a newer connection owns the presence entry
	}
	delete(h.online, userID)
	metrics.OnlineUsers.Set(float64(len(h.online)))

	// Cancel any pending typing timer without emitting stopped-typing: the
	// recipient's client clears the indicator on its own timeout.
	h.cancelTypingLocked(userID)

	h.emitExcept(connID, protocol.TypeUserStatus, protocol.UserStatusMsg{
		UserID:   userID,
		Status:   protocol.StatusOffline,
		LastSeen: time.Now().UnixMilli(),
	})

	log.Printf("realtime: user disconnected user=%s conn=%s (online=%d)", userID, connID, len(h.online))
}

// PresenceUpdate broadcasts a caller-supplied status string to all other
// connections. The status value is passed through without validation.
func (h *Hub) PresenceUpdate(connID, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.users[connID]
	if !ok {
		h.emitError(connID, "unauthenticated", "authenticate before updating presence")
		return
	}

	h.emitExcept(connID, protocol.TypeUserPresence, protocol.UserPresenceMsg{
		UserID:   userID,
		Status:   status,
		LastSeen: time.Now().UnixMilli(),
	})
}

// ---------------------------------------------------------------------------
// Internal emit helpers. All run with h.mu held.
// ---------------------------------------------------------------------------

// emitTo builds a server message and writes it to one connection. Build and
// write failures are logged, never propagated: a single connection's trouble
// must not affect the registry.
func (h *Hub) emitTo(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("realtime: failed to build %s for conn=%s: %v", msgType, connID, err)
		return
	}
	if err := h.sender.SendToConn(connID, data); err != nil {
		log.Printf("realtime: failed to send %s to conn=%s: %v", msgType, connID, err)
	}
}

// emitExcept builds a server message and fans it out to every connection
// except the given one.
func (h *Hub) emitExcept(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("realtime: failed to build %s broadcast: %v", msgType, err)
		return
	}
	h.sender.BroadcastExcept(connID, data)
}

// emitAll builds a server message and fans it out to every connection.
func (h *Hub) emitAll(msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("realtime: failed to build %s broadcast: %v", msgType, err)
		return
	}
	h.sender.BroadcastAll(data)
}

// emitError sends an error event to the originating connection only.
func (h *Hub) emitError(connID, code, message string) {
	h.emitTo(connID, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
