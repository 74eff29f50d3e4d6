// Package api exposes the HTTP surface of the app: message history,
// notification fan-out, and announcements. Writes persist to PostgreSQL
// first, then push to live connections (directly through the hub for
// messages, via NATS for notifications so any server instance can deliver).
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/ripple/social-app/internal/metrics"
	"github.com/ripple/social-app/internal/protocol"
	"github.com/ripple/social-app/internal/store"
)

// Pusher is the realtime side the API hands deliveries to. Implemented by
// realtime.Hub.
type Pusher interface {
	PushToUser(userID string, notification interface{}) bool
	DeliverMessage(msg protocol.MessageMsg) bool
	Lookup(userID string) (string, bool)
}

// PresenceStore reads last-seen timestamps. Implemented by session.Store.
type PresenceStore interface {
	LastSeen(ctx context.Context, userID string) (time.Time, error)
}

// Publisher sends cross-instance events over the message bus. Implemented by
// messaging.NATSClient.
type Publisher interface {
	PublishNotification(userID string, data []byte) error
	PublishAnnouncement(data []byte) error
}

// Storage is the persistence the API needs. Implemented by store.Store.
type Storage interface {
	CreateMessage(ctx context.Context, msg *store.Message) error
	Conversation(ctx context.Context, userA, userB string, limit int) ([]store.Message, error)
	Conversations(ctx context.Context, userID string) ([]store.ConversationSummary, error)
	MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error)
	MarkMessageRead(ctx context.Context, messageID, readerID string) (bool, error)
	DeleteMessage(ctx context.Context, messageID, userID string) (bool, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	CreateNotification(ctx context.Context, n *store.Notification) error
	Notifications(ctx context.Context, userID string, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, notificationID, userID string) (bool, error)
}

// Server wires the HTTP handlers to storage, the hub, and the bus.
type Server struct {
	store    Storage
	pusher   Pusher
	bus      Publisher
	presence PresenceStore
	httpSrv  *http.Server
}

// NewServer builds the API server. The pusher, bus, and presence
// dependencies may be nil; handlers degrade to persist-only behavior.
func NewServer(addr string, storage Storage, pusher Pusher, bus Publisher, presence PresenceStore) *Server {
	s := &Server{
		store:    storage,
		pusher:   pusher,
		bus:      bus,
		presence: presence,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages", s.timed("messages_send", s.handleSendMessage))
	mux.HandleFunc("GET /api/messages/conversations", s.timed("messages_conversations", s.handleConversations))
	mux.HandleFunc("GET /api/messages/conversations/{userID}", s.timed("messages_conversation", s.handleConversation))
	mux.HandleFunc("GET /api/messages/unread-count", s.timed("messages_unread_count", s.handleUnreadCount))
	mux.HandleFunc("PUT /api/messages/{id}/read", s.timed("messages_read", s.handleMarkMessageRead))
	mux.HandleFunc("DELETE /api/messages/{id}", s.timed("messages_delete", s.handleDeleteMessage))
	mux.HandleFunc("POST /api/notifications", s.timed("notifications_create", s.handleCreateNotification))
	mux.HandleFunc("GET /api/notifications", s.timed("notifications_list", s.handleListNotifications))
	mux.HandleFunc("PUT /api/notifications/read-all", s.timed("notifications_read_all", s.handleMarkAllNotificationsRead))
	mux.HandleFunc("PUT /api/notifications/{id}/read", s.timed("notifications_read", s.handleMarkNotificationRead))
	mux.HandleFunc("DELETE /api/notifications/{id}", s.timed("notifications_delete", s.handleDeleteNotification))
	mux.HandleFunc("POST /api/announcements", s.timed("announcements", s.handleAnnouncement))
	mux.HandleFunc("GET /api/users/{userID}/presence", s.timed("user_presence", s.handleUserPresence))
	mux.Handle("GET /metrics", metrics.Handler())

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the HTTP server. Blocks until the server stops. A graceful
// Shutdown is not reported as an error.
func (s *Server) Start() error {
	log.Printf("api: listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// timed wraps a handler with request duration observation for /metrics.
func (s *Server) timed(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// identity extracts the caller's user id. Authentication itself happens at
// the gateway in front of this service; by the time a request lands here the
// verified id rides in the X-User-ID header.
func identity(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
