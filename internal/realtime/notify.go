package realtime

import (
	"time"

	"github.com/ripple/social-app/internal/metrics"
	"github.com/ripple/social-app/internal/protocol"
)

// PushToUser delivers a notification:new event to the given user's live
// connection. It is the integration point used by request handlers after they
// persist a notification. If the user is offline the notification is silently
// dropped; there is no queue and no delivery confirmation. Returns whether
// the user had a live connection.
func (h *Hub) PushToUser(userID string, notification interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	connID, online := h.online[userID]
	if !online {
		metrics.NotificationsPushed.WithLabelValues("dropped").Inc()
		return false
	}

	h.emitTo(connID, protocol.TypeNotificationNew, notification)
	metrics.NotificationsPushed.WithLabelValues("delivered").Inc()
	return true
}

// DeliverMessage pushes a message:new event for a message created outside
// the websocket path (the HTTP send endpoint). Returns whether the recipient
// had a live connection.
func (h *Hub) DeliverMessage(msg protocol.MessageMsg) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	connID, online := h.online[msg.RecipientID]
	if !online {
		metrics.MessagesRouted.WithLabelValues("dropped").Inc()
		return false
	}

	h.emitTo(connID, protocol.TypeMessageNew, msg)
	metrics.MessagesRouted.WithLabelValues("delivered").Inc()
	return true
}

// BroadcastAll delivers an announcement event to every connection,
// authenticated or not.
func (h *Hub) BroadcastAll(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.emitAll(protocol.TypeAnnouncement, protocol.AnnouncementMsg{
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}
