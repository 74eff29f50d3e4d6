package realtime

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ripple/social-app/internal/metrics"
	"github.com/ripple/social-app/internal/protocol"
)

// SendMessage routes a private message from an authenticated connection to
// the recipient's live connection. The envelope is delivered as message:new
// to the recipient if online (silently dropped otherwise — delivery is
// best-effort, never queued) and always echoed back to the sender as
// message:sent. Invalid input results in an error event to the sender only,
// with no state change and no emissions to anyone else.
func (h *Hub) SendMessage(connID, recipientID, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	senderID, ok := h.users[connID]
	if !ok || recipientID == "" || content == "" {
		h.emitError(connID, "invalid_message", "invalid message data")
		return
	}

	msg := protocol.MessageMsg{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Timestamp:   time.Now().UnixMilli(),
		IsRead:      false,
	}

	if recipientConn, online := h.online[recipientID]; online {
		h.emitTo(recipientConn, protocol.TypeMessageNew, msg)
		metrics.MessagesRouted.WithLabelValues("delivered").Inc()
	} else {
		metrics.MessagesRouted.WithLabelValues("dropped").Inc()
	}

	// Confirmation copy of the same envelope, regardless of the recipient's
	// online status.
	h.emitTo(connID, protocol.TypeMessageSent, msg)
}

// MarkRead broadcasts a read receipt for a message to all connections other
// than the reader's. Persisting the read state is the HTTP layer's job; this
// only fans out the live event.
func (h *Hub) MarkRead(connID, messageID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	readerID, ok := h.users[connID]
	if !ok || messageID == "" {
		h.emitError(connID, "invalid_receipt", "invalid read receipt")
		return
	}

	h.emitExcept(connID, protocol.TypeMessageReadReceipt, protocol.MessageReadMsg{
		MessageID: messageID,
		ReadBy:    readerID,
	})
}

// NotificationRead tells the authenticated user's other live sessions that a
// notification was marked read, so their badges stay in sync. Sessions of
// other users never see the event.
func (h *Hub) NotificationRead(connID, notificationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.users[connID]
	if !ok || notificationID == "" {
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeNotificationMarkedRead, protocol.NotificationMarkedReadMsg{
		NotificationID: notificationID,
	})
	if err != nil {
		log.Printf("realtime: failed to build notification:marked-read: %v", err)
		return
	}

	// Orphaned connections keep their user association until they disconnect,
	// so the same user may own several live connections even though only one
	// holds the presence entry.
	for otherConn, otherUser := range h.users {
		if otherUser == userID && otherConn != connID {
			if err := h.sender.SendToConn(otherConn, data); err != nil {
				log.Printf("realtime: failed to send notification:marked-read to conn=%s: %v", otherConn, err)
			}
		}
	}
}
