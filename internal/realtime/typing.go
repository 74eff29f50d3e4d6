package realtime

import (
	"time"

	"github.com/ripple/social-app/internal/metrics"
	"github.com/ripple/social-app/internal/protocol"
)

// typingTimer is the pending debounce state for one sender. The recipient is
// captured when the timer is scheduled and is not re-resolved at expiry, so a
// sender who switches conversations mid-window still expires toward the
// recipient of the last typing:start.
type typingTimer struct {
	timer       *time.Timer
	recipientID string
}

// StartTyping handles a typing:start signal. It immediately tells the
// recipient's live connection that the sender is typing (nothing is queued if
// the recipient is offline) and schedules the stopped-typing expiry after the
// debounce window. A second start within the window resets the clock rather
// than stacking a second timer. An unauthenticated sender or empty recipient
// is a silent no-op.
func (h *Hub) StartTyping(connID, recipientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	senderID, ok := h.users[connID]
	if !ok || recipientID == "" {
		return
	}

	h.cancelTypingLocked(senderID)

	if recipientConn, online := h.online[recipientID]; online {
		h.emitTo(recipientConn, protocol.TypeUserTyping, protocol.TypingEventMsg{UserID: senderID})
	}

	tt := &typingTimer{recipientID: recipientID}
	tt.timer = time.AfterFunc(h.typingTimeout, func() {
		h.expireTyping(senderID, tt)
	})
	h.typing[senderID] = tt
	metrics.TypingTimers.Set(float64(len(h.typing)))
}

// StopTyping handles an explicit typing:stop signal: it cancels the pending
// timer and immediately emits stopped-typing to the recipient, mirroring what
// expiry would have done.
func (h *Hub) StopTyping(connID, recipientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	senderID, ok := h.users[connID]
	if !ok || recipientID == "" {
		return
	}

	h.cancelTypingLocked(senderID)

	if recipientConn, online := h.online[recipientID]; online {
		h.emitTo(recipientConn, protocol.TypeUserStoppedTyping, protocol.TypingEventMsg{UserID: senderID})
	}
}

// expireTyping runs when a debounce timer fires. The tt identity check guards
// against the race where the timer fires while a reset or disconnect is
// removing it: an expiry for a superseded timer does nothing.
func (h *Hub) expireTyping(senderID string, tt *typingTimer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.typing[senderID] != tt {
		return
	}
	delete(h.typing, senderID)
	metrics.TypingTimers.Set(float64(len(h.typing)))

	if recipientConn, online := h.online[tt.recipientID]; online {
		h.emitTo(recipientConn, protocol.TypeUserStoppedTyping, protocol.TypingEventMsg{UserID: senderID})
	}
}

// cancelTypingLocked stops and removes the sender's pending timer, if any.
// Callers must hold h.mu.
func (h *Hub) cancelTypingLocked(senderID string) {
	tt, ok := h.typing[senderID]
	if !ok {
		return
	}
	tt.timer.Stop()
	delete(h.typing, senderID)
	metrics.TypingTimers.Set(float64(len(h.typing)))
}
