package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ripple/social-app/internal/protocol"
	"github.com/ripple/social-app/internal/store"
)

type sendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// handleSendMessage persists a direct message and pushes it to the
// recipient's live connection if one exists. The response reports whether
// realtime delivery happened so clients can show "delivered" state.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := identity(r)
	if senderID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg := &store.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		IsRead:      false,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateMessage(r.Context(), msg); err != nil {
		log.Printf("api: create message: %v", err)
		writeError(w, http.StatusBadRequest, "could not save message")
		return
	}

	delivered := false
	if s.pusher != nil {
		delivered = s.pusher.DeliverMessage(protocol.MessageMsg{
			ID:          msg.ID,
			SenderID:    msg.SenderID,
			RecipientID: msg.RecipientID,
			Content:     msg.Content,
			Timestamp:   msg.CreatedAt.UnixMilli(),
			IsRead:      false,
		})
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"message":   msg,
		"delivered": delivered,
	})
}

// handleConversations returns the caller's conversation list: one entry per
// partner with the last message exchanged and the unread count, most recent
// conversation first.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	summaries, err := s.store.Conversations(r.Context(), userID)
	if err != nil {
		log.Printf("api: conversations %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "could not load conversations")
		return
	}
	if summaries == nil {
		summaries = []store.ConversationSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"conversations": summaries,
	})
}

// handleConversation returns the recent message history between the caller
// and the user in the path, newest first. Limit defaults to 50.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	otherID := r.PathValue("userID")
	if otherID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	messages, err := s.store.Conversation(r.Context(), userID, otherID, limit)
	if err != nil {
		log.Printf("api: conversation %s/%s: %v", userID, otherID, err)
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}

	// Opening a conversation reads it: flag the other side's unread messages.
	if _, err := s.store.MarkConversationRead(r.Context(), userID, otherID); err != nil {
		log.Printf("api: mark conversation read %s/%s: %v", userID, otherID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": messages,
	})
}

// handleMarkMessageRead marks one message read. Only the recipient can do
// this; anyone else gets a 404 because the store matches the reader id in
// the update.
func (s *Server) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	messageID := r.PathValue("id")

	updated, err := s.store.MarkMessageRead(r.Context(), messageID, userID)
	if err != nil {
		log.Printf("api: mark message read %s: %v", messageID, err)
		writeError(w, http.StatusInternalServerError, "could not update message")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleUnreadCount returns how many unread messages the caller has across
// all conversations, for the badge in the client header.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	count, err := s.store.UnreadCount(r.Context(), userID)
	if err != nil {
		log.Printf("api: unread count %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "could not load unread count")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   count,
	})
}

// handleDeleteMessage removes a message. Either participant may delete;
// anyone else gets a 404.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	messageID := r.PathValue("id")

	deleted, err := s.store.DeleteMessage(r.Context(), messageID, userID)
	if err != nil {
		log.Printf("api: delete message %s: %v", messageID, err)
		writeError(w, http.StatusInternalServerError, "could not delete message")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

type createNotificationRequest struct {
	UserID    string `json:"userId"`
	Kind      string `json:"kind"`
	ActorID   string `json:"actorId"`
	SubjectID string `json:"subjectId"`
	Body      string `json:"body"`
}

// handleCreateNotification persists a notification and publishes it on the
// bus so whichever server instance holds the user's connection pushes it.
func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n := &store.Notification{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Kind:      req.Kind,
		ActorID:   req.ActorID,
		SubjectID: req.SubjectID,
		Body:      req.Body,
		IsRead:    false,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateNotification(r.Context(), n); err != nil {
		log.Printf("api: create notification: %v", err)
		writeError(w, http.StatusBadRequest, "could not save notification")
		return
	}

	if s.bus != nil {
		data, err := json.Marshal(n)
		if err != nil {
			log.Printf("api: marshal notification: %v", err)
		} else if err := s.bus.PublishNotification(n.UserID, data); err != nil {
			log.Printf("api: publish notification for user=%s: %v", n.UserID, err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"notification": n,
	})
}

// handleListNotifications returns the caller's recent notifications.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := s.store.Notifications(r.Context(), userID, limit)
	if err != nil {
		log.Printf("api: list notifications %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "could not load notifications")
		return
	}
	if items == nil {
		items = []store.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"notifications": items,
	})
}

// handleMarkNotificationRead marks one of the caller's notifications read.
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	notificationID := r.PathValue("id")

	updated, err := s.store.MarkNotificationRead(r.Context(), notificationID, userID)
	if err != nil {
		log.Printf("api: mark notification read %s: %v", notificationID, err)
		writeError(w, http.StatusInternalServerError, "could not update notification")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleDeleteNotification removes one of the caller's notifications.
func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	notificationID := r.PathValue("id")

	deleted, err := s.store.DeleteNotification(r.Context(), notificationID, userID)
	if err != nil {
		log.Printf("api: delete notification %s: %v", notificationID, err)
		writeError(w, http.StatusInternalServerError, "could not delete notification")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleMarkAllNotificationsRead marks every unread notification for the
// caller as read.
func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	count, err := s.store.MarkAllNotificationsRead(r.Context(), userID)
	if err != nil {
		log.Printf("api: mark all notifications read %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "could not update notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": count,
	})
}

// handleUserPresence reports whether a user is currently online, and if not,
// when they were last seen. Last-seen timestamps are unix milliseconds; zero
// is omitted (user never seen).
func (s *Server) handleUserPresence(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	online := false
	if s.pusher != nil {
		_, online = s.pusher.Lookup(userID)
	}

	resp := map[string]interface{}{
		"success": true,
		"userId":  userID,
		"online":  online,
	}
	if !online && s.presence != nil {
		lastSeen, err := s.presence.LastSeen(r.Context(), userID)
		if err != nil {
			log.Printf("api: last seen for user=%s: %v", userID, err)
		} else if !lastSeen.IsZero() {
			resp["lastSeen"] = lastSeen.UnixMilli()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type announcementRequest struct {
	Message string `json:"message"`
}

// handleAnnouncement publishes a site-wide announcement on the bus. Every
// server instance broadcasts it to all of its connections.
func (s *Server) handleAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing announcement message")
		return
	}

	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "message bus unavailable")
		return
	}
	if err := s.bus.PublishAnnouncement([]byte(req.Message)); err != nil {
		log.Printf("api: publish announcement: %v", err)
		writeError(w, http.StatusInternalServerError, "could not publish announcement")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
	})
}
