package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ripple/social-app/internal/protocol"
	"github.com/ripple/social-app/internal/store"
)

// fakeStorage is an in-memory Storage for handler tests.
type fakeStorage struct {
	messages      []store.Message
	notifications []store.Notification
	failCreate    bool
}

func (f *fakeStorage) CreateMessage(_ context.Context, msg *store.Message) error {
	if f.failCreate {
		return fmt.Errorf("boom")
	}
	if msg.SenderID == "" || msg.RecipientID == "" || msg.Content == "" {
		return fmt.Errorf("invalid message")
	}
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeStorage) Conversation(_ context.Context, userA, userB string, limit int) ([]store.Message, error) {
	var out []store.Message
	for _, m := range f.messages {
		if (m.SenderID == userA && m.RecipientID == userB) || (m.SenderID == userB && m.RecipientID == userA) {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStorage) Conversations(_ context.Context, userID string) ([]store.ConversationSummary, error) {
	byPartner := make(map[string]*store.ConversationSummary)
	var order []string
	for _, m := range f.messages {
		var partner string
		switch userID {
		case m.SenderID:
			partner = m.RecipientID
		case m.RecipientID:
			partner = m.SenderID
		default:
			continue
		}
		c, ok := byPartner[partner]
		if !ok {
			c = &store.ConversationSummary{PartnerID: partner}
			byPartner[partner] = c
			order = append(order, partner)
		}
		// Iteration is append order, so later-or-equal timestamps win.
		if !m.CreatedAt.Before(c.LastMessage.CreatedAt) {
			c.LastMessage = m
		}
		if m.RecipientID == userID && !m.IsRead {
			c.UnreadCount++
		}
	}
	var out []store.ConversationSummary
	for _, partner := range order {
		out = append(out, *byPartner[partner])
	}
	return out, nil
}

func (f *fakeStorage) MarkConversationRead(_ context.Context, readerID, otherID string) (int64, error) {
	var count int64
	for i, m := range f.messages {
		if m.RecipientID == readerID && m.SenderID == otherID && !m.IsRead {
			f.messages[i].IsRead = true
			count++
		}
	}
	return count, nil
}

func (f *fakeStorage) DeleteMessage(_ context.Context, messageID, userID string) (bool, error) {
	for i, m := range f.messages {
		if m.ID == messageID && (m.SenderID == userID || m.RecipientID == userID) {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStorage) MarkMessageRead(_ context.Context, messageID, readerID string) (bool, error) {
	for i, m := range f.messages {
		if m.ID == messageID && m.RecipientID == readerID && !m.IsRead {
			f.messages[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStorage) UnreadCount(_ context.Context, userID string) (int, error) {
	count := 0
	for _, m := range f.messages {
		if m.RecipientID == userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeStorage) CreateNotification(_ context.Context, n *store.Notification) error {
	if n.UserID == "" || n.Kind == "" {
		return fmt.Errorf("invalid notification")
	}
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeStorage) Notifications(_ context.Context, userID string, limit int) ([]store.Notification, error) {
	var out []store.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStorage) MarkNotificationRead(_ context.Context, notificationID, userID string) (bool, error) {
	for i, n := range f.notifications {
		if n.ID == notificationID && n.UserID == userID && !n.IsRead {
			f.notifications[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStorage) DeleteNotification(_ context.Context, notificationID, userID string) (bool, error) {
	for i, n := range f.notifications {
		if n.ID == notificationID && n.UserID == userID {
			f.notifications = append(f.notifications[:i], f.notifications[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStorage) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	var count int64
	for i, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			f.notifications[i].IsRead = true
			count++
		}
	}
	return count, nil
}

// fakePusher records realtime pushes and reports delivery per configured
// online users.
type fakePusher struct {
	online    map[string]bool
	pushed    []string
	delivered []protocol.MessageMsg
}

func (f *fakePusher) PushToUser(userID string, _ interface{}) bool {
	f.pushed = append(f.pushed, userID)
	return f.online[userID]
}

func (f *fakePusher) DeliverMessage(msg protocol.MessageMsg) bool {
	f.delivered = append(f.delivered, msg)
	return f.online[msg.RecipientID]
}

func (f *fakePusher) Lookup(userID string) (string, bool) {
	if f.online[userID] {
		return "conn-" + userID, true
	}
	return "", false
}

// fakePresence returns canned last-seen timestamps.
type fakePresence struct {
	lastSeen map[string]time.Time
}

func (f *fakePresence) LastSeen(_ context.Context, userID string) (time.Time, error) {
	return f.lastSeen[userID], nil
}

// fakeBus records published bus messages.
type fakeBus struct {
	notifications map[string][]byte
	announcements [][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{notifications: make(map[string][]byte)}
}

func (f *fakeBus) PublishNotification(userID string, data []byte) error {
	f.notifications[userID] = data
	return nil
}

func (f *fakeBus) PublishAnnouncement(data []byte) error {
	f.announcements = append(f.announcements, data)
	return nil
}

func newTestServer(storage *fakeStorage, pusher *fakePusher, bus *fakeBus) http.Handler {
	return NewServer(":0", storage, pusher, bus, nil).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSendMessage_PersistsAndDelivers(t *testing.T) {
	storage := &fakeStorage{}
	pusher := &fakePusher{online: map[string]bool{"bob": true}}
	h := newTestServer(storage, pusher, newFakeBus())

	rec := doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"bob","content":"hey"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp struct {
		Success   bool          `json:"success"`
		Delivered bool          `json:"delivered"`
		Message   store.Message `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || !resp.Delivered {
		t.Errorf("success=%v delivered=%v, want both true", resp.Success, resp.Delivered)
	}
	if resp.Message.ID == "" {
		t.Error("expected generated message id")
	}

	if len(storage.messages) != 1 {
		t.Fatalf("stored %d messages, want 1", len(storage.messages))
	}
	if len(pusher.delivered) != 1 || pusher.delivered[0].ID != storage.messages[0].ID {
		t.Error("realtime push should carry the persisted message id")
	}
}

func TestSendMessage_OfflineRecipientStillPersists(t *testing.T) {
	storage := &fakeStorage{}
	pusher := &fakePusher{online: map[string]bool{}}
	h := newTestServer(storage, pusher, newFakeBus())

	rec := doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"bob","content":"hey"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Delivered {
		t.Error("delivered should be false for offline recipient")
	}
	if len(storage.messages) != 1 {
		t.Errorf("stored %d messages, want 1", len(storage.messages))
	}
}

func TestSendMessage_RequiresIdentity(t *testing.T) {
	h := newTestServer(&fakeStorage{}, &fakePusher{}, newFakeBus())

	rec := doJSON(t, h, "POST", "/api/messages", "", `{"recipientId":"bob","content":"hey"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestConversation_ReturnsBothDirections(t *testing.T) {
	storage := &fakeStorage{}
	pusher := &fakePusher{online: map[string]bool{}}
	h := newTestServer(storage, pusher, newFakeBus())

	doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"bob","content":"one"}`)
	doJSON(t, h, "POST", "/api/messages", "bob", `{"recipientId":"alice","content":"two"}`)
	doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"carol","content":"other"}`)

	rec := doJSON(t, h, "GET", "/api/messages/conversations/bob", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(resp.Messages))
	}

	// Opening the conversation marks bob's messages to alice as read.
	for _, m := range storage.messages {
		if m.SenderID == "bob" && m.RecipientID == "alice" && !m.IsRead {
			t.Errorf("message %s should be read after alice opened the conversation", m.ID)
		}
		if m.SenderID == "alice" && m.IsRead {
			t.Errorf("alice's own outgoing message %s should stay unread", m.ID)
		}
	}
}

func TestConversations_ListsPartnersWithUnreadCounts(t *testing.T) {
	storage := &fakeStorage{}
	h := newTestServer(storage, &fakePusher{}, newFakeBus())

	doJSON(t, h, "POST", "/api/messages", "bob", `{"recipientId":"alice","content":"first"}`)
	doJSON(t, h, "POST", "/api/messages", "bob", `{"recipientId":"alice","content":"second"}`)
	doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"carol","content":"hi carol"}`)

	rec := doJSON(t, h, "GET", "/api/messages/conversations", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Conversations []store.ConversationSummary `json:"conversations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Conversations) != 2 {
		t.Fatalf("got %d conversations, want 2", len(resp.Conversations))
	}

	byPartner := make(map[string]store.ConversationSummary)
	for _, c := range resp.Conversations {
		byPartner[c.PartnerID] = c
	}

	bob, ok := byPartner["bob"]
	if !ok {
		t.Fatal("expected a conversation with bob")
	}
	if bob.UnreadCount != 2 {
		t.Errorf("bob unread = %d, want 2", bob.UnreadCount)
	}
	if bob.LastMessage.Content != "second" {
		t.Errorf("bob last message = %q, want %q", bob.LastMessage.Content, "second")
	}

	carol, ok := byPartner["carol"]
	if !ok {
		t.Fatal("expected a conversation with carol")
	}
	if carol.UnreadCount != 0 {
		t.Errorf("carol unread = %d, want 0 (alice sent, never received)", carol.UnreadCount)
	}

	rec = doJSON(t, h, "GET", "/api/messages/conversations", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing identity status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestDeleteNotification_OwnerOnly(t *testing.T) {
	storage := &fakeStorage{}
	h := newTestServer(storage, &fakePusher{}, newFakeBus())

	doJSON(t, h, "POST", "/api/notifications", "", `{"userId":"bob","kind":"like"}`)
	notifID := storage.notifications[0].ID

	rec := doJSON(t, h, "DELETE", "/api/notifications/"+notifID, "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if len(storage.notifications) != 1 {
		t.Fatal("foreign delete should not remove the notification")
	}

	rec = doJSON(t, h, "DELETE", "/api/notifications/"+notifID, "bob", "")
	if rec.Code != http.StatusOK {
		t.Errorf("owner delete status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(storage.notifications) != 0 {
		t.Errorf("notification should be gone, %d remain", len(storage.notifications))
	}
}

func TestUnreadCount(t *testing.T) {
	storage := &fakeStorage{}
	h := newTestServer(storage, &fakePusher{}, newFakeBus())

	doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"bob","content":"one"}`)
	doJSON(t, h, "POST", "/api/messages", "carol", `{"recipientId":"bob","content":"two"}`)

	rec := doJSON(t, h, "GET", "/api/messages/unread-count", "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
}

func TestDeleteMessage_ParticipantsOnly(t *testing.T) {
	storage := &fakeStorage{}
	h := newTestServer(storage, &fakePusher{}, newFakeBus())

	doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"bob","content":"hey"}`)
	msgID := storage.messages[0].ID

	rec := doJSON(t, h, "DELETE", "/api/messages/"+msgID, "carol", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-participant delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = doJSON(t, h, "DELETE", "/api/messages/"+msgID, "alice", "")
	if rec.Code != http.StatusOK {
		t.Errorf("participant delete status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(storage.messages) != 0 {
		t.Errorf("message should be gone, %d remain", len(storage.messages))
	}
}

func TestMarkMessageRead_OnlyRecipient(t *testing.T) {
	storage := &fakeStorage{}
	h := newTestServer(storage, &fakePusher{}, newFakeBus())

	doJSON(t, h, "POST", "/api/messages", "alice", `{"recipientId":"bob","content":"hey"}`)
	msgID := storage.messages[0].ID

	// Sender cannot mark their own outgoing message read.
	rec := doJSON(t, h, "PUT", "/api/messages/"+msgID+"/read", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("sender mark read status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = doJSON(t, h, "PUT", "/api/messages/"+msgID+"/read", "bob", "")
	if rec.Code != http.StatusOK {
		t.Errorf("recipient mark read status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !storage.messages[0].IsRead {
		t.Error("message should be marked read")
	}
}

func TestCreateNotification_PublishesToBus(t *testing.T) {
	storage := &fakeStorage{}
	bus := newFakeBus()
	h := newTestServer(storage, &fakePusher{}, bus)

	rec := doJSON(t, h, "POST", "/api/notifications", "",
		`{"userId":"bob","kind":"like","actorId":"alice","subjectId":"post-1","body":"alice liked your post"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	if len(storage.notifications) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(storage.notifications))
	}
	data, ok := bus.notifications["bob"]
	if !ok {
		t.Fatal("expected a bus publish for bob")
	}
	var n store.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatalf("decode published notification: %v", err)
	}
	if n.ID != storage.notifications[0].ID {
		t.Error("published notification should carry the persisted id")
	}
}

func TestNotificationReadEndpoints(t *testing.T) {
	storage := &fakeStorage{}
	h := newTestServer(storage, &fakePusher{}, newFakeBus())

	doJSON(t, h, "POST", "/api/notifications", "", `{"userId":"bob","kind":"like"}`)
	doJSON(t, h, "POST", "/api/notifications", "", `{"userId":"bob","kind":"follow"}`)
	notifID := storage.notifications[0].ID

	// Another user cannot mark bob's notification.
	rec := doJSON(t, h, "PUT", "/api/notifications/"+notifID+"/read", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign mark read status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = doJSON(t, h, "PUT", "/api/notifications/"+notifID+"/read", "bob", "")
	if rec.Code != http.StatusOK {
		t.Errorf("own mark read status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = doJSON(t, h, "PUT", "/api/notifications/read-all", "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("read-all status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Updated int64 `json:"updated"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Updated != 1 {
		t.Errorf("read-all updated %d, want 1 (one was already read)", resp.Updated)
	}
}

func TestUserPresence_OnlineAndLastSeen(t *testing.T) {
	lastSeen := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	pusher := &fakePusher{online: map[string]bool{"alice": true}}
	presence := &fakePresence{lastSeen: map[string]time.Time{"bob": lastSeen}}
	h := NewServer(":0", &fakeStorage{}, pusher, newFakeBus(), presence).Handler()

	rec := doJSON(t, h, "GET", "/api/users/alice/presence", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Online   bool   `json:"online"`
		LastSeen *int64 `json:"lastSeen"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Online || resp.LastSeen != nil {
		t.Errorf("online user: online=%v lastSeen=%v", resp.Online, resp.LastSeen)
	}

	rec = doJSON(t, h, "GET", "/api/users/bob/presence", "", "")
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Online {
		t.Error("bob should be offline")
	}
	if resp.LastSeen == nil || *resp.LastSeen != lastSeen.UnixMilli() {
		t.Errorf("lastSeen = %v, want %d", resp.LastSeen, lastSeen.UnixMilli())
	}

	// Never-seen user: no lastSeen field at all.
	rec = doJSON(t, h, "GET", "/api/users/carol/presence", "", "")
	resp.LastSeen = nil
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.LastSeen != nil {
		t.Error("never-seen user should omit lastSeen")
	}
}

func TestAnnouncement_PublishesToBus(t *testing.T) {
	bus := newFakeBus()
	h := newTestServer(&fakeStorage{}, &fakePusher{}, bus)

	rec := doJSON(t, h, "POST", "/api/announcements", "", `{"message":"maintenance at midnight"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(bus.announcements) != 1 || string(bus.announcements[0]) != "maintenance at midnight" {
		t.Errorf("announcements = %q, want the posted message", bus.announcements)
	}

	rec = doJSON(t, h, "POST", "/api/announcements", "", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty announcement status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
