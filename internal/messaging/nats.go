// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the HTTP API, the realtime server, and ops tooling. It handles
// connection lifecycle, subject-based subscriptions, and convenience methods
// for the notification and announcement channels.
package messaging

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	// SubjectNotifyUser is the per-user notification subject prefix; the full
	// subject is notify.user.<user_id>.
	SubjectNotifyUser = "notify.user"

	// SubjectAnnounce carries site-wide announcements delivered to every
	// connected client.
	SubjectAnnounce = "announce"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "ripple",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats: disconnected: %v", err)
			} else {
				log.Printf("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("nats: connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("nats: connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishNotification publishes a notification payload for a specific user.
// The realtime server forwards it to the user's live connection if one exists.
func (c *NATSClient) PublishNotification(userID string, data []byte) error {
	return c.Publish(SubjectNotifyUser+"."+userID, data)
}

// SubscribeNotifications subscribes to notification pushes for all users via
// the notify.user.* wildcard. The handler receives the target user id
// (extracted from the subject) and the raw payload.
func (c *NATSClient) SubscribeNotifications(handler func(userID string, data []byte)) error {
	subject := SubjectNotifyUser + ".*"
	return c.Subscribe(subject, func(msg *nats.Msg) {
		userID := strings.TrimPrefix(msg.Subject, SubjectNotifyUser+".")
		if userID == "" || userID == msg.Subject {
			return
		}
		handler(userID, msg.Data)
	})
}

// PublishAnnouncement publishes a site-wide announcement.
func (c *NATSClient) PublishAnnouncement(data []byte) error {
	return c.Publish(SubjectAnnounce, data)
}

// SubscribeAnnouncements subscribes to site-wide announcements and passes the
// raw message data to the handler.
func (c *NATSClient) SubscribeAnnouncements(handler func(data []byte)) error {
	return c.Subscribe(SubjectAnnounce, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// Flush blocks until all published messages have been processed by the
// server. Used by short-lived publishers before exiting.
func (c *NATSClient) Flush() error {
	return c.conn.Flush()
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("nats: drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("nats: connection drain: %v", err)
	}

	log.Printf("nats: client closed")
}
