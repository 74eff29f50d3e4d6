// Command announcer is an ops tool for pushing site-wide announcements and
// ad-hoc notifications onto the message bus. Connected servers pick them up
// and fan them out to live clients.
//
// Usage:
//
//	announcer -message "maintenance starts at 02:00 UTC"
//	announcer -user u123 -kind system -body "your export is ready"
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ripple/social-app/internal/messaging"
	"github.com/ripple/social-app/internal/store"
)

func main() {
	message := flag.String("message", "", "announcement text to broadcast to all users")
	userID := flag.String("user", "", "target user id for a single notification")
	kind := flag.String("kind", "system", "notification kind")
	body := flag.String("body", "", "notification body text")
	flag.Parse()

	if *message == "" && *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "ripple-announcer"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	if *message != "" {
		if err := natsClient.PublishAnnouncement([]byte(*message)); err != nil {
			log.Fatalf("failed to publish announcement: %v", err)
		}
		log.Printf("announcement published (%d bytes)", len(*message))
	}

	if *userID != "" {
		n := store.Notification{
			ID:        uuid.New().String(),
			UserID:    *userID,
			Kind:      *kind,
			Body:      *body,
			CreatedAt: time.Now(),
		}
		data, err := json.Marshal(n)
		if err != nil {
			log.Fatalf("failed to marshal notification: %v", err)
		}
		if err := natsClient.PublishNotification(*userID, data); err != nil {
			log.Fatalf("failed to publish notification: %v", err)
		}
		log.Printf("notification published user=%s kind=%s", *userID, *kind)
	}

	if err := natsClient.Flush(); err != nil {
		log.Printf("flush: %v", err)
	}
}
