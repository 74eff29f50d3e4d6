// Package session manages ephemeral per-connection records backed by Redis.
// A record is created when a WebSocket connection is established, tagged with
// the user identity on authenticate, and deleted on disconnect. The store
// also tracks per-user last-seen timestamps used by the HTTP API.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ConnPrefix is the Redis key prefix for connection record hashes.
	ConnPrefix = "conn:"

	// LastSeenPrefix is the Redis key prefix for per-user last-seen timestamps.
	LastSeenPrefix = "lastseen:"

	// ConnTTL is the time-to-live for connection record keys in Redis. The
	// heartbeat evicts dead connections well before this; the TTL only cleans
	// up after an unclean server exit.
	ConnTTL = 1 * time.Hour

	// LastSeenTTL is how long a user's last-seen timestamp is retained.
	LastSeenTTL = 30 * 24 * time.Hour
)

// Record represents a connection's state stored in Redis.
type Record struct {
	ID         string `redis:"id"`
	UserID     string `redis:"user_id"`     // empty until the connection authenticates
	Server     string `redis:"server"`      // which server instance owns the connection
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages connection records in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this server instance
}

// NewStore creates a new connection record store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create stores a new connection record in Redis with a 1h TTL.
func (s *Store) Create(ctx context.Context, connID string) error {
	key := ConnPrefix + connID
	now := time.Now().Unix()

	record := map[string]interface{}{
		"id":          connID,
		"user_id":     "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, record)
	pipe.Expire(ctx, key, ConnTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a connection record from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, connID string) (*Record, error) {
	key := ConnPrefix + connID
	var record Record
	err := s.client.HGetAll(ctx, key).Scan(&record)
	if err != nil {
		return nil, err
	}
	if record.ID == "" {
		return nil, nil // not found
	}
	return &record, nil
}

// SetUser tags the connection record with the authenticated user identity
// and refreshes the TTL.
func (s *Store) SetUser(ctx context.Context, connID string, userID string) error {
	key := ConnPrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "user_id", userID, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, ConnTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Touch updates the record's last-active timestamp and refreshes the TTL.
func (s *Store) Touch(ctx context.Context, connID string) error {
	key := ConnPrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, ConnTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a connection record from Redis.
func (s *Store) Delete(ctx context.Context, connID string) error {
	key := ConnPrefix + connID
	return s.client.Del(ctx, key).Err()
}

// SetLastSeen records when a user was last seen online.
func (s *Store) SetLastSeen(ctx context.Context, userID string, t time.Time) error {
	key := LastSeenPrefix + userID
	return s.client.Set(ctx, key, t.UnixMilli(), LastSeenTTL).Err()
}

// LastSeen returns the user's last-seen timestamp, or the zero time if the
// user has never been seen (or the record expired).
func (s *Store) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	key := LastSeenPrefix + userID
	ms, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
