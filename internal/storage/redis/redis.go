// Package redis implements storage.AlertedStore on Redis so one-shot alert
// state survives scanner restarts and is shared between scanner replicas.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// DefaultPrefix namespaces alerted keys.
const DefaultPrefix = "pnf:alerted:"

// Client wraps goredis.Client for dependency injection.
type Client struct {
	*goredis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return &Client{Client: client}, nil
}

// AlertedStore implements storage.AlertedStore with SETNX.
type AlertedStore struct {
	client *Client
	prefix string
	ttl    time.Duration // 0 keeps keys forever
}

// NewAlertedStore creates an AlertedStore. An empty prefix selects DefaultPrefix.
func NewAlertedStore(client *Client, prefix string, ttl time.Duration) *AlertedStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &AlertedStore{client: client, prefix: prefix, ttl: ttl}
}

var _ storage.AlertedStore = (*AlertedStore)(nil)

func (s *AlertedStore) key(k domain.AlertKey) string {
	return s.prefix + k.String()
}

// MarkIfAbsent records the key and reports whether it was newly added.
func (s *AlertedStore) MarkIfAbsent(ctx context.Context, key domain.AlertKey) (bool, error) {
	if key.InstrumentID == "" || key.Kind == "" {
		return false, storage.ErrInvalidInput
	}

	ok, err := s.client.SetNX(ctx, s.key(key), time.Now().UnixMilli(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark alerted key: %w", err)
	}
	return ok, nil
}

// Contains reports whether the key has been recorded.
func (s *AlertedStore) Contains(ctx context.Context, key domain.AlertKey) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("check alerted key: %w", err)
	}
	return n > 0, nil
}
