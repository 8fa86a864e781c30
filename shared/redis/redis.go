package redis

import (
	"context"
	"encoding/json"
	"time"

	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// snapshotTTL bounds how stale a restored snapshot can be.
const snapshotTTL = time.Hour

// Client wraps go-redis for unread snapshot persistence. When multiple
// replicas run, they all converge on the same snapshot between polls.
type Client struct {
	client *redis.Client
}

// NewClient connects using application configuration. Returns nil when no
// Redis address is configured; the syncer then stays in-memory only.
func NewClient() *Client {
	cfg := config.Get()
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Client{client: client}
}

func countsKey(platform models.Platform) string {
	return "unread:" + string(platform)
}

// SaveCounts stores the latest unread-count map for a platform.
func (c *Client) SaveCounts(ctx context.Context, platform models.Platform, counts map[string]int) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, countsKey(platform), data, snapshotTTL).Err()
}

// LoadCounts returns the stored map, or nil when none exists.
func (c *Client) LoadCounts(ctx context.Context, platform models.Platform) (map[string]int, error) {
	data, err := c.client.Get(ctx, countsKey(platform)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var counts map[string]int
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// Ping checks the connection, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
