package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"till-service/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	sessionKeyPrefix = "till:session:"
	cartKeyPrefix    = "till:cart:"
)

// Client persists the till's session token and cart snapshot. Every key
// expires after ttl, which bounds the lifetime of an abandoned session.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient connects to Redis and verifies the connection
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb, ttl), nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{rdb: rdb, ttl: ttl}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// LoadToken returns the stored session token for a till, empty if none
func (c *Client) LoadToken(ctx context.Context, tillID string) (string, error) {
	token, err := c.rdb.Get(ctx, sessionKeyPrefix+tillID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session token: %w", err)
	}
	return token, nil
}

// SaveToken stores the session token for a till
func (c *Client) SaveToken(ctx context.Context, tillID, token string) error {
	if err := c.rdb.Set(ctx, sessionKeyPrefix+tillID, token, c.ttl).Err(); err != nil {
		return fmt.Errorf("set session token: %w", err)
	}
	return nil
}

// ClearToken removes the session token for a till
func (c *Client) ClearToken(ctx context.Context, tillID string) error {
	return c.rdb.Del(ctx, sessionKeyPrefix+tillID).Err()
}

// SaveCart stores a snapshot of the cart lines for a session
func (c *Client) SaveCart(ctx context.Context, sessionID string, lines []models.CartLine) error {
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, cartKeyPrefix+sessionID, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cart snapshot: %w", err)
	}
	return nil
}

// LoadCart returns the cart snapshot for a session, nil if none exists
func (c *Client) LoadCart(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	payload, err := c.rdb.Get(ctx, cartKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart snapshot: %w", err)
	}

	var lines []models.CartLine
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}
	return lines, nil
}

// DeleteCart removes the cart snapshot for a session
func (c *Client) DeleteCart(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, cartKeyPrefix+sessionID).Err()
}
