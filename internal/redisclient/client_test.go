package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"till-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getClient(t *testing.T) *Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromRedis(rdb, time.Minute)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	c := getClient(t)
	ctx := context.Background()
	_ = c.ClearToken(ctx, "test-till")

	token, err := c.LoadToken(ctx, "test-till")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, c.SaveToken(ctx, "test-till", "txn_abc_1"))
	token, err = c.LoadToken(ctx, "test-till")
	require.NoError(t, err)
	assert.Equal(t, "txn_abc_1", token)

	ttl, err := c.rdb.TTL(ctx, sessionKeyPrefix+"test-till").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.ClearToken(ctx, "test-till"))
	token, _ = c.LoadToken(ctx, "test-till")
	assert.Empty(t, token)
}

func TestCartSnapshotRoundTrip(t *testing.T) {
	c := getClient(t)
	ctx := context.Background()
	defer c.DeleteCart(ctx, "txn_cart_test")

	lines := []models.CartLine{
		{ProductID: 4, Name: "Muffin", UnitPrice: decimal.RequireFromString("1.75"), Quantity: 3},
	}
	require.NoError(t, c.SaveCart(ctx, "txn_cart_test", lines))

	got, err := c.LoadCart(ctx, "txn_cart_test")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].ProductID)
	assert.Equal(t, 3, got[0].Quantity)
	assert.True(t, got[0].UnitPrice.Equal(lines[0].UnitPrice))

	require.NoError(t, c.DeleteCart(ctx, "txn_cart_test"))
	got, err = c.LoadCart(ctx, "txn_cart_test")
	require.NoError(t, err)
	assert.Nil(t, got)
}
