package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const priceSnapshotKey = "ledger:prices:last"

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// RedisPriceSnapshot keeps the last known prices in a Redis hash so a fresh
// instance can serve them while the feed is unreachable
type RedisPriceSnapshot struct {
	client redis.Cmdable
	key    string
}

// NewRedisPriceSnapshot creates a snapshot store on the given client
func NewRedisPriceSnapshot(client redis.Cmdable) *RedisPriceSnapshot {
	return &RedisPriceSnapshot{client: client, key: priceSnapshotKey}
}

// SavePrices overwrites the stored fields with the given prices
func (r *RedisPriceSnapshot) SavePrices(ctx context.Context, prices map[string]decimal.Decimal) error {
	if len(prices) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(prices))
	for symbol, price := range prices {
		fields[symbol] = price.String()
	}

	if err := r.client.HSet(ctx, r.key, fields).Err(); err != nil {
		return fmt.Errorf("failed to save price snapshot: %w", err)
	}
	return nil
}

// LoadPrices returns the stored prices, skipping unparsable fields
func (r *RedisPriceSnapshot) LoadPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load price snapshot: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for symbol, value := range raw {
		price, err := decimal.NewFromString(value)
		if err != nil {
			continue
		}
		prices[symbol] = price
	}
	return prices, nil
}
