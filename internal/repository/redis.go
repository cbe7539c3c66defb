package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shareit/internal/config"
	"shareit/internal/models"

	"github.com/redis/go-redis/v9"
)

const bookingKeyPrefix = "booking:"

// RedisBookingCache stores decided bookings as JSON under booking:<id>.
type RedisBookingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisBookingCache(client *redis.Client, ttl time.Duration) *RedisBookingCache {
	return &RedisBookingCache{
		client: client,
		ttl:    ttl,
	}
}

func bookingKey(id int64) string {
	return fmt.Sprintf("%s%d", bookingKeyPrefix, id)
}

func (r *RedisBookingCache) Get(ctx context.Context, id int64) (*models.Booking, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, bookingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking from redis: %w", err)
	}

	var booking models.Booking
	if err := json.Unmarshal(val, &booking); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking: %w", err)
	}
	return &booking, nil
}

func (r *RedisBookingCache) Set(ctx context.Context, booking *models.Booking) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}
	if err := r.client.Set(ctx, bookingKey(booking.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set booking in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
