package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
)

const quotaKeyFormat = "quota:%s"

// redisQuotaTTL keeps stale sessions from accumulating. It is deliberately
// longer than the 30-day window: expiry policy belongs to the quota gate,
// the TTL is only garbage collection.
const redisQuotaTTL = 45 * 24 * time.Hour

// RedisQuotaStore persists session quotas in Redis as JSON {count, ts}.
type RedisQuotaStore struct {
	client *redis.Client
}

// NewRedisQuotaStore connects to Redis and verifies the connection.
func NewRedisQuotaStore(addr, password string, db int) (*RedisQuotaStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}

	return &RedisQuotaStore{client: client}, nil
}

// Get returns the stored quota for the session, or nil when unseen.
func (r *RedisQuotaStore) Get(ctx context.Context, sessionID string) (*models.SessionQuota, error) {
	raw, err := r.client.Get(ctx, fmt.Sprintf(quotaKeyFormat, sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get quota: %w", err)
	}

	var quota models.SessionQuota
	if err := json.Unmarshal([]byte(raw), &quota); err != nil {
		return nil, fmt.Errorf("redis: decode quota: %w", err)
	}
	return &quota, nil
}

// Put stores the quota for the session.
func (r *RedisQuotaStore) Put(ctx context.Context, sessionID string, quota models.SessionQuota) error {
	data, err := json.Marshal(quota)
	if err != nil {
		return fmt.Errorf("redis: encode quota: %w", err)
	}
	if err := r.client.Set(ctx, fmt.Sprintf(quotaKeyFormat, sessionID), data, redisQuotaTTL).Err(); err != nil {
		return fmt.Errorf("redis: set quota: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisQuotaStore) Close() error {
	return r.client.Close()
}
