package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"fleet_gateway/types"
)

// RedisClient: подмножество *redis.Client, используемое горячим кэшем
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// HotCache keeps completed verification records in Redis in front of Postgres.
// Every method degrades to a miss on Redis errors.
type HotCache interface {
	Get(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, bool)
	Put(ctx context.Context, record *types.VerificationRecord, ttl time.Duration)
	Invalidate(ctx context.Context, callerID, vehicleNumber string, service types.Service)
}

type hotCache struct {
	rdb    RedisClient
	logger *zap.Logger
}

func NewHotCache(rdb RedisClient, logger *zap.Logger) HotCache {
	return &hotCache{
		rdb:    rdb,
		logger: logger,
	}
}

func CacheKey(callerID, vehicleNumber string, service types.Service) string {
	return fmt.Sprintf("verification:%s:%s:%s", callerID, service, vehicleNumber)
}

// Get получает запись из Redis по ключу (caller, service, vehicle)
func (c *hotCache) Get(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, bool) {
	key := CacheKey(callerID, vehicleNumber, service)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("hot cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var record types.VerificationRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		c.logger.Warn("hot cache entry is corrupted", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	c.logger.Debug("data retrieved from hot cache", zap.String("key", key))
	return &record, true
}

func (c *hotCache) Put(ctx context.Context, record *types.VerificationRecord, ttl time.Duration) {
	if record == nil || ttl <= 0 {
		return
	}
	key := CacheKey(record.CallerID, record.VehicleNumber, record.Service)

	data, err := json.Marshal(record)
	if err != nil {
		c.logger.Warn("failed to marshal record for hot cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("hot cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *hotCache) Invalidate(ctx context.Context, callerID, vehicleNumber string, service types.Service) {
	key := CacheKey(callerID, vehicleNumber, service)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("hot cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
