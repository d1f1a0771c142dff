package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisClient struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisClient(addr, password string, db int, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connected successfully", zap.String("addr", addr))

	return &RedisClient{
		client: rdb,
		log:    log,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// AvailabilityCache хранит посчитанную доступность по поколению товара.
// Каждая закоммиченная запись по товару увеличивает поколение, и старые
// ключи просто перестают читаться, пока не истечёт TTL.
type AvailabilityCache struct {
	rdb redis.Cmdable
	log *zap.Logger
	ttl time.Duration
}

func NewAvailabilityCache(rc *RedisClient, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{rdb: rc.client, log: rc.log, ttl: ttl}
}

func generationKey(productID uuid.UUID) string {
	return fmt.Sprintf("ledger:gen:%s", productID)
}

func availabilityKey(productID uuid.UUID, gen int64, r models.DateRange) string {
	return fmt.Sprintf("ledger:avail:%s:%d:%s:%s",
		productID, gen, r.Start.Format(models.DateLayout), r.End.Format(models.DateLayout))
}

// Lookup returns cached days (nil on miss) and the key a fresh result must be
// stored under.
func (c *AvailabilityCache) Lookup(ctx context.Context, productID uuid.UUID, r models.DateRange) ([]availability.Day, string, error) {
	gen, err := c.rdb.Get(ctx, generationKey(productID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", err
	}
	key := availabilityKey(productID, gen, r)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, key, nil
	}
	if err != nil {
		return nil, key, err
	}

	var days []availability.Day
	if err := json.Unmarshal(raw, &days); err != nil {
		c.log.Warn("битая запись кэша доступности", zap.String("key", key), zap.Error(err))
		return nil, key, nil
	}
	return days, key, nil
}

func (c *AvailabilityCache) Store(ctx context.Context, key string, days []availability.Day) error {
	raw, err := json.Marshal(days)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, productID uuid.UUID) error {
	return c.rdb.Incr(ctx, generationKey(productID)).Err()
}
