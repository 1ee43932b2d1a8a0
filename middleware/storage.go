package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"adveri/config"
	"adveri/models"
	"adveri/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) key(k string) string {
	return r.prefix + k
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if len(key) == 0 || len(val) == 0 {
		return nil
	}
	return r.client.Set(context.Background(), r.key(key), val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), r.key(key)).Err()
}

// Reset drops only the keys under this storage's prefix.
func (r *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisStorage) Close() error {
	return nil
}

// NewStorage picks the shared storage for the cache and limiter
// middleware. A nil return makes fiber fall back to its memory store.
func NewStorage(cfg config.Config, client *redis.Client, prefix string) fiber.Storage {
	if cfg.CacheType == "redis" && client != nil {
		return NewRedisStorage(client, prefix)
	}
	return nil
}

// AuthRateLimiter throttles login and registration per client IP.
func AuthRateLimiter(max int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			utils.LogEvent("rate_limit_hit", map[string]interface{}{
				"endpoint":   c.Path(),
				"ip":         c.IP(),
				"user_agent": c.Get("User-Agent"),
			})
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "too many attempts, please wait before trying again",
				"retry_after": "1 minute",
			})
		},
		Storage: storage,
	})
}

// DashboardCache caches admin read endpoints per caller for a short while.
func DashboardCache(expiration time.Duration, storage fiber.Storage) fiber.Handler {
	return cache.New(cache.Config{
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			var id uint
			if u, ok := c.Locals("user").(*models.User); ok {
				id = u.ID
			}
			return c.Path() + "|" + strconv.FormatUint(uint64(id), 10)
		},
		Storage: storage,
	})
}
