package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/receptionist-scheduler/internal/booking"
	appconfig "github.com/wolfman30/receptionist-scheduler/internal/config"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildGroupLocker prefers the Redis lock so confirms are serialised across
// replicas, and falls back to an in-process lock.
func BuildGroupLocker(client *redis.Client, cfg *appconfig.Config, logger *logging.Logger) booking.GroupLocker {
	if logger == nil {
		logger = logging.Default()
	}
	if client == nil {
		logger.Warn("group lock is process-local; run a single replica or configure REDIS_ADDR")
		return booking.NewLocalLocker()
	}
	ttl := cfg.GroupLockTTL
	return booking.NewRedisLocker(client, ttl, ttl)
}
