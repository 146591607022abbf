package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hookrelay/internal/config"
)

const redisConnectTimeout = 5 * time.Second

// NewStore returns a Redis-backed hook store when a Redis host is
// configured and reachable, otherwise an in-memory one.
func NewStore(cfg config.RedisConfig, log *zap.Logger) HookStore {
	if cfg.Host == "" {
		log.Info("💾 Using in-memory hook store")
		return NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	store, err := NewRedisStore(ctx, cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.TTL)
	if err != nil {
		log.Warn("⚠️  Redis connection failed, falling back to in-memory hook store",
			zap.String("addr", cfg.Host+":"+cfg.Port), zap.Error(err))
		return NewMemoryStore()
	}

	log.Info("💾 Using Redis hook store", zap.String("addr", cfg.Host+":"+cfg.Port))
	return store
}
