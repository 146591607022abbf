package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hookrelay/internal/constants"
	"hookrelay/internal/types"
)

// RedisStore keeps each session's hook log in a Redis list so captured
// bodies do not accumulate in server memory. Lists are deleted when their
// session closes; the TTL only bounds what a crashed process leaves behind.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, host, port, username, password string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func redisKey(sessionID string) string {
	return constants.RedisKeyPrefix + sessionID
}

func (st *RedisStore) Append(ctx context.Context, sessionID string, rec types.HookRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal hook record: %w", err)
	}

	key := redisKey(sessionID)
	pipe := st.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if st.ttl > 0 {
		pipe.Expire(ctx, key, st.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append hook record: %w", err)
	}
	return nil
}

func (st *RedisStore) List(ctx context.Context, sessionID string) ([]types.HookRecord, error) {
	items, err := st.client.LRange(ctx, redisKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hook log: %w", err)
	}

	out := make([]types.HookRecord, 0, len(items))
	for _, item := range items {
		var rec types.HookRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal hook record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (st *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := st.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete hook log: %w", err)
	}
	return nil
}

func (st *RedisStore) Close() error {
	return st.client.Close()
}
