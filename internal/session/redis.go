package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionTTL bounds how long an abandoned flow survives, in either backend.
const sessionTTL = 30 * time.Minute

// RedisStore persists flow state in Redis so conversations survive restarts
// and multiple bot instances see the same state.
type RedisStore struct {
	client *redis.Client
}

func newRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (State, bool, error) {
	raw, err := r.client.Get(ctx, sessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("get session: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, false, fmt.Errorf("decode session: %w", err)
	}

	return state, true, nil
}

func (r *RedisStore) Set(ctx context.Context, userID int64, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(userID), raw, sessionTTL).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}

	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
