package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/lucaslui/hems/gait-processor/internal/config"
	"github.com/lucaslui/hems/gait-processor/internal/model"
)

type redisAPI interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisStore keeps the latest record under a key and publishes every record on a channel.
type RedisStore struct {
	rdb     redisAPI
	key     string
	channel string
}

func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", cfg.Addr)
	}
	return &RedisStore{rdb: rdb, key: cfg.Key, channel: cfg.Channel}, nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Insert(ctx context.Context, rec *model.ProcessedRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	if err := s.rdb.Set(ctx, s.key, b, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", s.key)
	}
	if s.channel != "" {
		if err := s.rdb.Publish(ctx, s.channel, b).Err(); err != nil {
			return errors.Wrapf(err, "redis publish %s", s.channel)
		}
	}
	return nil
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.rdb.Close()
}
