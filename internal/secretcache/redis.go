package secretcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/totpsync/internal/security/secretbox"
)

// RedisStore comparte el cache entre runners.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	box    *secretbox.Box // nil = valores en claro
}

// NewRedisStore conecta y verifica con PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("secretcache: redis addr required")
	}
	var box *secretbox.Box
	if cfg.EncryptionKey != "" {
		b, err := secretbox.New(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("secretcache: %w", err)
		}
		box = b
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("secretcache: redis ping failed: %w", err)
	}
	return &RedisStore{client: rdb, prefix: cfg.Prefix, ttl: ttl, box: box}, nil
}

// Key: <prefix>:totp:<environment>:<username>.
func (s *RedisStore) Key(username, environment string) string {
	k := "totp:" + environment + ":" + username
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Save(ctx context.Context, username, environment, secret string) error {
	v, err := s.seal(secret)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.Key(username, environment), v, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, username, environment string) (string, error) {
	v, err := s.client.Get(ctx, s.Key(username, environment)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return s.open(v)
}

func (s *RedisStore) Delete(ctx context.Context, username, environment string) error {
	return s.client.Del(ctx, s.Key(username, environment)).Err()
}

func (s *RedisStore) seal(secret string) (string, error) {
	if s.box == nil {
		return secret, nil
	}
	return s.box.Seal(secret)
}

func (s *RedisStore) open(v string) (string, error) {
	if s.box == nil {
		return v, nil
	}
	pt, err := s.box.Open(v)
	if err != nil {
		return "", fmt.Errorf("secretcache: decrypt %w", err)
	}
	return pt, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
