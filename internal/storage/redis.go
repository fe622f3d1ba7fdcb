package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each store in a hash: field = contract id, value = JSON record
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(ctx context.Context, redisURL, password, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "tokenradar"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) sightingsKey() string { return b.prefix + ":sightings" }
func (b *RedisBackend) trackedKey() string   { return b.prefix + ":tracked" }

func (b *RedisBackend) LoadSightings(ctx context.Context) (map[string]*ContractRecord, error) {
	records, err := loadHash[ContractRecord](ctx, b.client, b.sightingsKey())
	if err != nil {
		return nil, err
	}
	if err := validateSightings(b.sightingsKey(), records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *RedisBackend) SaveSightings(ctx context.Context, records map[string]*ContractRecord) error {
	return saveHash(ctx, b.client, b.sightingsKey(), records)
}

func (b *RedisBackend) LoadTracked(ctx context.Context) (map[string]*TrackedToken, error) {
	records, err := loadHash[TrackedToken](ctx, b.client, b.trackedKey())
	if err != nil {
		return nil, err
	}
	if err := validateTracked(b.trackedKey(), records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *RedisBackend) SaveTracked(ctx context.Context, records map[string]*TrackedToken) error {
	return saveHash(ctx, b.client, b.trackedKey(), records)
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func loadHash[T any](ctx context.Context, client *redis.Client, key string) (map[string]*T, error) {
	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}

	records := make(map[string]*T, len(fields))
	for id, raw := range fields {
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: %s field %s: %w", ErrCorruptStore, key, id, err)
		}
		records[id] = &rec
	}
	return records, nil
}

// saveHash replaces the hash atomically with MULTI/EXEC
func saveHash[T any](ctx context.Context, client *redis.Client, key string, records map[string]*T) error {
	values := make(map[string]interface{}, len(records))
	for id, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", id, err)
		}
		values[id] = string(raw)
	}

	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}
