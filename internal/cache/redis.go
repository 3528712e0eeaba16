package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/pimsync"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by RedisBackend.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Rename(ctx context.Context, key, newkey string) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisBackend keeps each entry in a string key. Every folder has a set of its
// entry names, and one registry set lists all non-empty folders.
type RedisBackend struct {
	client RedisClient
	prefix string
}

// NewRedisClient connects to the configured server and verifies it answers.
func NewRedisClient(ctx context.Context, cfg pimsync.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisBackend creates a backend namespacing every key with prefix.
func NewRedisBackend(client RedisClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) entryKey(folder, name string) string {
	return b.prefix + ":entry:" + folder + "/" + name
}

func (b *RedisBackend) folderKey(folder string) string {
	return b.prefix + ":folder:" + folder
}

func (b *RedisBackend) registryKey() string {
	return b.prefix + ":folders"
}

func (b *RedisBackend) Read(ctx context.Context, folder, name string) ([]byte, error) {
	body, err := b.client.Get(ctx, b.entryKey(folder, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return body, err
}

func (b *RedisBackend) Write(ctx context.Context, folder, name string, body []byte) error {
	if err := b.client.Set(ctx, b.entryKey(folder, name), body, 0).Err(); err != nil {
		return fmt.Errorf("set %s/%s: %w", folder, name, err)
	}
	return b.register(ctx, folder, name)
}

func (b *RedisBackend) register(ctx context.Context, folder, name string) error {
	if err := b.client.SAdd(ctx, b.folderKey(folder), name).Err(); err != nil {
		return fmt.Errorf("index %s/%s: %w", folder, name, err)
	}
	return b.client.SAdd(ctx, b.registryKey(), folder).Err()
}

func (b *RedisBackend) Rename(ctx context.Context, folder, from, to string) error {
	err := b.client.Rename(ctx, b.entryKey(folder, from), b.entryKey(folder, to)).Err()
	if err != nil {
		if isRedisNoSuchKey(err) {
			return ErrNotFound
		}
		return fmt.Errorf("rename %s/%s: %w", folder, from, err)
	}
	if err := b.client.SRem(ctx, b.folderKey(folder), from).Err(); err != nil {
		return err
	}
	return b.register(ctx, folder, to)
}

func isRedisNoSuchKey(err error) bool {
	return strings.Contains(err.Error(), "no such key")
}

func (b *RedisBackend) Delete(ctx context.Context, folder, name string) error {
	if err := b.client.Del(ctx, b.entryKey(folder, name)).Err(); err != nil {
		return err
	}
	return b.client.SRem(ctx, b.folderKey(folder), name).Err()
}

func (b *RedisBackend) DeletePrefix(ctx context.Context, folder string) error {
	folders, err := b.client.SMembers(ctx, b.registryKey()).Result()
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	for _, f := range folders {
		if !inFolder(f, folder) {
			continue
		}
		names, err := b.client.SMembers(ctx, b.folderKey(f)).Result()
		if err != nil {
			return fmt.Errorf("list folder %s: %w", f, err)
		}
		keys := make([]string, 0, len(names)+1)
		for _, name := range names {
			keys = append(keys, b.entryKey(f, name))
		}
		keys = append(keys, b.folderKey(f))
		if err := b.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete folder %s: %w", f, err)
		}
		if err := b.client.SRem(ctx, b.registryKey(), f).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (b *RedisBackend) List(ctx context.Context, folder string) ([]string, error) {
	return b.client.SMembers(ctx, b.folderKey(folder)).Result()
}

// Ping checks the redis connection
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
