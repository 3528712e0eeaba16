package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lychee-technology/pimsync"
	"go.uber.org/zap"
)

// DefaultShardThreshold is the serialized size above which an option entry is rotated.
const DefaultShardThreshold = 1000000

var _ pimsync.CacheStore = (*Store)(nil)

// Store implements pimsync.CacheStore on top of a Backend. Failures are logged
// and surface as misses.
type Store struct {
	backend        Backend
	shardThreshold int
}

// New creates a Store. A threshold <= 0 selects DefaultShardThreshold.
func New(backend Backend, shardThreshold int) *Store {
	if shardThreshold <= 0 {
		shardThreshold = DefaultShardThreshold
	}
	return &Store{backend: backend, shardThreshold: shardThreshold}
}

// Backend returns the underlying medium
func (s *Store) Backend() Backend {
	return s.backend
}

// Ping checks the backend connection when the backend supports it.
func (s *Store) Ping(ctx context.Context) error {
	if hc, ok := s.backend.(HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, bool) {
	p, ok := ParseKey(key)
	if !ok {
		return nil, false
	}
	body, err := s.backend.Read(ctx, p.Folder, p.File())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zap.S().Warnw("cache read failed", "key", p.String(), "error", err)
		}
		return nil, false
	}
	if len(body) == 0 {
		return nil, false
	}
	return body, true
}

// Get decodes the JSON entry at key into out.
func (s *Store) Get(ctx context.Context, key string, out any) bool {
	body, ok := s.read(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		zap.S().Errorw("cache entry unreadable", "error", pimsync.NewCacheCorruptionError(key, err))
		return false
	}
	return true
}

// GetText returns the raw entry at key
func (s *Store) GetText(ctx context.Context, key string) (string, bool) {
	body, ok := s.read(ctx, key)
	if !ok {
		return "", false
	}
	return string(body), true
}

// Set stores value as JSON. Keys with a query string are ignored.
func (s *Store) Set(ctx context.Context, key string, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		zap.S().Errorw("cache value not serializable", "key", key, "error", err)
		return
	}
	s.write(ctx, key, body)
}

// SetText stores text verbatim
func (s *Store) SetText(ctx context.Context, key string, text string) {
	s.write(ctx, key, []byte(text))
}

func (s *Store) write(ctx context.Context, key string, body []byte) {
	p, ok := ParseKey(key)
	if !ok {
		return
	}
	if err := s.backend.Write(ctx, p.Folder, p.File(), body); err != nil {
		zap.S().Errorw("cache write failed", "key", p.String(), "error", err)
	}
}

// Clear removes the folder at prefix and everything below it. "" clears the whole cache.
func (s *Store) Clear(ctx context.Context, prefix string) {
	folder, ok := FolderOf(prefix)
	if !ok {
		return
	}
	if err := s.backend.DeletePrefix(ctx, folder); err != nil {
		zap.S().Errorw("cache clear failed", "prefix", folder, "error", err)
	}
}

// ListKeys returns the sorted entry names in the prefix folder, without extension.
func (s *Store) ListKeys(ctx context.Context, prefix string) []string {
	folder, ok := FolderOf(prefix)
	if !ok {
		return nil
	}
	names, err := s.backend.List(ctx, folder)
	if err != nil {
		zap.S().Warnw("cache list failed", "prefix", folder, "error", err)
		return nil
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, strings.TrimSuffix(name, entryExt))
	}
	sort.Strings(keys)
	return keys
}

// AppendOptionShard appends items to the option array at key. When the stored
// array and the new items together exceed the shard threshold, the stored
// entry is renamed to <name><n> (n being the number of entries in the folder)
// and a fresh entry with only the new items is written.
func (s *Store) AppendOptionShard(ctx context.Context, key string, items []pimsync.AttributeOption) {
	p, ok := ParseKey(key)
	if !ok {
		return
	}
	incoming, err := json.Marshal(items)
	if err != nil {
		zap.S().Errorw("option page not serializable", "key", p.String(), "error", err)
		return
	}

	existing, found := s.read(ctx, key)
	if !found {
		s.write(ctx, key, incoming)
		return
	}

	if len(existing)+len(incoming) > s.shardThreshold {
		if err := s.rotate(ctx, p); err != nil {
			zap.S().Errorw("option shard rotation failed", "key", p.String(), "error", err)
			return
		}
		s.write(ctx, key, incoming)
		return
	}

	var current []pimsync.AttributeOption
	if err := json.Unmarshal(existing, &current); err != nil {
		zap.S().Errorw("option shard unreadable, rewriting", "error", pimsync.NewCacheCorruptionError(key, err))
		s.write(ctx, key, incoming)
		return
	}
	s.Set(ctx, key, append(current, items...))
}

func (s *Store) rotate(ctx context.Context, p Path) error {
	names, err := s.backend.List(ctx, p.Folder)
	if err != nil {
		return fmt.Errorf("list %s: %w", p.Folder, err)
	}
	target := fmt.Sprintf("%s%d%s", p.Name, len(names), entryExt)
	zap.S().Infow("rotating option shard", "key", p.String(), "shard", target)
	return s.backend.Rename(ctx, p.Folder, p.File(), target)
}

// ShardCount returns the number of entries in the folder of key.
func (s *Store) ShardCount(ctx context.Context, key string) int {
	p, ok := ParseKey(key)
	if !ok {
		return 0
	}
	names, err := s.backend.List(ctx, p.Folder)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zap.S().Warnw("cache list failed", "prefix", p.Folder, "error", err)
		}
		return 0
	}
	return len(names)
}
