package diffsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pgsql"
)

// RuntimeFolder holds the watermarks kept by CacheWatermarks
const RuntimeFolder = "/import-runtime"

var (
	_ pimsync.WatermarkStore = (*CacheWatermarks)(nil)
	_ pimsync.WatermarkStore = (*PostgresWatermarks)(nil)
)

// CacheWatermarks keeps watermarks as entries of the cache store.
type CacheWatermarks struct {
	cache pimsync.CacheStore
}

// NewCacheWatermarks creates a cache backed watermark store
func NewCacheWatermarks(cache pimsync.CacheStore) *CacheWatermarks {
	return &CacheWatermarks{cache: cache}
}

func (s *CacheWatermarks) LoadWatermark(ctx context.Context, runtimeID string) (*pimsync.Watermark, error) {
	var w pimsync.Watermark
	if !s.cache.Get(ctx, RuntimeFolder+"/"+escape(runtimeID), &w) {
		return nil, nil
	}
	w.RuntimeID = runtimeID
	return &w, nil
}

func (s *CacheWatermarks) SaveWatermark(ctx context.Context, w pimsync.Watermark) error {
	s.cache.Set(ctx, RuntimeFolder+"/"+escape(w.RuntimeID), w)
	return nil
}

// PostgresWatermarks keeps one row per runtime object.
type PostgresWatermarks struct {
	pool  pgsql.Pool
	table string
}

// NewPostgresWatermarks creates a store over table. Call EnsureSchema before first use.
func NewPostgresWatermarks(pool pgsql.Pool, table string) *PostgresWatermarks {
	return &PostgresWatermarks{pool: pool, table: pgsql.SanitizeIdentifier(table)}
}

// EnsureSchema creates the runtime table when missing.
func (s *PostgresWatermarks) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	runtime_id TEXT PRIMARY KEY,
	last_imported_time TEXT NOT NULL DEFAULT '',
	is_full_import BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create watermark table: %w", err)
	}
	return nil
}

func (s *PostgresWatermarks) LoadWatermark(ctx context.Context, runtimeID string) (*pimsync.Watermark, error) {
	query := fmt.Sprintf("SELECT last_imported_time, is_full_import, updated_at FROM %s WHERE runtime_id = $1", s.table)
	w := pimsync.Watermark{RuntimeID: runtimeID}
	err := s.pool.QueryRow(ctx, query, runtimeID).Scan(&w.LastImportedTime, &w.IsFullImport, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load watermark %s: %w", runtimeID, err)
	}
	return &w, nil
}

func (s *PostgresWatermarks) SaveWatermark(ctx context.Context, w pimsync.Watermark) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (runtime_id, last_imported_time, is_full_import, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (runtime_id) DO UPDATE SET last_imported_time = EXCLUDED.last_imported_time,
			is_full_import = EXCLUDED.is_full_import, updated_at = EXCLUDED.updated_at`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query, w.RuntimeID, w.LastImportedTime, w.IsFullImport, w.UpdatedAt); err != nil {
		return fmt.Errorf("save watermark %s: %w", w.RuntimeID, err)
	}
	return nil
}

// Ping checks the pool
func (s *PostgresWatermarks) Ping(ctx context.Context) error {
	return pgsql.HealthCheck(ctx, s.pool, 0)
}
