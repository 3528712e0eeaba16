package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/lychee-technology/pimsync/internal/cache"
	"github.com/lychee-technology/pimsync/internal/diffsync"
	"github.com/lychee-technology/pimsync/internal/pgsql"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/pipeline"
	"github.com/lychee-technology/pimsync/internal/transform"
	"github.com/lychee-technology/pimsync/internal/variation"
	"go.uber.org/zap"
)

// Syncer is a fully wired catalog import. Close releases the connections it
// opened.
type Syncer struct {
	Runner *pipeline.Runner
	Cache  *cache.Store

	closers []func()
}

// Close releases every connection held by the syncer
func (s *Syncer) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// connections opens the shared backend clients on first use
type connections struct {
	cfg     *pimsync.Config
	pool    *pgxpool.Pool
	closers []func()
}

func (c *connections) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if c.pool != nil {
		return c.pool, nil
	}
	pool, err := pgsql.Connect(ctx, c.cfg.Cache.Postgres)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	c.closers = append(c.closers, pool.Close)
	return pool, nil
}

func (c *connections) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// NewSyncer validates cfg and wires every component of a catalog import.
//
// Usage:
//
//	cfg, err := pimsync.LoadConfig("pimsync.yaml")
//	if err != nil {
//	    // handle error
//	}
//	syncer, err := factory.NewSyncer(ctx, cfg)
//	if err != nil {
//	    // handle error
//	}
//	defer syncer.Close()
//	reports, err := syncer.Runner.Run(ctx, sink)
func NewSyncer(ctx context.Context, cfg *pimsync.Config) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		var ce *pimsync.ConfigError
		if errors.As(err, &ce) {
			return nil, ce.AsSyncError()
		}
		return nil, err
	}

	conns := &connections{cfg: cfg}
	s, err := build(ctx, cfg, conns)
	if err != nil {
		conns.close()
		return nil, err
	}
	s.closers = conns.closers
	return s, nil
}

func build(ctx context.Context, cfg *pimsync.Config, conns *connections) (*Syncer, error) {
	backend, err := newBackend(ctx, cfg, conns)
	if err != nil {
		return nil, err
	}
	store := cache.New(backend, cfg.Cache.ShardThreshold)
	if err := store.Ping(ctx); err != nil {
		return nil, pimsync.NewSyncError(pimsync.ErrorTypeConfiguration, pimsync.ErrCodeInvalidSetting,
			"cache backend unreachable").WithField("cache.backend").WithCause(err)
	}

	pageLimit := 0
	if cfg.Debug.BreakOnLimit {
		pageLimit = cfg.Debug.PageLimit
	}

	tokens := pim.NewTokenProvider(cfg.PIM, nil, pim.NewCacheTokenStore(store))
	client, err := pim.NewClient(cfg.PIM, tokens)
	if err != nil {
		return nil, err
	}

	mapper := attributes.NewMapper(cfg.Import.SystemMappings, cfg.Import.CustomMappings)
	attrs, err := attributes.NewResolver(store, client, mapper, attributes.Options{
		PageLimit: pageLimit,
		Advanced:  cfg.Import.AdvancedAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("create attribute resolver: %w", err)
	}
	engine := transform.New(attrs, transform.OptionsFromConfig(cfg.Import))
	models := variation.New(store, client, attrs, variation.Options{
		CatalogID:  cfg.Import.CatalogID,
		Categories: cfg.Import.Categories,
		PageLimit:  pageLimit,
	})

	watermarks, err := newWatermarkStore(ctx, cfg, store, conns)
	if err != nil {
		return nil, err
	}
	coord := diffsync.New(store, watermarks, attrs, diffsync.Options{
		CatalogID:        cfg.Import.CatalogID,
		CatalogRuntimeID: cfg.Import.CatalogRuntimeObject,
	})

	runner := pipeline.New(pipeline.Deps{
		Config:    cfg,
		Cache:     store,
		Client:    client,
		Attrs:     attrs,
		Engine:    engine,
		Variation: models,
		Sync:      coord,
	})
	zap.S().Infow("syncer ready",
		"catalog", cfg.Import.CatalogID,
		"cache", cfg.Cache.Backend,
		"watermarks", cfg.Watermark.Backend,
		"modelImportType", cfg.Import.ModelImportType)
	return &Syncer{Runner: runner, Cache: store}, nil
}

// newBackend opens the configured cache medium
func newBackend(ctx context.Context, cfg *pimsync.Config, conns *connections) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case pimsync.CacheBackendFilesystem:
		backend, err := cache.NewFilesystemBackend(cfg.Cache.BaseDir)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case pimsync.CacheBackendS3:
		client, err := cache.NewS3Client(ctx, cfg.Cache.S3)
		if err != nil {
			return nil, err
		}
		return cache.NewS3Backend(client, cfg.Cache.S3.Bucket, cfg.Cache.S3.Prefix), nil
	case pimsync.CacheBackendRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		conns.closers = append(conns.closers, func() { _ = client.Close() })
		return cache.NewRedisBackend(client, cfg.Cache.Redis.KeyPrefix), nil
	case pimsync.CacheBackendPostgres:
		pool, err := conns.postgres(ctx)
		if err != nil {
			return nil, err
		}
		backend := cache.NewPostgresBackend(pool, cfg.Cache.Postgres.CacheTable)
		if err := backend.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	}
	return nil, pimsync.NewSyncError(pimsync.ErrorTypeConfiguration, pimsync.ErrCodeUnsupportedBackend,
		fmt.Sprintf("unsupported cache backend %q", cfg.Cache.Backend)).WithField("cache.backend")
}

// newWatermarkStore opens the configured watermark store
func newWatermarkStore(ctx context.Context, cfg *pimsync.Config, store *cache.Store, conns *connections) (pimsync.WatermarkStore, error) {
	switch cfg.Watermark.Backend {
	case pimsync.WatermarkBackendCache:
		return diffsync.NewCacheWatermarks(store), nil
	case pimsync.WatermarkBackendPostgres:
		pool, err := conns.postgres(ctx)
		if err != nil {
			return nil, err
		}
		marks := diffsync.NewPostgresWatermarks(pool, cfg.Cache.Postgres.WatermarkTable)
		if err := marks.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return marks, nil
	}
	return nil, pimsync.NewSyncError(pimsync.ErrorTypeConfiguration, pimsync.ErrCodeUnsupportedBackend,
		fmt.Sprintf("unsupported watermark backend %q", cfg.Watermark.Backend)).WithField("watermark.backend")
}
