package e2e_harness

import (
	"context"
	"testing"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/factory"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTwice runs a full import and then a differential one, returning the
// emissions of each.
func runTwice(t *testing.T, cfg *pimsync.Config) (*transform.Recorder, *transform.Recorder) {
	t.Helper()
	ctx := context.Background()
	var recorders []*transform.Recorder
	for range 2 {
		syncer, err := factory.NewSyncer(ctx, cfg)
		require.NoError(t, err)
		rec := &transform.Recorder{}
		reports, err := syncer.Runner.Run(ctx, rec)
		syncer.Close()
		require.NoError(t, err)
		for _, r := range reports {
			assert.Equal(t, pimsync.JobStatusOK, r.Status, r.Step)
		}
		recorders = append(recorders, rec)
	}
	return recorders[0], recorders[1]
}

func assertCatalog(t *testing.T, full, diff *transform.Recorder) {
	t.Helper()
	assert.Equal(t, []pimsync.Emission{{Key: "akeneo_price", Values: []string{"5 EUR"}}}, full.ByKey("akeneo_price"))
	assert.Contains(t, full.ByKey("variant"), pimsync.Emission{Key: "variant", Value: "sku-1"})
	assert.Equal(t, []pimsync.Emission{{Key: "category-assignment", Value: "kitchen", Label: "primary"}}, full.ByKey("category-assignment"))
	assert.Equal(t, []pimsync.Emission{{Key: "entity-record-label", Value: "akeneo_entity_brands_acme", Locale: "en_US", Label: "Acme"}},
		full.ByKey("entity-record-label"))
	// The changed asset refreshes its product on the differential run.
	assert.Len(t, diff.ByKey("akeneo_price"), 2)
}

func TestE2EBackends(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}

	if _, err := h.StartPostgres(ctx); err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer h.StopPostgres(ctx)
	if _, err := h.StartS3(ctx); err != nil {
		t.Fatalf("start minio: %v", err)
	}
	defer h.StopS3(ctx)
	if _, err := h.StartRedis(ctx); err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer h.StopRedis(ctx)

	t.Run("postgres cache and watermarks", func(t *testing.T) {
		api := NewCatalogServer()
		defer api.Close()
		cfg := api.Config()
		cfg.Cache.Backend = pimsync.CacheBackendPostgres
		cfg.Cache.Postgres = h.Postgres
		cfg.Watermark.Backend = pimsync.WatermarkBackendPostgres

		full, diff := runTwice(t, cfg)
		assertCatalog(t, full, diff)
		assert.Equal(t, 1, api.Hits(pim.ProductPath("sku-1")))

		last, err := ReadWatermark(ctx, h.PGDB, cfg.Cache.Postgres.WatermarkTable, cfg.Import.CatalogRuntimeObject)
		require.NoError(t, err)
		assert.NotEmpty(t, last)
		n, err := CountCacheEntries(ctx, h.PGDB, cfg.Cache.Postgres.CacheTable)
		require.NoError(t, err)
		assert.Positive(t, n)
	})

	t.Run("s3 cache", func(t *testing.T) {
		require.NoError(t, EnsureBucket(ctx, h.S3Endpoint, S3AccessKey, S3SecretKey, "pimsync-e2e"))
		api := NewCatalogServer()
		defer api.Close()
		cfg := api.Config()
		cfg.Cache.Backend = pimsync.CacheBackendS3
		cfg.Cache.S3.Bucket = "pimsync-e2e"
		cfg.Cache.S3.Endpoint = h.S3Endpoint
		cfg.Cache.S3.Region = "us-east-1"
		cfg.Cache.S3.AccessKey = S3AccessKey
		cfg.Cache.S3.SecretKey = S3SecretKey
		cfg.Cache.S3.UsePathStyle = true

		full, diff := runTwice(t, cfg)
		assertCatalog(t, full, diff)
	})

	t.Run("redis cache", func(t *testing.T) {
		api := NewCatalogServer()
		defer api.Close()
		cfg := api.Config()
		cfg.Cache.Backend = pimsync.CacheBackendRedis
		cfg.Cache.Redis = h.Redis

		full, diff := runTwice(t, cfg)
		assertCatalog(t, full, diff)
		assert.Equal(t, 1, api.Hits(pim.TokenPath), "the token is reused from the cache")
	})
}
