package diffsync

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/variation"
	"go.uber.org/zap"
)

// Cache locations owned by the coordinator
const (
	TemporaryTimestampFolder = "/temporary-timestamp"
	AssetFamiliesFolder      = "/asset-families"
)

// Timestamp layouts of the runtime objects
const (
	CatalogTimestampLayout = "2006-01-02 15:04:05"
	DefaultTimestampLayout = "2006-01-02T15:04:05Z"
)

// EndpointKind names a listing that accepts an updated-since filter
type EndpointKind string

const (
	KindProducts      EndpointKind = "products"
	KindProductModels EndpointKind = "product-models"
	KindAssets        EndpointKind = "assets"
)

// QueryFilter restricts a listing to entities changed since the last import.
// UpdatedSince is "" on a full import.
type QueryFilter struct {
	UpdatedSince string
}

// AttributeCache is the part of the attribute resolver cleared on full imports.
type AttributeCache interface {
	ClearCache(ctx context.Context)
}

// Options configures a Coordinator
type Options struct {
	CatalogID string
	// CatalogRuntimeID is the runtime object whose timestamps use CatalogTimestampLayout.
	CatalogRuntimeID string
	Now              func() time.Time
}

// Coordinator decides between full and differential imports and keeps the
// deferred watermark of one job run.
type Coordinator struct {
	cache      pimsync.CacheStore
	watermarks pimsync.WatermarkStore
	attrs      AttributeCache
	opts       Options

	runtimeID    string
	differential bool
}

// New creates a coordinator. attrs may be nil when no resolver shares the cache.
func New(cache pimsync.CacheStore, watermarks pimsync.WatermarkStore, attrs AttributeCache, opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{cache: cache, watermarks: watermarks, attrs: attrs, opts: opts}
}

// AssetKey returns the cache key of an asset record
func AssetKey(assetCode string) string {
	return AssetFamiliesFolder + "/assets/" + escape(assetCode)
}

// TemporaryTimestampKey returns the cache key of the timestamp captured at job start
func TemporaryTimestampKey(runtimeID string) string {
	return TemporaryTimestampFolder + "/" + escape(runtimeID)
}

// Begin captures the start timestamp of a run. Without a previous import
// every derived cache is cleared before anything is fetched.
func (c *Coordinator) Begin(ctx context.Context, runtimeID string) error {
	c.runtimeID = runtimeID
	c.cache.SetText(ctx, TemporaryTimestampKey(runtimeID), c.format(runtimeID, c.opts.Now()))

	last, err := c.lastImport(ctx, runtimeID)
	if err != nil {
		return err
	}
	c.differential = last != ""
	if !c.differential {
		zap.S().Infow("no previous import, clearing caches", "runtime", runtimeID)
		c.clearCaches(ctx)
		return nil
	}
	zap.S().Infow("differential import", "runtime", runtimeID, "since", last)
	return nil
}

// Resume attaches to a run begun by an earlier process. Nothing is captured
// or cleared.
func (c *Coordinator) Resume(ctx context.Context, runtimeID string) error {
	last, err := c.lastImport(ctx, runtimeID)
	if err != nil {
		return err
	}
	c.runtimeID = runtimeID
	c.differential = last != ""
	return nil
}

func (c *Coordinator) clearCaches(ctx context.Context) {
	c.cache.Clear(ctx, path.Dir(variation.AxesListKey))
	if c.attrs != nil {
		c.attrs.ClearCache(ctx)
	}
	c.cache.Clear(ctx, variation.FamiliesFolder)
	c.cache.Clear(ctx, variation.ModelProductsKey(c.opts.CatalogID))
	c.cache.Clear(ctx, pim.ProductsCacheFolder(c.opts.CatalogID))
	c.cache.Clear(ctx, RelationsFolder)
	c.cache.Set(ctx, ChangedAssetsKey, []string{})
	c.cache.Clear(ctx, AssetFamiliesFolder)
}

// IsDifferential reports whether the run started by Begin is differential.
func (c *Coordinator) IsDifferential() bool {
	return c.differential
}

// RuntimeID returns the runtime object of the current run
func (c *Coordinator) RuntimeID() string {
	return c.runtimeID
}

// LastImportTime returns the last committed import time, or "" when none
// exists or the runtime is flagged as full import.
func (c *Coordinator) LastImportTime(ctx context.Context, runtimeID string) string {
	last, err := c.lastImport(ctx, runtimeID)
	if err != nil {
		zap.S().Warnw("watermark unavailable, running a full import", "runtime", runtimeID, "error", err)
		return ""
	}
	return last
}

func (c *Coordinator) lastImport(ctx context.Context, runtimeID string) (string, error) {
	w, err := c.watermarks.LoadWatermark(ctx, runtimeID)
	if err != nil {
		return "", pimsync.NewDataInconsistencyError("WATERMARK_UNAVAILABLE", "last import time could not be read").
			WithEntity(runtimeID).WithCause(err)
	}
	if w == nil || w.IsFullImport {
		return "", nil
	}
	return w.LastImportedTime, nil
}

// QueryFilter returns the updated-since restriction of a listing for the current run.
func (c *Coordinator) QueryFilter(ctx context.Context, kind EndpointKind) QueryFilter {
	if c.runtimeID == "" {
		return QueryFilter{}
	}
	since := c.LastImportTime(ctx, c.runtimeID)
	zap.S().Debugw("query filter", "kind", kind, "updatedSince", since)
	return QueryFilter{UpdatedSince: since}
}

// ShouldUseCacheForSecondPass reports whether an exhausted listing of endpoint
// continues with the cached products. Only differential product listings do.
func (c *Coordinator) ShouldUseCacheForSecondPass(ctx context.Context, endpoint string) bool {
	if pim.IsProductModelsEndpoint(endpoint) || !strings.Contains(endpoint, pim.ProductsPath) {
		return false
	}
	return c.QueryFilter(ctx, KindProducts).UpdatedSince != ""
}

// Commit promotes the temporary timestamp, or now when none was captured,
// to the durable watermark. A run that never commits leaves it unchanged.
func (c *Coordinator) Commit(ctx context.Context, runtimeID string) error {
	stamp, ok := c.cache.GetText(ctx, TemporaryTimestampKey(runtimeID))
	if !ok || stamp == "" {
		stamp = c.format(runtimeID, c.opts.Now())
	}
	w, err := c.load(ctx, runtimeID)
	if err != nil {
		return err
	}
	w.LastImportedTime = stamp
	w.UpdatedAt = c.opts.Now().UTC()
	if err := c.watermarks.SaveWatermark(ctx, *w); err != nil {
		return err
	}
	zap.S().Infow("import watermark committed", "runtime", runtimeID, "lastImportedTime", stamp)
	return nil
}

// SetImportType flags the runtime for a full import on its next runs.
func (c *Coordinator) SetImportType(ctx context.Context, runtimeID string, full bool) error {
	w, err := c.load(ctx, runtimeID)
	if err != nil {
		return err
	}
	w.IsFullImport = full
	w.UpdatedAt = c.opts.Now().UTC()
	return c.watermarks.SaveWatermark(ctx, *w)
}

// Clear forgets the last import time so the next run is a full import.
func (c *Coordinator) Clear(ctx context.Context, runtimeID string) error {
	w, err := c.load(ctx, runtimeID)
	if err != nil {
		return err
	}
	w.LastImportedTime = ""
	w.UpdatedAt = c.opts.Now().UTC()
	return c.watermarks.SaveWatermark(ctx, *w)
}

func (c *Coordinator) load(ctx context.Context, runtimeID string) (*pimsync.Watermark, error) {
	w, err := c.watermarks.LoadWatermark(ctx, runtimeID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = &pimsync.Watermark{RuntimeID: runtimeID}
	}
	return w, nil
}

func (c *Coordinator) format(runtimeID string, t time.Time) string {
	if runtimeID == c.opts.CatalogRuntimeID {
		return t.UTC().Format(CatalogTimestampLayout)
	}
	return t.UTC().Format(DefaultTimestampLayout)
}

func escape(code string) string {
	return strings.ReplaceAll(code, "/", "%2F")
}
