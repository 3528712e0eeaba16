package pim

import (
	"context"
	"encoding/json"

	"github.com/lychee-technology/pimsync"
	"go.uber.org/zap"
)

// ReadFromCache is the cursor that replays cached products after the listing is exhausted.
const ReadFromCache = "read-from-cache"

// SecondPassGate decides the differential behaviour of a listing: the
// updated-since filter and whether the cached products follow it.
type SecondPassGate interface {
	LastImportTime(ctx context.Context, runtimeID string) string
	ShouldUseCacheForSecondPass(ctx context.Context, endpoint string) bool
}

// PagerConfig configures a ProductPager
type PagerConfig struct {
	Endpoint  string
	Advanced  string
	CatalogID string
	RuntimeID string
	PageSize  int
}

// ProductBatch is one step of a ProductPager
type ProductBatch struct {
	Items []json.RawMessage
	Next  string
}

// ProductPager walks a products or product models listing. On differential
// product runs it continues with the cached products once the listing ends.
type ProductPager struct {
	client *Client
	cache  pimsync.CacheStore
	gate   SecondPassGate
	cfg    PagerConfig
}

// NewProductPager creates a pager
func NewProductPager(client *Client, cache pimsync.CacheStore, gate SecondPassGate, cfg PagerConfig) *ProductPager {
	return &ProductPager{client: client, cache: cache, gate: gate, cfg: cfg}
}

// ProductsCacheFolder returns the folder of the cached products of a catalog
func ProductsCacheFolder(catalogID string) string {
	return "/products/" + catalogID
}

// Next returns the batch at cursor. "" starts the listing, ReadFromCache
// replays the cache, anything else is a next link. A batch with Next == ""
// is the last one.
func (p *ProductPager) Next(ctx context.Context, cursor string) (ProductBatch, error) {
	if cursor == ReadFromCache {
		return p.replay(ctx), nil
	}

	target := cursor
	if target == "" {
		lastImport := p.gate.LastImportTime(ctx, p.cfg.RuntimeID)
		args, err := SearchArgs(lastImport, p.cfg.Advanced, p.cfg.PageSize)
		if err != nil {
			return ProductBatch{}, pimsync.NewConfigurationError("import.productSearch", err.Error())
		}
		target = p.cfg.Endpoint + args
	}

	page, err := p.client.FetchPage(ctx, target)
	if err != nil {
		return ProductBatch{}, err
	}
	batch := ProductBatch{Items: page.Items, Next: page.NextURL}
	if batch.Next == "" && p.gate.ShouldUseCacheForSecondPass(ctx, p.cfg.Endpoint) {
		batch.Next = ReadFromCache
	}
	return batch, nil
}

func (p *ProductPager) replay(ctx context.Context) ProductBatch {
	folder := ProductsCacheFolder(p.cfg.CatalogID)
	names := p.cache.ListKeys(ctx, folder)
	items := make([]json.RawMessage, 0, len(names))
	for _, name := range names {
		text, ok := p.cache.GetText(ctx, folder+"/"+name)
		if !ok || !json.Valid([]byte(text)) {
			continue
		}
		items = append(items, json.RawMessage(text))
	}
	zap.S().Infow("replaying cached products", "catalog", p.cfg.CatalogID, "count", len(items))
	return ProductBatch{Items: items}
}
