package diffsync

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

// Asset relation locations. ChangedAssetsKey lists the assets changed since
// the last import, RelationsFolder holds the products of every asset.
const (
	ChangedAssetsKey = "/asset-product-relation"
	RelationsFolder  = "/asset-product-relation"
)

// RelationKey returns the cache key of the products referencing asset
func RelationKey(assetCode string) string {
	return RelationsFolder + "/" + escape(assetCode)
}

// RecordChangedAsset queues asset for product reconciliation. Full imports
// reprocess every product and record nothing.
func (c *Coordinator) RecordChangedAsset(ctx context.Context, assetCode string) {
	if !c.differential || assetCode == "" {
		return
	}
	var changed []string
	c.cache.Get(ctx, ChangedAssetsKey, &changed)
	if slices.Contains(changed, assetCode) {
		return
	}
	c.cache.Set(ctx, ChangedAssetsKey, append(changed, assetCode))
}

// RecordAssetProductRelation remembers that productCode references assetCode.
func (c *Coordinator) RecordAssetProductRelation(ctx context.Context, assetCode, productCode string) {
	if assetCode == "" || productCode == "" {
		return
	}
	var products []string
	c.cache.Get(ctx, RelationKey(assetCode), &products)
	if slices.Contains(products, productCode) {
		return
	}
	c.cache.Set(ctx, RelationKey(assetCode), append(products, productCode))
}

// AssetProducts returns the products referencing asset
func (c *Coordinator) AssetProducts(ctx context.Context, assetCode string) []string {
	var products []string
	c.cache.Get(ctx, RelationKey(assetCode), &products)
	return products
}

// DrainAssetProductRelations returns every product referencing a changed
// asset, in first-seen order, and empties the changed asset list.
func (c *Coordinator) DrainAssetProductRelations(ctx context.Context) []string {
	var changed []string
	if !c.cache.Get(ctx, ChangedAssetsKey, &changed) || len(changed) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	products := make([]string, 0)
	for _, asset := range changed {
		for _, code := range c.AssetProducts(ctx, asset) {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			products = append(products, code)
		}
	}
	c.cache.Set(ctx, ChangedAssetsKey, []string{})
	zap.S().Infow("drained asset product relations", "assets", len(changed), "products", len(products))
	return products
}
