package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/lychee-technology/pimsync/internal/diffsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// ProductKey returns the cache key of a product refreshed by the update pass
func ProductKey(catalogID, identifier string) string {
	return pim.ProductsCacheFolder(catalogID) + "/" + strings.ReplaceAll(identifier, "/", "%2F")
}

// productContext is loaded once per step and shared by every product.
type productContext struct {
	lists attributes.CodeLists
	axes  map[string]struct{}
	tree  []string
}

func (r *Runner) loadProductContext(ctx context.Context) (*productContext, error) {
	lists, err := r.attrs.CodeLists(ctx)
	if err != nil {
		return nil, fmt.Errorf("load code lists: %w", err)
	}
	axes, err := r.variation.VariantAxesCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load variant axes: %w", err)
	}
	return &productContext{lists: lists, axes: axes, tree: r.categoryTree(ctx)}, nil
}

// TransformProducts pages the products listing and emits the custom
// attributes, category assignments and associations of every product.
// Variant products are also assigned to their master model. On differential runs the listing is followed by the products
// cached by the update pass.
func (r *Runner) TransformProducts(ctx context.Context, sink pimsync.Sink) (*pimsync.JobReport, error) {
	t := r.track(StepProducts)
	if err := r.attach(ctx); err != nil {
		return nil, err
	}
	pc, err := r.loadProductContext(ctx)
	if err != nil {
		return nil, err
	}

	err = r.walk(ctx, pim.ProductsPath, r.cfg.Import.ProductSearch, func(raw json.RawMessage) error {
		product, err := decodeEntity(raw)
		if err != nil {
			return t.fail("", err)
		}
		if err := r.processProduct(ctx, product, sink, pc); err != nil {
			return t.fail(product.Key(), err)
		}
		t.ok()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.done(t), nil
}

func (r *Runner) processProduct(ctx context.Context, product pimsync.Entity, sink pimsync.Sink, pc *productContext) error {
	if !r.variation.CategoryMatches(product.Categories) {
		zap.S().Debugw("product outside configured categories", "identifier", product.Identifier)
		return nil
	}
	if product.Parent != "" {
		if err := r.variation.AssignVariantToMaster(ctx, product); err != nil {
			return err
		}
	}
	if err := r.recordAssets(ctx, product, pc.lists.Asset); err != nil {
		return err
	}
	startEntity(sink, product.Key())
	if err := r.engine.TransformEntity(ctx, product, sink, pc.axes, pc.lists.Select); err != nil {
		return err
	}
	r.emitRelations(ctx, product, pc.tree, sink)
	return nil
}

// recordAssets links every asset referenced by product to it. The asset
// must have been cached by the assets step.
func (r *Runner) recordAssets(ctx context.Context, product pimsync.Entity, assetCodes []string) error {
	for _, code := range assetCodes {
		for _, v := range product.Values[code] {
			assets, ok := v.Data.([]any)
			if !ok {
				continue
			}
			for _, a := range assets {
				asset, ok := a.(string)
				if !ok || asset == "" {
					continue
				}
				if _, cached := r.cache.GetText(ctx, diffsync.AssetKey(asset)); !cached {
					return pimsync.NewDataInconsistencyError(pimsync.ErrCodeMissingAsset,
						fmt.Sprintf("asset '%s' not found in cache, run the %s step to reinitialize it", asset, StepAssets)).
						WithEntity(product.Key()).
						WithField(code)
				}
				r.sync.RecordAssetProductRelation(ctx, asset, product.Key())
			}
		}
	}
	return nil
}

// UpdateProducts refetches every product referencing an asset changed since
// the last import, caches it for the product replay and emits it.
func (r *Runner) UpdateProducts(ctx context.Context, sink pimsync.Sink) (*pimsync.JobReport, error) {
	t := r.track(StepUpdateProducts)
	if err := r.attach(ctx); err != nil {
		return nil, err
	}
	codes := r.sync.DrainAssetProductRelations(ctx)
	if len(codes) == 0 {
		return r.done(t), nil
	}
	pc, err := r.loadProductContext(ctx)
	if err != nil {
		return nil, err
	}

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var product pimsync.Entity
		if err := r.client.Get(ctx, pim.ProductPath(code), &product); err != nil {
			return nil, fmt.Errorf("fetch product %s: %w", code, err)
		}
		if product.Values == nil {
			product.Values = pimsync.Values{}
		}
		r.cache.Set(ctx, ProductKey(r.cfg.Import.CatalogID, product.Key()), product)

		if err := r.processProduct(ctx, product, sink, pc); err != nil {
			if err := t.fail(product.Key(), err); err != nil {
				return nil, err
			}
			continue
		}
		t.ok()
	}
	return r.done(t), nil
}
