package variation

import (
	"context"
	"fmt"
	"slices"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// Attributes is the part of the attribute resolver used for variations.
// *attributes.Resolver satisfies it.
type Attributes interface {
	CodeLists(ctx context.Context) (attributes.CodeLists, error)
	SaveCodeLists(ctx context.Context, lists attributes.CodeLists)
	Option(ctx context.Context, attrCode, optionCode string) (pimsync.AttributeOption, bool, error)
	Mapper() *attributes.Mapper
}

// Options configures a Resolver
type Options struct {
	CatalogID string
	// Categories restricts cached model products to these category codes when not empty.
	Categories []string
	PageLimit  int
}

// Resolver maintains model products and their variation data in the cache.
// Model product writes are read-modify-write and last writer wins.
type Resolver struct {
	cache pimsync.CacheStore
	api   attributes.Fetcher
	attrs Attributes
	opts  Options
}

// New creates a Resolver
func New(cache pimsync.CacheStore, api attributes.Fetcher, attrs Attributes, opts Options) *Resolver {
	return &Resolver{cache: cache, api: api, attrs: attrs, opts: opts}
}

// ComputeVariantAxes returns the family variant of a variant family, cache
// first. A freshly fetched definition moves the image and asset codes it
// uses to the front of the cached code lists.
func (r *Resolver) ComputeVariantAxes(ctx context.Context, masterFamilyVariant, variantFamily string) (*pimsync.FamilyVariant, error) {
	if masterFamilyVariant == "" || variantFamily == "" {
		return nil, nil
	}
	key := FamilyVariantKey(variantFamily, masterFamilyVariant)
	var fv pimsync.FamilyVariant
	if r.cache.Get(ctx, key, &fv) {
		return &fv, nil
	}

	if err := r.api.Get(ctx, pim.FamilyVariantPath(variantFamily, masterFamilyVariant), &fv); err != nil {
		return nil, fmt.Errorf("family variant %s/%s: %w", variantFamily, masterFamilyVariant, err)
	}
	r.cache.Set(ctx, key, fv)

	lists, err := r.attrs.CodeLists(ctx)
	if err != nil {
		return nil, err
	}
	images, assets := slices.Clone(lists.Image), slices.Clone(lists.Asset)
	for _, set := range fv.VariantAttributeSets {
		images = moveToFront(images, lists.Image, set.Attributes)
		assets = moveToFront(assets, lists.Asset, set.Attributes)
	}
	lists.Image, lists.Asset = images, assets
	r.attrs.SaveCodeLists(ctx, lists)

	zap.S().Debugw("family variant cached", "family", variantFamily, "variant", fv.Code, "sets", len(fv.VariantAttributeSets))
	return &fv, nil
}

// moveToFront moves every code of order found in used to the front of list,
// the last match ending up first.
func moveToFront(list, order, used []string) []string {
	for _, code := range order {
		if !slices.Contains(used, code) {
			continue
		}
		if i := slices.Index(list, code); i >= 0 {
			list = slices.Delete(list, i, i+1)
		}
		list = slices.Insert(list, 0, code)
	}
	return list
}

// Model returns a model product from the cache, fetching and caching it when absent.
func (r *Resolver) Model(ctx context.Context, code string) (*pimsync.ModelProduct, error) {
	var mp pimsync.ModelProduct
	if r.cache.Get(ctx, ModelProductKey(r.opts.CatalogID, code), &mp) && mp.Code != "" {
		return &mp, nil
	}

	var entity pimsync.Entity
	if err := r.api.Get(ctx, pim.ProductModelPath(code), &entity); err != nil {
		return nil, pimsync.NewMissingModelError(code, err)
	}
	saved, ok := r.SaveModelProduct(ctx, entity)
	if !ok {
		return nil, pimsync.NewMissingModelError(code, nil).WithDetail("reason", "outside configured categories")
	}
	return saved, nil
}

// CachedModel reads a model product from the cache only
func (r *Resolver) CachedModel(ctx context.Context, code string) (*pimsync.ModelProduct, bool) {
	var mp pimsync.ModelProduct
	if !r.cache.Get(ctx, ModelProductKey(r.opts.CatalogID, code), &mp) || mp.Code == "" {
		return nil, false
	}
	return &mp, true
}

// ModelCodes lists the cached model product codes of the catalog
func (r *Resolver) ModelCodes(ctx context.Context) []string {
	return r.cache.ListKeys(ctx, ModelProductsKey(r.opts.CatalogID))
}

// MasterOf walks the parent chain of entity up to the root model product.
func (r *Resolver) MasterOf(ctx context.Context, entity pimsync.Entity) (*pimsync.ModelProduct, error) {
	if entity.Parent == "" {
		return nil, pimsync.NewDataInconsistencyError(pimsync.ErrCodeMissingModel, "entity has no parent").
			WithEntity(entity.Key())
	}
	// Only model codes are tracked: product identifiers live in their own namespace.
	visited := make(map[string]struct{})
	code := entity.Parent
	for {
		if _, seen := visited[code]; seen {
			return nil, pimsync.NewDataInconsistencyError(pimsync.ErrCodeParentCycle, "model product parent chain loops").
				WithEntity(entity.Key()).
				WithDetail("model", code)
		}
		visited[code] = struct{}{}

		model, err := r.Model(ctx, code)
		if err != nil {
			return nil, err
		}
		if model.Parent == "" {
			return model, nil
		}
		code = model.Parent
	}
}

// SaveModelProduct caches the kept fields of a model entity when its
// categories pass the configured filter. Variation data already aggregated
// on a cached entry survives the rewrite.
func (r *Resolver) SaveModelProduct(ctx context.Context, entity pimsync.Entity) (*pimsync.ModelProduct, bool) {
	if !r.CategoryMatches(entity.Categories) {
		zap.S().Debugw("model product outside configured categories", "code", entity.Code)
		return nil, false
	}
	mp := pimsync.NewModelProduct(entity)
	if existing, ok := r.CachedModel(ctx, mp.Code); ok {
		mp.VariantAttributeSets = existing.VariantAttributeSets
		mp.VariationProducts = existing.VariationProducts
		mp.ModelList = existing.ModelList
	}
	r.cache.Set(ctx, ModelProductKey(r.opts.CatalogID, mp.Code), mp)
	return &mp, true
}

// CategoryMatches reports whether an entity in categories passes the
// configured filter. Uncategorised entities always pass.
func (r *Resolver) CategoryMatches(categories []string) bool {
	if len(categories) == 0 || len(r.opts.Categories) == 0 {
		return true
	}
	for _, c := range categories {
		if slices.Contains(r.opts.Categories, c) {
			return true
		}
	}
	return false
}

// AssignVariantToMaster stores the axis and media values of a variant product
// on its root model product. A previous entry for the same identifier is
// replaced, so repeated runs do not duplicate it.
func (r *Resolver) AssignVariantToMaster(ctx context.Context, variant pimsync.Entity) error {
	if variant.Identifier == "" || variant.Parent == "" {
		return nil
	}
	master, err := r.MasterOf(ctx, variant)
	if err != nil {
		return err
	}
	fv, err := r.ComputeVariantAxes(ctx, master.MasterFamilyVariant, variant.Family)
	if err != nil {
		return err
	}

	master.VariationProducts = slices.DeleteFunc(master.VariationProducts, func(s pimsync.VariationSummary) bool {
		return s.Identifier == variant.Identifier
	})

	if fv != nil {
		lists, err := r.attrs.CodeLists(ctx)
		if err != nil {
			return err
		}
		summary := pimsync.VariationSummary{
			Identifier:  variant.Identifier,
			Values:      pimsync.Values{},
			MediaValues: pimsync.Values{},
		}
		for _, set := range fv.VariantAttributeSets {
			for _, axis := range set.Axes {
				if v, ok := variant.Values[axis]; ok {
					summary.Values[axis] = v
				}
			}
		}
		for _, code := range slices.Concat(lists.Image, lists.Asset) {
			if v, ok := variant.Values[code]; ok {
				summary.MediaValues[code] = v
			}
		}
		master.VariationProducts = append(master.VariationProducts, summary)
		master.VariantAttributeSets = fv.VariantAttributeSets
	}

	r.cache.Set(ctx, ModelProductKey(r.opts.CatalogID, master.Code), master)
	return nil
}

// LinkSubModel records a second level model on its parent's model list.
func (r *Resolver) LinkSubModel(ctx context.Context, model pimsync.ModelProduct) bool {
	if model.Parent == "" {
		return false
	}
	parent, ok := r.CachedModel(ctx, model.Parent)
	if !ok {
		zap.S().Warnw("parent model product not cached, sub model not linked", "model", model.Code, "parent", model.Parent)
		return false
	}
	if !slices.Contains(parent.ModelList, model.Code) {
		parent.ModelList = append(parent.ModelList, model.Code)
		r.cache.Set(ctx, ModelProductKey(r.opts.CatalogID, parent.Code), parent)
	}
	return true
}

// AggregateFirstLevelAxisValues returns the model values of the first level
// axes only.
func AggregateFirstLevelAxisValues(modelValues pimsync.Values, sets []pimsync.VariantAttributeSet) pimsync.Values {
	out := pimsync.Values{}
	if len(sets) == 0 {
		return out
	}
	for _, axis := range sets[0].Axes {
		if v, ok := modelValues[axis]; ok {
			out[axis] = v
		}
	}
	return out
}
