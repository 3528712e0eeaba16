package attributes

import (
	"context"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// Code list cache keys
const (
	ImageCodesKey  = CacheFolder + "/imageCodesList"
	AssetCodesKey  = CacheFolder + "/assetCodesList"
	SelectCodesKey = CacheFolder + "/selectCodesList"
)

// CodeLists groups attribute codes by the handling they need during import
type CodeLists struct {
	Image  []string
	Asset  []string
	Select []string
}

// CodeLists returns the cached code lists, rebuilding them from the attribute
// listing when any of them is missing.
func (r *Resolver) CodeLists(ctx context.Context) (CodeLists, error) {
	var lists CodeLists
	if r.cache.Get(ctx, ImageCodesKey, &lists.Image) &&
		r.cache.Get(ctx, AssetCodesKey, &lists.Asset) &&
		r.cache.Get(ctx, SelectCodesKey, &lists.Select) {
		return lists, nil
	}

	lists, err := r.buildCodeLists(ctx)
	if err != nil {
		return CodeLists{}, err
	}
	r.SaveCodeLists(ctx, lists)
	return lists, nil
}

// SaveCodeLists writes the three code lists to the cache
func (r *Resolver) SaveCodeLists(ctx context.Context, lists CodeLists) {
	r.cache.Set(ctx, ImageCodesKey, nonNil(lists.Image))
	r.cache.Set(ctx, AssetCodesKey, nonNil(lists.Asset))
	r.cache.Set(ctx, SelectCodesKey, nonNil(lists.Select))
}

func (r *Resolver) buildCodeLists(ctx context.Context) (CodeLists, error) {
	lists := CodeLists{Image: []string{}, Asset: []string{}, Select: []string{}}
	seen := 0
	for page, err := range r.api.FetchAll(ctx, pim.AttributesPath+"?limit=100", r.pageLimit) {
		if err != nil {
			return CodeLists{}, err
		}
		for _, raw := range page.Items {
			seen++
			def, err := r.decode("", raw)
			if err != nil {
				zap.S().Warnw("skipping attribute definition", "error", err)
				continue
			}
			r.cache.SetText(ctx, DefinitionKey(def.Code), string(raw))
			r.remember(def)

			if !r.Included(def.Code) {
				continue
			}
			switch {
			case def.Type == pimsync.AttributeTypeImage:
				lists.Image = append(lists.Image, def.Code)
			case def.Type.IsAsset():
				lists.Asset = append(lists.Asset, def.Code)
			case def.Type.IsSelect():
				lists.Select = append(lists.Select, def.Code)
			}
		}
	}
	zap.S().Infow("attribute code lists rebuilt",
		"attributes", seen,
		"images", len(lists.Image),
		"assets", len(lists.Asset),
		"selects", len(lists.Select))
	return lists, nil
}

// Included reports whether code takes part in custom attribute handling.
func (r *Resolver) Included(code string) bool {
	if r.mapper != nil && r.mapper.IsSystemMapped(code) {
		return false
	}
	if len(r.advanced) == 0 {
		return true
	}
	_, ok := r.advanced[code]
	return ok
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
