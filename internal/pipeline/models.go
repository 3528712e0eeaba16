package pipeline

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/variation"
	"go.uber.org/zap"
)

// Emission keys of the model variation step
const (
	VariantKey            = "variant"
	VariationAttributeKey = "variation-attribute"
	VariationValueKey     = "variation-attribute-value"
	VariationGroupKey     = "variation-group"
)

// CacheModelProducts pages the product models listing and caches every model
// product of the configured categories.
func (r *Runner) CacheModelProducts(ctx context.Context) (*pimsync.JobReport, error) {
	t := r.track(StepModelProducts)
	if err := r.attach(ctx); err != nil {
		return nil, err
	}

	err := r.walk(ctx, pim.ProductModelsPath, r.cfg.Import.ProductModelSearch, func(raw json.RawMessage) error {
		model, err := decodeEntity(raw)
		if err != nil {
			return t.fail("", err)
		}
		if model.Code == "" {
			return t.fail("", pimsync.NewSyncError(pimsync.ErrorTypeEntityProcessing, pimsync.ErrCodeEntityFailed, "model product without code"))
		}
		r.variation.SaveModelProduct(ctx, model)
		t.ok()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.done(t), nil
}

func (r *Runner) groupVariation() bool {
	return r.cfg.Import.ModelImportType == pimsync.ModelImportMasterGroupVariation
}

// cachedModels returns the cached model products in code order.
func (r *Runner) cachedModels(ctx context.Context) []*pimsync.ModelProduct {
	codes := r.variation.ModelCodes(ctx)
	models := make([]*pimsync.ModelProduct, 0, len(codes))
	for _, code := range codes {
		model, ok := r.variation.CachedModel(ctx, code)
		if !ok {
			zap.S().Warnw("model product cache entry unreadable", "code", code)
			continue
		}
		models = append(models, model)
	}
	return models
}

// ModelCatalog emits the custom attributes, category assignments and
// associations of the cached model products:
// masters only for master-variation imports, every model for
// master-group-variation imports, which also link sub models to their parent.
func (r *Runner) ModelCatalog(ctx context.Context, sink pimsync.Sink) (*pimsync.JobReport, error) {
	t := r.track(StepModelCatalog)
	if err := r.attach(ctx); err != nil {
		return nil, err
	}
	pc, err := r.loadProductContext(ctx)
	if err != nil {
		return nil, err
	}

	group := r.groupVariation()
	for _, model := range r.cachedModels(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if group && model.Parent != "" {
			r.variation.LinkSubModel(ctx, *model)
		}
		if !group && model.Parent != "" {
			continue
		}

		entity := pimsync.Entity{
			Code:         model.Code,
			Parent:       model.Parent,
			Values:       model.Values,
			Categories:   model.Categories,
			Associations: model.Associations,
		}
		if entity.Values == nil {
			entity.Values = pimsync.Values{}
		}
		startEntity(sink, model.Code)
		if err := r.engine.TransformEntity(ctx, entity, sink, pc.axes, pc.lists.Select); err != nil {
			if err := t.fail(model.Code, err); err != nil {
				return nil, err
			}
			continue
		}
		r.emitRelations(ctx, entity, pc.tree, sink)
		t.ok()
	}
	return r.done(t), nil
}

// ModelVariations emits the variation data of every cached master: its
// variants, the distinct values of each axis and, for group imports, its
// variation groups with their first level axis values.
func (r *Runner) ModelVariations(ctx context.Context, sink pimsync.Sink) (*pimsync.JobReport, error) {
	t := r.track(StepModelVariation)
	if err := r.attach(ctx); err != nil {
		return nil, err
	}
	lists, err := r.attrs.CodeLists(ctx)
	if err != nil {
		return nil, err
	}

	for _, master := range r.cachedModels(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if master.Parent != "" {
			continue
		}
		if err := r.emitVariation(ctx, *master, lists.Select, sink); err != nil {
			if err := t.fail(master.Code, err); err != nil {
				return nil, err
			}
			continue
		}
		t.ok()
	}
	return r.done(t), nil
}

func (r *Runner) emitVariation(ctx context.Context, master pimsync.ModelProduct, selectCodes []string, sink pimsync.Sink) error {
	axes, err := r.variation.VariationAttributes(ctx, master, selectCodes)
	if err != nil {
		return err
	}
	startEntity(sink, master.Code)

	for _, attr := range axes {
		sink.Emit(pimsync.Emission{Key: VariationAttributeKey, Value: attr.ID, Label: attr.DisplayName})
		for _, v := range attr.Values {
			sink.Emit(pimsync.Emission{Key: VariationValueKey, Value: v.Value, Label: attr.ID})
			for _, l := range v.Labels {
				sink.Emit(pimsync.Emission{Key: VariationValueKey, Value: v.Value, Locale: l.Locale, Label: l.Label})
			}
		}
	}
	for _, variant := range master.VariationProducts {
		sink.Emit(pimsync.Emission{Key: VariantKey, Value: variant.Identifier})
	}

	if !r.groupVariation() {
		return nil
	}
	for _, code := range r.variation.VariationGroups(ctx, master, axes) {
		sub, ok := r.variation.CachedModel(ctx, code)
		if !ok {
			return pimsync.NewMissingModelError(code, nil)
		}
		first := variation.AggregateFirstLevelAxisValues(sub.Values, master.VariantAttributeSets)
		var values []string
		for _, axis := range slices.Sorted(maps.Keys(first)) {
			if v, ok := variation.DisplayValue(first[axis]); ok {
				values = append(values, axis+"="+v)
			}
		}
		sink.Emit(pimsync.Emission{Key: VariationGroupKey, Value: code, Values: values})
	}
	return nil
}
