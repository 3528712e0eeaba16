package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// Emission keys of the category tree and of category assignments
const (
	CategoryKey           = "category"
	CategoryParentKey     = "category-parent"
	CategoryOnlineKey     = "category-online"
	CategoryAssignmentKey = "category-assignment"
	RecommendationKey     = "recommendation"
	ProductLinkKey        = "product-link"
)

// CategoryTreeKey caches the codes of the categories below the configured
// top level category. An empty tree accepts every category.
const CategoryTreeKey = "/categories/tree"

// rootCategory is the target id of top level categories
const rootCategory = "root"

// primaryLabel marks the primary category assignment of an entity
const primaryLabel = "primary"

type category struct {
	Code   string         `json:"code"`
	Parent *string        `json:"parent"`
	Labels pimsync.Labels `json:"labels"`
}

// Categories pages the category tree and emits every category. With a top
// level category configured only its descendants are written, and their
// codes are cached to filter category assignments.
func (r *Runner) Categories(ctx context.Context, sink pimsync.Sink) (*pimsync.JobReport, error) {
	t := r.track(StepCategories)
	if !r.cfg.Import.WriteCategories {
		return r.done(t), nil
	}
	top := r.cfg.Import.TopLevelCategory
	r.cache.Set(ctx, CategoryTreeKey, []string{})

	var tree []string
	for page, err := range r.client.FetchAll(ctx, pim.CategoriesPath+pim.LimitArgs(r.cfg.PIM.PageSize), r.pageLimit()) {
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		for _, raw := range page.Items {
			var c category
			if err := json.Unmarshal(raw, &c); err != nil || c.Code == "" {
				if err == nil {
					err = pimsync.NewSyncError(pimsync.ErrorTypeEntityProcessing, pimsync.ErrCodeEntityFailed, "category without code")
				}
				if err := t.fail("", err); err != nil {
					return nil, err
				}
				continue
			}
			parent := ""
			if c.Parent != nil {
				parent = *c.Parent
			}
			if top != "" {
				if parent != top && !slices.Contains(tree, parent) {
					continue
				}
				tree = append(tree, c.Code)
			}
			if c.Code != top {
				r.emitCategory(c, parent, sink)
			}
			t.ok()
		}
	}

	if top != "" {
		r.cache.Set(ctx, CategoryTreeKey, tree)
		zap.S().Debugw("category tree cached", "topLevel", top, "count", len(tree))
	}
	return r.done(t), nil
}

func (r *Runner) emitCategory(c category, parent string, sink pimsync.Sink) {
	startEntity(sink, c.Code)

	display := pimsync.Emission{Key: CategoryKey, Value: c.Code}
	if len(c.Labels) > 0 {
		display.Label = c.Labels[0].Label
	}
	sink.Emit(display)
	for _, l := range c.Labels {
		if l.Label != "" {
			sink.Emit(pimsync.Emission{Key: CategoryKey, Value: c.Code, Locale: l.Locale, Label: l.Label})
		}
	}
	sink.Emit(pimsync.Emission{Key: CategoryOnlineKey, Value: strconv.FormatBool(r.cfg.Import.CategoryOnline)})

	if parent == "" || parent == r.cfg.Import.TopLevelCategory || slices.Contains(r.cfg.Import.MainCatalogs, parent) {
		parent = rootCategory
	}
	sink.Emit(pimsync.Emission{Key: CategoryParentKey, Value: parent})
}

// categoryTree returns the cached category codes below the top level category.
func (r *Runner) categoryTree(ctx context.Context) []string {
	var tree []string
	if !r.cache.Get(ctx, CategoryTreeKey, &tree) {
		return nil
	}
	return tree
}

// inCategoryTree reports whether an entity belongs to the imported category
// tree. Uncategorised entities and an empty tree always match.
func inCategoryTree(categories, tree []string) bool {
	if len(categories) == 0 || len(tree) == 0 {
		return true
	}
	for _, c := range categories {
		if slices.Contains(tree, c) {
			return true
		}
	}
	return false
}

// emitRelations writes the category assignments and associations of entity.
// Categories already assigned to the parent model are left to the parent.
func (r *Runner) emitRelations(ctx context.Context, entity pimsync.Entity, tree []string, sink pimsync.Sink) {
	if !inCategoryTree(entity.Categories, tree) {
		return
	}

	if r.cfg.Import.WriteCategories {
		categories := entity.Categories
		if entity.Parent != "" {
			if parent, ok := r.variation.CachedModel(ctx, entity.Parent); ok {
				categories = slices.DeleteFunc(slices.Clone(categories), func(c string) bool {
					return slices.Contains(parent.Categories, c)
				})
			}
		}
		primary := r.cfg.Import.PrimaryFlag
		for _, c := range categories {
			if len(tree) > 0 && !slices.Contains(tree, c) {
				continue
			}
			em := pimsync.Emission{Key: CategoryAssignmentKey, Value: c}
			if c == r.cfg.Import.TopLevelCategory {
				em.Value = rootCategory
			}
			if primary {
				em.Label = primaryLabel
				primary = false
			}
			sink.Emit(em)
		}
	}

	key := RecommendationKey
	switch r.cfg.Import.AssociationType {
	case pimsync.AssociationNone:
		return
	case pimsync.AssociationLinks:
		key = ProductLinkKey
	}
	for _, kind := range slices.Sorted(maps.Keys(entity.Associations)) {
		target, ok := r.cfg.Import.AssociationMappings[kind]
		if !ok {
			continue
		}
		assoc := entity.Associations[kind]
		for _, id := range slices.Concat(assoc.Products, assoc.ProductModels) {
			if id != "" {
				sink.Emit(pimsync.Emission{Key: key, Value: id, Label: target})
			}
		}
	}
}
