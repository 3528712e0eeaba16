package pipeline

import (
	"testing"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoriesBelowTopLevel(t *testing.T) {
	f := newFixture(t, func(cfg *pimsync.Config) {
		cfg.Import.TopLevelCategory = "master"
		cfg.Import.CategoryOnline = true
	})
	f.api.list(pim.CategoriesPath,
		`{"code":"master","parent":null,"labels":{"en_US":"Catalog"}}`,
		`{"code":"shirts","parent":"master","labels":{"en_US":"Shirts","fr_FR":"Chemises"}}`,
		`{"code":"tees","parent":"shirts","labels":{}}`,
		`{"code":"outlet","parent":null,"labels":{"en_US":"Outlet"}}`,
		`{"code":"outlet_mugs","parent":"outlet","labels":{}}`,
		`{"parent":"master"}`,
	)
	rec := &transform.Recorder{}

	report, err := f.runner.Categories(t.Context(), rec)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, pimsync.JobStatusWarn, report.Status)

	assert.Equal(t, []pimsync.Emission{
		{Key: CategoryKey, Value: "shirts", Label: "Shirts"},
		{Key: CategoryKey, Value: "shirts", Locale: "en_US", Label: "Shirts"},
		{Key: CategoryKey, Value: "shirts", Locale: "fr_FR", Label: "Chemises"},
		{Key: CategoryKey, Value: "tees"},
	}, rec.ByKey(CategoryKey))
	assert.Equal(t, []pimsync.Emission{
		{Key: CategoryParentKey, Value: "root"},
		{Key: CategoryParentKey, Value: "shirts"},
	}, rec.ByKey(CategoryParentKey))
	assert.Equal(t, []pimsync.Emission{
		{Key: CategoryOnlineKey, Value: "true"},
		{Key: CategoryOnlineKey, Value: "true"},
	}, rec.ByKey(CategoryOnlineKey))

	var tree []string
	require.True(t, f.store.Get(t.Context(), CategoryTreeKey, &tree))
	assert.Equal(t, []string{"shirts", "tees"}, tree)
}

func TestCategoriesWithoutTopLevel(t *testing.T) {
	f := newFixture(t, func(cfg *pimsync.Config) {
		cfg.Import.MainCatalogs = []string{"print"}
	})
	f.store.Set(t.Context(), CategoryTreeKey, []string{"stale"})
	f.api.list(pim.CategoriesPath,
		`{"code":"print","parent":null,"labels":{}}`,
		`{"code":"flyers","parent":"print","labels":{}}`,
		`{"code":"posters","parent":"flyers","labels":{}}`,
	)
	rec := &transform.Recorder{}

	report, err := f.runner.Categories(t.Context(), rec)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, []pimsync.Emission{
		{Key: CategoryParentKey, Value: "root"},
		{Key: CategoryParentKey, Value: "root"},
		{Key: CategoryParentKey, Value: "flyers"},
	}, rec.ByKey(CategoryParentKey))
	assert.Equal(t, pimsync.Emission{Key: CategoryOnlineKey, Value: "false"}, rec.ByKey(CategoryOnlineKey)[0])
	assert.Empty(t, f.runner.categoryTree(t.Context()), "the tree is reset on every run")
}

func TestCategoriesDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *pimsync.Config) {
		cfg.Import.WriteCategories = false
	})
	f.api.list(pim.CategoriesPath, `{"code":"shirts","parent":null,"labels":{}}`)
	rec := &transform.Recorder{}

	report, err := f.runner.Categories(t.Context(), rec)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Empty(t, rec.Emissions())
	assert.Zero(t, f.api.hitCount(pim.CategoriesPath))
}

func TestProductRelations(t *testing.T) {
	f := newFixture(t, func(cfg *pimsync.Config) {
		cfg.Import.AssociationMappings = map[string]string{"UPSELL": "up-sell"}
	})
	seedCatalog(f.api)
	f.api.list(pim.ProductModelsPath, `{"code":"shirt","family":"shirts","family_variant":"shirt_color",
		"categories":["shirts"],"values":{}}`)
	f.api.list(pim.ProductsPath, `{"identifier":"sku-1","family":"shirts","parent":"shirt",
		"categories":["shirts","sale"],
		"associations":{
			"UPSELL":{"products":["sku-2"],"product_models":["mug"],"groups":[]},
			"X_SELL":{"products":["sku-3"],"product_models":[],"groups":[]}
		},
		"values":{"color":[{"data":"red","locale":null,"scope":null}]}}`)
	rec := &transform.Recorder{}

	runSteps(t, f.runner, rec, StepBegin, StepModelProducts, StepProducts)
	assert.Equal(t, []pimsync.Emission{
		{Key: CategoryAssignmentKey, Value: "sale", Label: "primary"},
	}, rec.ByKey(CategoryAssignmentKey), "categories of the parent model are left to it")
	assert.Equal(t, []pimsync.Emission{
		{Key: RecommendationKey, Value: "sku-2", Label: "up-sell"},
		{Key: RecommendationKey, Value: "mug", Label: "up-sell"},
	}, rec.ByKey(RecommendationKey))

	rec.Reset()
	runSteps(t, f.runner, rec, StepModelCatalog)
	assert.Equal(t, []pimsync.Emission{
		{Key: CategoryAssignmentKey, Value: "shirts", Label: "primary"},
	}, rec.ByKey(CategoryAssignmentKey))
}

func TestEmitRelations(t *testing.T) {
	entity := pimsync.Entity{
		Identifier: "sku-1",
		Categories: []string{"master", "tees"},
		Associations: map[string]pimsync.Association{
			"PACK":   {Products: []string{"sku-9"}},
			"UPSELL": {Products: []string{"sku-2"}},
		},
	}

	tests := []struct {
		name   string
		mutate func(*pimsync.Config)
		tree   []string
		want   []pimsync.Emission
	}{
		{
			name:   "top level category becomes root",
			mutate: func(cfg *pimsync.Config) { cfg.Import.AssociationType = pimsync.AssociationNone },
			want: []pimsync.Emission{
				{Key: CategoryAssignmentKey, Value: "root", Label: "primary"},
				{Key: CategoryAssignmentKey, Value: "tees"},
			},
		},
		{
			name: "tree filters assignments",
			mutate: func(cfg *pimsync.Config) {
				cfg.Import.PrimaryFlag = false
				cfg.Import.AssociationType = pimsync.AssociationNone
			},
			tree: []string{"tees", "polos"},
			want: []pimsync.Emission{{Key: CategoryAssignmentKey, Value: "tees"}},
		},
		{
			name: "outside the tree writes nothing",
			mutate: func(cfg *pimsync.Config) {
				cfg.Import.AssociationMappings = map[string]string{"UPSELL": "up-sell"}
			},
			tree: []string{"polos"},
		},
		{
			name: "product links in association order",
			mutate: func(cfg *pimsync.Config) {
				cfg.Import.WriteCategories = false
				cfg.Import.AssociationType = pimsync.AssociationLinks
				cfg.Import.AssociationMappings = map[string]string{"UPSELL": "up-sell", "PACK": "accessory"}
			},
			want: []pimsync.Emission{
				{Key: ProductLinkKey, Value: "sku-9", Label: "accessory"},
				{Key: ProductLinkKey, Value: "sku-2", Label: "up-sell"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(cfg *pimsync.Config) {
				cfg.Import.TopLevelCategory = "master"
				tt.mutate(cfg)
			})
			rec := &transform.Recorder{}
			f.runner.emitRelations(t.Context(), entity, tt.tree, rec)
			if tt.want == nil {
				assert.Empty(t, rec.Emissions())
				return
			}
			assert.Equal(t, tt.want, rec.Emissions())
		})
	}
}

func TestInCategoryTree(t *testing.T) {
	assert.True(t, inCategoryTree(nil, []string{"shirts"}))
	assert.True(t, inCategoryTree([]string{"mugs"}, nil))
	assert.True(t, inCategoryTree([]string{"mugs", "shirts"}, []string{"shirts"}))
	assert.False(t, inCategoryTree([]string{"mugs"}, []string{"shirts"}))
}
