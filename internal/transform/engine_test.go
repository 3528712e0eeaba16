package transform

import (
	"context"
	"testing"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeFilter(t *testing.T) {
	attrs := newFakeAttributes(def("description", pimsync.AttributeTypeTextarea))
	values := decodeValues(t, `[
		{"data":"web text","locale":"en_US","scope":"ecommerce"},
		{"data":"print text","locale":"en_US","scope":"print"},
		{"data":"any text","locale":"fr_FR","scope":null}
	]`)

	tests := []struct {
		name  string
		scope string
		want  []string
	}{
		{"matching scope", "ecommerce", []string{"web text", "any text"}},
		{"other scope", "print", []string{"print text", "any text"}},
		{"no configured scope", "", []string{"web text", "print text", "any text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Recorder{}
			err := New(attrs, Options{Scope: tt.scope}).Transform(context.Background(), "description", values, rec, "")
			require.NoError(t, err)

			var got []string
			for _, e := range rec.Emissions() {
				got = append(got, e.Value)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeneralStrategy(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []pimsync.Emission
	}{
		{
			name: "single string",
			raw:  `[{"data":"Cotton","locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_material", Value: "Cotton"}},
		},
		{
			name: "false is written",
			raw:  `[{"data":false,"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_material", Value: "false"}},
		},
		{
			name: "number",
			raw:  `[{"data":12.5,"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_material", Value: "12.5"}},
		},
		{
			name: "array children",
			raw:  `[{"data":["a","b"],"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_material", Values: []string{"a", "b"}}},
		},
		{
			name: "metric object",
			raw:  `[{"data":{"amount":"3","unit":"KILOGRAM"},"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_material", Value: "3 KILOGRAM"}},
		},
		{
			name: "null is an empty node",
			raw:  `[{"data":null,"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_material", Empty: true}},
		},
		{
			name: "localized objects write no node",
			raw: `[{"data":{"a":"x"},"locale":"fr_FR","scope":null},
				{"data":{"amount":"3","unit":"KILOGRAM"},"locale":"de_DE","scope":null},
				{"data":[],"locale":"it_IT","scope":null},
				{"data":["a","b"],"locale":"en_US","scope":null},
				{"data":false,"locale":"es_ES","scope":null}]`,
			want: []pimsync.Emission{
				{Key: "akeneo_material", Values: []string{"a", "b"}, Locale: "en_US"},
				{Key: "akeneo_material", Value: "false", Locale: "es_ES"},
			},
		},
		{
			name: "single object writes child values",
			raw:  `[{"data":{"b":"y","a":"x"},"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_material", Values: []string{"x", "y"}}},
		},
		{
			name: "localized entries",
			raw:  `[{"data":"Coton","locale":"fr_FR","scope":null},{"data":"","locale":"en_US","scope":null}]`,
			want: []pimsync.Emission{
				{Key: "akeneo_material", Value: "Coton", Locale: "fr_FR"},
				{Key: "akeneo_material", Locale: "en_US", Empty: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := newFakeAttributes(def("material", pimsync.AttributeTypeText))
			rec := &Recorder{}
			err := New(attrs, Options{}).Transform(context.Background(), "material", decodeValues(t, tt.raw), rec, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Emissions())
		})
	}
}

func TestNewDataTypeStrategy(t *testing.T) {
	attrs := newFakeAttributes(def("table", pimsync.AttributeType("pim_catalog_table")))

	tests := []struct {
		name string
		raw  string
		want pimsync.Emission
	}{
		{"array as json", `[{"data":[{"w":1}],"locale":null,"scope":null}]`, pimsync.Emission{Key: "akeneo_table", Value: `[{"w":1}]`}},
		{"object as json", `[{"data":{"b":2,"a":1},"locale":null,"scope":null}]`, pimsync.Emission{Key: "akeneo_table", Value: `{"a":1,"b":2}`}},
		{"false is empty", `[{"data":false,"locale":null,"scope":null}]`, pimsync.Emission{Key: "akeneo_table", Empty: true}},
		{"scalar", `[{"data":"x","locale":null,"scope":null}]`, pimsync.Emission{Key: "akeneo_table", Value: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Recorder{}
			require.NoError(t, New(attrs, Options{}).Transform(context.Background(), "table", decodeValues(t, tt.raw), rec, ""))
			assert.Equal(t, []pimsync.Emission{tt.want}, rec.Emissions())
		})
	}
}

func TestPriceStrategy(t *testing.T) {
	attrs := newFakeAttributes(def("price", pimsync.AttributeTypePriceCollection))
	attrs.mapper = attributes.NewMapper(nil, map[string]string{"akeneo_price": "price"})

	tests := []struct {
		name string
		raw  string
		want []pimsync.Emission
	}{
		{
			name: "map keyed by currency",
			raw:  `[{"data":{"EUR":{"amount":"10.50","currency":"EUR"}},"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "price", Values: []string{"10.50 EUR"}}},
		},
		{
			name: "array of prices",
			raw:  `[{"data":[{"amount":12,"currency":"USD"},{"amount":"9.99","currency":"EUR"}],"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "price", Values: []string{"12 USD", "9.99 EUR"}}},
		},
		{
			name: "no usable amount",
			raw:  `[{"data":[{"amount":null,"currency":"USD"}],"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "price", Empty: true}},
		},
		{
			name: "amounts reset per entry",
			raw: `[{"data":[{"amount":"1","currency":"EUR"}],"locale":null,"scope":"ecommerce"},
				{"data":null,"locale":null,"scope":"ecommerce"}]`,
			want: []pimsync.Emission{
				{Key: "price", Values: []string{"1 EUR"}},
				{Key: "price", Empty: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Recorder{}
			require.NoError(t, New(attrs, Options{}).Transform(context.Background(), "price", decodeValues(t, tt.raw), rec, ""))
			assert.Equal(t, tt.want, rec.Emissions())
		})
	}
}

func TestMetricStrategy(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []pimsync.Emission
	}{
		{
			name: "single entry without amount keeps its node",
			raw:  `[{"data":{"amount":null,"unit":"KILOGRAM"},"locale":null,"scope":null}]`,
			want: []pimsync.Emission{{Key: "akeneo_weight", Empty: true}},
		},
		{
			name: "scoped entries",
			raw: `[
				{"data":{"amount":"1.2000","unit":"KILOGRAM"},"locale":null,"scope":"ecommerce"},
				{"data":{"amount":null,"unit":"KILOGRAM"},"locale":null,"scope":"mobile"},
				{"data":null,"locale":null,"scope":"print"}
			]`,
			want: []pimsync.Emission{
				{Key: "akeneo_weight", Value: "1.2000 KILOGRAM"},
				{Key: "akeneo_weight", Empty: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := newFakeAttributes(def("weight", pimsync.AttributeTypeMetric))
			rec := &Recorder{}
			require.NoError(t, New(attrs, Options{}).Transform(context.Background(), "weight", decodeValues(t, tt.raw), rec, ""))
			assert.Equal(t, tt.want, rec.Emissions())
		})
	}
}

func TestEntityStrategy(t *testing.T) {
	brand := pimsync.AttributeDefinition{Code: "brand", Type: pimsync.AttributeTypeReferenceEntity, ReferenceDataName: "brands"}
	designers := pimsync.AttributeDefinition{Code: "designers", Type: pimsync.AttributeTypeReferenceEntityList, ReferenceDataName: "designers"}
	attrs := newFakeAttributes(brand, designers)
	engine := New(attrs, Options{})

	rec := &Recorder{}
	require.NoError(t, engine.Transform(context.Background(), "brand", decodeValues(t, `[{"data":"acme","locale":null,"scope":null}]`), rec, ""))
	require.NoError(t, engine.Transform(context.Background(), "designers", decodeValues(t, `[{"data":["ann","bob"],"locale":null,"scope":null}]`), rec, ""))
	assert.Equal(t, []pimsync.Emission{
		{Key: "akeneo_brand", Value: "akeneo_entity_brands_acme"},
		{Key: "akeneo_designers", Values: []string{"akeneo_entity_designers_ann", "akeneo_entity_designers_bob"}},
	}, rec.Emissions())
}

func TestSelectLabelsInPayloadOrder(t *testing.T) {
	attrs := newFakeAttributes(def("color", pimsync.AttributeTypeSimpleSelect))
	attrs.addOption("color", pimsync.AttributeOption{
		Code:   "red",
		Labels: pimsync.Labels{{Locale: "en_US", Label: "Red"}, {Locale: "fr_FR", Label: "Rouge"}},
	})
	rec := &Recorder{}

	err := New(attrs, Options{}).Transform(context.Background(), "color", decodeValues(t, `[{"data":"red","locale":null,"scope":null}]`), rec, "")
	require.NoError(t, err)
	assert.Equal(t, []pimsync.Emission{
		{Key: "akeneo_color", Value: "red"},
		{Key: "akeneo_color", Value: "red", Locale: "en_US", Label: "Red"},
		{Key: "akeneo_color", Value: "red", Locale: "fr_FR", Label: "Rouge"},
	}, rec.Emissions())
}

func TestMultiSelectDeduplicatesLocaleNodes(t *testing.T) {
	attrs := newFakeAttributes(def("tags", pimsync.AttributeTypeMultiSelect))
	attrs.addOption("tags", pimsync.AttributeOption{Code: "new", Labels: pimsync.Labels{{Locale: "en_US", Label: "New"}}})
	attrs.addOption("tags", pimsync.AttributeOption{Code: "sale", Labels: pimsync.Labels{{Locale: "en_US", Label: "Sale"}}})
	rec := &Recorder{}

	values := decodeValues(t, `[{"data":["new","sale","new"],"locale":null,"scope":null}]`)
	require.NoError(t, New(attrs, Options{}).Transform(context.Background(), "tags", values, rec, ""))
	assert.Equal(t, []pimsync.Emission{
		{Key: "akeneo_tags", Values: []string{"new", "sale", "new"}},
		{Key: "akeneo_tags", Value: "new", Locale: "en_US", Label: "New"},
		{Key: "akeneo_tags", Value: "sale", Locale: "en_US", Label: "Sale"},
	}, rec.Emissions())
}

func TestLocalizedSelectSkipsOptionLookup(t *testing.T) {
	attrs := newFakeAttributes(def("color", pimsync.AttributeTypeSimpleSelect))
	rec := &Recorder{}
	values := decodeValues(t, `[{"data":"red","locale":"en_US","scope":null}]`)
	require.NoError(t, New(attrs, Options{}).Transform(context.Background(), "color", values, rec, ""))
	assert.Equal(t, []pimsync.Emission{{Key: "akeneo_color", Value: "red", Locale: "en_US"}}, rec.Emissions())
	assert.Zero(t, attrs.lookups)
}

func TestRefinementColor(t *testing.T) {
	attrs := newFakeAttributes(def("color", pimsync.AttributeTypeText))
	attrs.mapper = attributes.NewMapper(nil, map[string]string{"akeneo_color": "color"})
	values := decodeValues(t, `[{"data":"blue","locale":null,"scope":null}]`)

	tests := []struct {
		name   string
		parent string
		want   []pimsync.Emission
	}{
		{"variant", "model-1", []pimsync.Emission{{Key: "refinementColor", Value: "blue"}, {Key: "color", Value: "blue"}}},
		{"master", "", []pimsync.Emission{{Key: "color", Value: "blue"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Recorder{}
			require.NoError(t, New(attrs, Options{}).Transform(context.Background(), "color", values, rec, tt.parent))
			assert.Equal(t, tt.want, rec.Emissions())
		})
	}
}

func TestTransformEntity(t *testing.T) {
	attrs := newFakeAttributes(
		def("size", pimsync.AttributeTypeSimpleSelect),
		def("name", pimsync.AttributeTypeText),
		def("care", pimsync.AttributeTypeText),
		pimsync.AttributeDefinition{Code: "price", Type: pimsync.AttributeTypePriceCollection},
	)
	attrs.mapper = attributes.NewMapper(
		map[string]string{"akeneo_name": "name"},
		map[string]string{"akeneo_price": "price"},
	)
	attrs.excluded["care"] = true
	attrs.addOption("size", pimsync.AttributeOption{Code: "m", Labels: pimsync.Labels{{Locale: "en_US", Label: "Medium"}}})

	entity := pimsync.Entity{
		Identifier: "sku-1",
		Parent:     "model-1",
		Values: pimsync.Values{
			"size":  decodeValues(t, `[{"data":"m","locale":null,"scope":null}]`),
			"name":  decodeValues(t, `[{"data":"Shirt","locale":null,"scope":null}]`),
			"care":  decodeValues(t, `[{"data":"Wash cold","locale":null,"scope":null}]`),
			"price": decodeValues(t, `[{"data":{"EUR":{"amount":"5","currency":"EUR"}},"scope":null}]`),
			"1234":  decodeValues(t, `[{"data":"numeric","locale":null,"scope":null}]`),
		},
	}
	axes := map[string]struct{}{"size": {}}
	rec := &Recorder{}

	err := New(attrs, Options{}).TransformEntity(context.Background(), entity, rec, axes, []string{"size", "fit", "name"})
	require.NoError(t, err)
	assert.Equal(t, []pimsync.Emission{
		{Key: "price", Values: []string{"5 EUR"}},
		{Key: "akeneo_size_custom", Value: "m"},
		{Key: "akeneo_size_custom", Value: "m", Locale: "en_US", Label: "Medium"},
		{Key: "akeneo_size", Value: "m"},
		{Key: "akeneo_fit", Empty: true},
	}, rec.Emissions())
}

func TestTransformEntityPropagatesResolveFailure(t *testing.T) {
	attrs := newFakeAttributes()
	entity := pimsync.Entity{Identifier: "sku-1", Values: pimsync.Values{
		"unknown": {{Data: "x"}},
	}}
	err := New(attrs, Options{}).TransformEntity(context.Background(), entity, &Recorder{}, nil, nil)
	require.Error(t, err)
	assert.True(t, pimsync.IsTransientRemoteError(err))
	assert.Contains(t, err.Error(), "attribute unknown")
}

func TestScopeNilAndEmptyPass(t *testing.T) {
	e := New(newFakeAttributes(), Options{Scope: "ecommerce"})
	assert.True(t, e.scopeMatches(pimsync.AttributeValue{}))
	assert.True(t, e.scopeMatches(pimsync.AttributeValue{Scope: ptr("")}))
	assert.False(t, e.scopeMatches(pimsync.AttributeValue{Scope: ptr("print")}))
}
