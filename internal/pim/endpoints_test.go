package pim

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "/api/rest/v1/product-models/tshirt%20blue", ProductModelPath("tshirt blue"))
	assert.Equal(t, "/api/rest/v1/attributes/color/options", AttributeOptionsPath("color"))
	assert.Equal(t, "/api/rest/v1/families/shoes/variants/shoes_size", FamilyVariantPath("shoes", "shoes_size"))
	assert.Equal(t, "/api/rest/v1/reference-entities/brands/records", ReferenceEntityRecordsPath("brands"))
	assert.Equal(t, "?limit=100", LimitArgs(100))
	assert.True(t, IsProductModelsEndpoint(ProductModelsPath))
	assert.False(t, IsProductModelsEndpoint(ProductsPath))
}

func TestSearchArgs(t *testing.T) {
	tests := []struct {
		name       string
		lastImport string
		advanced   string
		wantSearch string
		wantExtra  map[string]string
	}{
		{"full import", "", "", `{}`, nil},
		{"differential", "2024-01-02T03:04:05Z", "", `{"updated":[{"operator":">","value":"2024-01-02T03:04:05Z"}]}`, nil},
		{
			"advanced merged with updated",
			"2024-01-02 03:04:05",
			`{"search":{"enabled":[{"operator":"=","value":true}]},"scope":"ecommerce","with_count":false}`,
			`{"enabled":[{"operator":"=","value":true}],"updated":[{"operator":">","value":"2024-01-02 03:04:05"}]}`,
			map[string]string{"scope": "ecommerce", "with_count": "false"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := SearchArgs(tt.lastImport, tt.advanced, 50)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(args, "?pagination_type=search_after&search="))

			q, err := url.ParseQuery(strings.TrimPrefix(args, "?"))
			require.NoError(t, err)
			assert.Equal(t, "search_after", q.Get("pagination_type"))
			assert.Equal(t, "50", q.Get("limit"))
			assert.JSONEq(t, tt.wantSearch, q.Get("search"))
			for k, v := range tt.wantExtra {
				assert.Equal(t, v, q.Get(k))
			}
			assert.True(t, strings.HasSuffix(args, "&limit=50"))
		})
	}
}

func TestSearchArgsInvalidAdvanced(t *testing.T) {
	_, err := SearchArgs("", "{not json", 10)
	assert.Error(t, err)
}

func TestUpdatedSinceArgs(t *testing.T) {
	args, err := UpdatedSinceArgs("", 100)
	require.NoError(t, err)
	assert.Equal(t, "?limit=100&search=%7B%7D", args)

	args, err = UpdatedSinceArgs("2024-03-01T10:00:00Z", 50)
	require.NoError(t, err)
	values, err := url.ParseQuery(strings.TrimPrefix(args, "?"))
	require.NoError(t, err)
	assert.Equal(t, "50", values.Get("limit"))
	assert.JSONEq(t, `{"updated":[{"operator":">","value":"2024-03-01T10:00:00Z"}]}`, values.Get("search"))

	assert.Equal(t, "/api/rest/v1/asset-families/packshots/assets", AssetFamilyAssetsPath("packshots"))
}
