package attributes

import (
	"context"
	"testing"

	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attributeListing() [][]string {
	return [][]string{
		{
			`{"code":"picture","type":"pim_catalog_image"}`,
			`{"code":"gallery","type":"pim_catalog_asset_collection"}`,
			`{"code":"legacy_assets","type":"pim_assets_collection"}`,
		},
		{
			`{"code":"color","type":"pim_catalog_simpleselect"}`,
			`{"code":"tags","type":"pim_catalog_multiselect"}`,
			`{"code":"brand","type":"pim_catalog_simpleselect"}`,
			`{"code":"name","type":"pim_catalog_text"}`,
			`{"type":"pim_catalog_text"}`,
		},
	}
}

func TestCodeListsBuiltFromListing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)
	api := newFakeFetcher()
	api.listings[pim.AttributesPath] = attributeListing()
	mapper := NewMapper(map[string]string{"akeneo_brand": "brand"}, nil)
	r := newTestResolver(t, store, api, mapper, Options{})

	lists, err := r.CodeLists(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"picture"}, lists.Image)
	assert.Equal(t, []string{"gallery", "legacy_assets"}, lists.Asset)
	assert.Equal(t, []string{"color", "tags"}, lists.Select)

	// Definitions seen while listing are served without further calls.
	def, err := r.Resolve(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, "tags", def.Code)
	assert.Equal(t, int32(0), api.gets.Load())

	again, err := r.CodeLists(ctx)
	require.NoError(t, err)
	assert.Equal(t, lists, again)
	assert.Equal(t, int32(1), api.lists.Load())
}

func TestCodeListsHonorAdvancedAttributes(t *testing.T) {
	api := newFakeFetcher()
	api.listings[pim.AttributesPath] = attributeListing()
	r := newTestResolver(t, newTestStore(t, 0), api, nil, Options{Advanced: []string{"color", "picture"}})

	lists, err := r.CodeLists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"picture"}, lists.Image)
	assert.Empty(t, lists.Asset)
	assert.Equal(t, []string{"color"}, lists.Select)
	assert.True(t, r.Included("color"))
	assert.False(t, r.Included("tags"))
}
