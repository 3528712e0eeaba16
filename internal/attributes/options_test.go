package attributes

import (
	"context"
	"fmt"
	"testing"

	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionJSON(code, en string) string {
	return fmt.Sprintf(`{"code":%q,"attribute":"color","sort_order":1,"labels":{"en_US":%q}}`, code, en)
}

func TestOptionFetchesAndCaches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)
	api := newFakeFetcher()
	api.listings[pim.AttributeOptionsPath("color")] = [][]string{
		{optionJSON("red", "Red"), optionJSON("blue", "Blue")},
		{optionJSON("green", "Green")},
	}
	r := newTestResolver(t, store, api, nil, Options{})

	opt, ok, err := r.Option(ctx, "color", "green")
	require.NoError(t, err)
	require.True(t, ok)
	label, _ := opt.Labels.Get("en_US")
	assert.Equal(t, "Green", label)

	_, ok, err = r.Option(ctx, "color", "purple")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), api.lists.Load())
	assert.Len(t, r.Options(ctx, "color"), 3)
}

func TestOptionScansRotatedShards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 120)
	api := newFakeFetcher()
	api.listings[pim.AttributeOptionsPath("size")] = [][]string{
		{optionJSON("s", "Small")},
		{optionJSON("m", "Medium")},
		{optionJSON("l", "Large")},
	}
	r := newTestResolver(t, store, api, nil, Options{})

	opt, ok, err := r.Option(ctx, "size", "s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s", opt.Code)
	assert.Greater(t, store.ShardCount(ctx, OptionsKey("size")), 1)

	for _, code := range []string{"m", "l"} {
		_, ok, err := r.Option(ctx, "size", code)
		require.NoError(t, err)
		assert.True(t, ok, code)
	}
	assert.Len(t, r.Options(ctx, "size"), 3)
	assert.Equal(t, int32(1), api.lists.Load())
}

func TestOptionEmptyVocabularyFetchedOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)
	api := newFakeFetcher()
	r := newTestResolver(t, store, api, nil, Options{})

	for i := 0; i < 3; i++ {
		_, ok, err := r.Option(ctx, "empty", "x")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, int32(1), api.lists.Load())
	assert.Equal(t, 1, store.ShardCount(ctx, OptionsKey("empty")))
}
