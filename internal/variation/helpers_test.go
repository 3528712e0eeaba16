package variation

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/lychee-technology/pimsync/internal/cache"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	resources map[string]string
	listings  map[string][][]string
	gets      atomic.Int32
	lists     atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{resources: map[string]string{}, listings: map[string][][]string{}}
}

func (f *fakeFetcher) Get(_ context.Context, target string, out any) error {
	f.gets.Add(1)
	body, ok := f.resources[target]
	if !ok {
		return pimsync.NewRetryExhaustedError("GET "+target, 5, nil)
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeFetcher) FetchAll(_ context.Context, target string, _ int) iter.Seq2[pimsync.Page, error] {
	f.lists.Add(1)
	path, _, _ := strings.Cut(target, "?")
	return func(yield func(pimsync.Page, error) bool) {
		for _, items := range f.listings[path] {
			page := pimsync.Page{}
			for _, item := range items {
				page.Items = append(page.Items, json.RawMessage(item))
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

type fixture struct {
	store    *cache.Store
	api      *fakeFetcher
	attrs    *attributes.Resolver
	resolver *Resolver
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	backend, err := cache.NewFilesystemBackend(t.TempDir())
	require.NoError(t, err)
	store := cache.New(backend, 0)
	api := newFakeFetcher()
	api.listings[pim.AttributesPath] = [][]string{{
		`{"code":"picture","type":"pim_catalog_image"}`,
		`{"code":"swatch","type":"pim_catalog_image"}`,
		`{"code":"gallery","type":"pim_catalog_asset_collection"}`,
		`{"code":"color","type":"pim_catalog_simpleselect"}`,
		`{"code":"size","type":"pim_catalog_simpleselect"}`,
	}}
	attrs, err := attributes.NewResolver(store, api, attributes.NewMapper(nil, map[string]string{"akeneo_color": "color"}), attributes.Options{})
	require.NoError(t, err)
	if opts.CatalogID == "" {
		opts.CatalogID = "master"
	}
	return &fixture{store: store, api: api, attrs: attrs, resolver: New(store, api, attrs, opts)}
}

func values(t *testing.T, raw string) []pimsync.AttributeValue {
	t.Helper()
	var v []pimsync.AttributeValue
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

const shirtVariant = `{"code":"shirt_color_size","variant_attribute_sets":[
	{"level":1,"axes":["color"],"attributes":["color","swatch"]},
	{"level":2,"axes":["size"],"attributes":["size","sku"]}
]}`
