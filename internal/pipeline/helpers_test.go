package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/lychee-technology/pimsync/internal/cache"
	"github.com/lychee-technology/pimsync/internal/diffsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/transform"
	"github.com/lychee-technology/pimsync/internal/variation"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

// fakePIM serves listings and single resources by request path. Query
// strings are ignored.
type fakePIM struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string][]string
	resources   map[string]string
	hits        map[string]int
}

func newFakePIM(t *testing.T) *fakePIM {
	t.Helper()
	f := &fakePIM{
		collections: map[string][]string{},
		resources:   map[string]string{},
		hits:        map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(pim.TokenPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/", f.serve)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakePIM) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.URL.Path]++
	if body, ok := f.resources[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
		return
	}
	items := make([]json.RawMessage, 0)
	for _, item := range f.collections[r.URL.Path] {
		items = append(items, json.RawMessage(item))
	}
	writeJSON(w, map[string]any{
		"_links":    map[string]any{"self": map[string]string{"href": r.URL.String()}},
		"_embedded": map[string]any{"items": items},
	})
}

func (f *fakePIM) list(path string, items ...string) {
	f.mu.Lock()
	f.collections[path] = items
	f.mu.Unlock()
}

func (f *fakePIM) resource(path, body string) {
	f.mu.Lock()
	f.resources[path] = body
	f.mu.Unlock()
}

func (f *fakePIM) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

const (
	productSKU1 = `{"identifier":"sku-1","family":"shirts","parent":"shirt","values":{
		"color":[{"data":"red","locale":null,"scope":null}],
		"price":[{"data":[{"amount":"5","currency":"EUR"}],"locale":null,"scope":null}],
		"gallery":[{"data":["front"],"locale":null,"scope":null}]
	}}`
	productSKU2 = `{"identifier":"sku-2","family":"mugs","values":{
		"name":[{"data":"Mug","locale":null,"scope":null}]
	}}`
	shirtModel = `{"code":"shirt","family":"shirts","family_variant":"shirt_color","values":{
		"name":[{"data":"Shirt","locale":null,"scope":null}]
	}}`
	shirtColorVariant = `{"code":"shirt_color","variant_attribute_sets":[
		{"level":1,"axes":["color"],"attributes":["color","price","gallery"]}
	]}`
)

// seedCatalog serves a small catalog: one master with one variant, one
// simple product, one asset, one category and one reference entity record.
func seedCatalog(f *fakePIM) {
	f.list(pim.AttributesPath,
		`{"code":"name","type":"pim_catalog_text"}`,
		`{"code":"price","type":"pim_catalog_price_collection"}`,
		`{"code":"color","type":"pim_catalog_simpleselect"}`,
		`{"code":"gallery","type":"pim_catalog_asset_collection"}`,
	)
	f.list(pim.AttributeOptionsPath("color"),
		`{"code":"red","attribute":"color","labels":{"en_US":"Red","fr_FR":"Rouge"}}`,
	)
	f.list(pim.FamiliesPath, `{"code":"shirts"}`)
	f.list(pim.FamilyVariantsPath("shirts"), shirtColorVariant)
	f.resource(pim.FamilyVariantPath("shirts", "shirt_color"), shirtColorVariant)
	f.list(pim.AssetFamiliesPath, `{"code":"packshots"}`)
	f.list(pim.AssetFamilyAssetsPath("packshots"), `{"code":"front","values":{}}`)
	f.list(pim.ProductModelsPath, shirtModel)
	f.list(pim.ProductsPath, productSKU1, productSKU2)
	f.resource(pim.ProductPath("sku-1"), productSKU1)
	f.list(pim.CategoriesPath, `{"code":"shirts","parent":null,"labels":{"en_US":"Shirts"}}`)
	f.list(pim.ReferenceEntitiesPath, `{"code":"brands"}`)
	f.list(pim.ReferenceEntityRecordsPath("brands"), `{"code":"acme","values":{}}`)
}

type fixture struct {
	api    *fakePIM
	cfg    *pimsync.Config
	store  *cache.Store
	marks  *diffsync.CacheWatermarks
	runner *Runner
}

func newFixture(t *testing.T, mutate ...func(*pimsync.Config)) *fixture {
	t.Helper()
	api := newFakePIM(t)

	cfg := pimsync.DefaultConfig()
	cfg.PIM.BaseURL = api.URL
	cfg.PIM.ClientID = "client"
	cfg.PIM.ClientSecret = "secret"
	cfg.PIM.Username = "user"
	cfg.PIM.Password = "pass"
	cfg.PIM.RequestsPerSecond = 0
	cfg.PIM.Timeout = 5 * time.Second
	cfg.Import.CatalogID = "master"
	for _, m := range mutate {
		m(cfg)
	}

	backend, err := cache.NewFilesystemBackend(t.TempDir())
	require.NoError(t, err)
	store := cache.New(backend, 0)

	client, err := pim.NewClient(cfg.PIM, pim.NewTokenProvider(cfg.PIM, nil, nil))
	require.NoError(t, err)
	attrs, err := attributes.NewResolver(store, client, attributes.NewMapper(nil, nil), attributes.Options{})
	require.NoError(t, err)
	engine := transform.New(attrs, transform.OptionsFromConfig(cfg.Import))
	models := variation.New(store, client, attrs, variation.Options{CatalogID: cfg.Import.CatalogID})
	marks := diffsync.NewCacheWatermarks(store)
	coord := diffsync.New(store, marks, attrs, diffsync.Options{
		CatalogID:        cfg.Import.CatalogID,
		CatalogRuntimeID: cfg.Import.CatalogRuntimeObject,
		Now:              func() time.Time { return fixedNow },
	})

	r := New(Deps{
		Config:    cfg,
		Cache:     store,
		Client:    client,
		Attrs:     attrs,
		Engine:    engine,
		Variation: models,
		Sync:      coord,
	})
	r.now = func() time.Time { return fixedNow }
	return &fixture{api: api, cfg: cfg, store: store, marks: marks, runner: r}
}

// markImported stores a watermark so the next Begin is differential.
func (f *fixture) markImported(t *testing.T) {
	t.Helper()
	require.NoError(t, f.marks.SaveWatermark(t.Context(), pimsync.Watermark{
		RuntimeID:        f.cfg.Import.CatalogRuntimeObject,
		LastImportedTime: "2024-03-01 10:00:00",
	}))
}
