package attributes

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/cache"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves resources and paginated listings from memory.
type fakeFetcher struct {
	mu        sync.Mutex
	resources map[string]string
	listings  map[string][][]string
	gets      atomic.Int32
	lists     atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		resources: make(map[string]string),
		listings:  make(map[string][][]string),
	}
}

func (f *fakeFetcher) Get(_ context.Context, target string, out any) error {
	f.gets.Add(1)
	f.mu.Lock()
	body, ok := f.resources[target]
	f.mu.Unlock()
	if !ok {
		return pimsync.NewRetryExhaustedError("GET "+target, 5, nil)
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeFetcher) FetchAll(_ context.Context, target string, pageLimit int) iter.Seq2[pimsync.Page, error] {
	f.lists.Add(1)
	path, _, _ := strings.Cut(target, "?")
	f.mu.Lock()
	pages := f.listings[path]
	f.mu.Unlock()
	return func(yield func(pimsync.Page, error) bool) {
		for i, items := range pages {
			if pageLimit > 0 && i >= pageLimit {
				return
			}
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

func newTestStore(t *testing.T, threshold int) *cache.Store {
	t.Helper()
	backend, err := cache.NewFilesystemBackend(t.TempDir())
	require.NoError(t, err)
	return cache.New(backend, threshold)
}

func newTestResolver(t *testing.T, store pimsync.CacheStore, api Fetcher, mapper *Mapper, opts Options) *Resolver {
	t.Helper()
	if mapper == nil {
		mapper = NewMapper(nil, nil)
	}
	r, err := NewResolver(store, api, mapper, opts)
	require.NoError(t, err)
	return r
}
