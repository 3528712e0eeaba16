package attributes

import (
	"context"
	"encoding/json"
	"iter"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheFolder holds definitions, option shards and code lists
const CacheFolder = "/attributes"

// Fetcher is the part of the PIM client used by the resolver
type Fetcher interface {
	Get(ctx context.Context, target string, out any) error
	FetchAll(ctx context.Context, target string, pageLimit int) iter.Seq2[pimsync.Page, error]
}

// DefinitionKey returns the cache key of an attribute definition
func DefinitionKey(code string) string {
	return pim.AttributePath(code)
}

// Resolver looks up attribute definitions and options, cache first. It is
// safe for concurrent use.
type Resolver struct {
	cache     pimsync.CacheStore
	api       Fetcher
	mapper    *Mapper
	schema    *jsonschema.Resolved
	pageLimit int
	advanced  map[string]struct{}

	group singleflight.Group
	mu    sync.RWMutex
	defs  map[string]pimsync.AttributeDefinition
}

// Options configures a Resolver
type Options struct {
	// PageLimit stops paging option and attribute listings early when > 0.
	PageLimit int
	// Advanced restricts code lists to these codes when not empty.
	Advanced []string
}

// NewResolver creates a resolver
func NewResolver(cache pimsync.CacheStore, api Fetcher, mapper *Mapper, opts Options) (*Resolver, error) {
	schema, err := compileDefinitionSchema()
	if err != nil {
		return nil, err
	}
	advanced := make(map[string]struct{}, len(opts.Advanced))
	for _, code := range opts.Advanced {
		advanced[code] = struct{}{}
	}
	return &Resolver{
		cache:     cache,
		api:       api,
		mapper:    mapper,
		schema:    schema,
		pageLimit: opts.PageLimit,
		advanced:  advanced,
		defs:      make(map[string]pimsync.AttributeDefinition),
	}, nil
}

// Mapper returns the target key mapper
func (r *Resolver) Mapper() *Mapper {
	return r.mapper
}

// Resolve returns the definition of code from memory, the cache or the API.
// Concurrent calls for the same code share one lookup.
func (r *Resolver) Resolve(ctx context.Context, code string) (pimsync.AttributeDefinition, error) {
	r.mu.RLock()
	def, ok := r.defs[code]
	r.mu.RUnlock()
	if ok {
		return def, nil
	}

	v, err, _ := r.group.Do(code, func() (any, error) {
		var cached pimsync.AttributeDefinition
		if r.cache.Get(ctx, DefinitionKey(code), &cached) && cached.Code != "" {
			r.remember(cached)
			return cached, nil
		}

		var raw json.RawMessage
		if err := r.api.Get(ctx, pim.AttributePath(code), &raw); err != nil {
			return pimsync.AttributeDefinition{}, err
		}
		fetched, err := r.decode(code, raw)
		if err != nil {
			return pimsync.AttributeDefinition{}, err
		}
		r.cache.SetText(ctx, DefinitionKey(code), string(raw))
		r.remember(fetched)
		zap.S().Debugw("attribute definition fetched", "code", code, "type", fetched.Type)
		return fetched, nil
	})
	if err != nil {
		return pimsync.AttributeDefinition{}, err
	}
	return v.(pimsync.AttributeDefinition), nil
}

func (r *Resolver) decode(code string, raw []byte) (pimsync.AttributeDefinition, error) {
	if err := validateDefinition(r.schema, raw); err != nil {
		return pimsync.AttributeDefinition{}, pimsync.NewDataInconsistencyError(pimsync.ErrCodeInvalidDefinition, "attribute definition rejected").
			WithField(code).
			WithCause(err)
	}
	var def pimsync.AttributeDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return pimsync.AttributeDefinition{}, pimsync.NewDataInconsistencyError(pimsync.ErrCodeInvalidDefinition, "attribute definition not decodable").
			WithField(code).
			WithCause(err)
	}
	return def, nil
}

func (r *Resolver) remember(def pimsync.AttributeDefinition) {
	r.mu.Lock()
	r.defs[def.Code] = def
	r.mu.Unlock()
}

// ClearCache wipes cached definitions, option shards and code lists.
func (r *Resolver) ClearCache(ctx context.Context) {
	r.cache.Clear(ctx, pim.AttributesPath)
	r.cache.Clear(ctx, CacheFolder)
	r.mu.Lock()
	r.defs = make(map[string]pimsync.AttributeDefinition)
	r.mu.Unlock()
}
