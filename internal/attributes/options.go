package attributes

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// OptionsKey returns the cache key of the first option shard of an attribute
func OptionsKey(code string) string {
	return pim.AttributeOptionsPath(code)
}

func shardKey(code string, i int) string {
	if i == 0 {
		return OptionsKey(code)
	}
	return OptionsKey(code) + strconv.Itoa(i)
}

// Option finds optionCode in the option vocabulary of attrCode. The vocabulary
// is fetched and sharded into the cache the first time it is needed.
func (r *Resolver) Option(ctx context.Context, attrCode, optionCode string) (pimsync.AttributeOption, bool, error) {
	count := r.cache.ShardCount(ctx, OptionsKey(attrCode))
	if count == 0 {
		if err := r.FetchOptions(ctx, attrCode); err != nil {
			return pimsync.AttributeOption{}, false, err
		}
		count = r.cache.ShardCount(ctx, OptionsKey(attrCode))
	}

	if count <= 1 {
		opt, ok := r.findInShard(ctx, OptionsKey(attrCode), optionCode)
		return opt, ok, nil
	}
	for i := 0; i < count; i++ {
		if opt, ok := r.findInShard(ctx, shardKey(attrCode, i), optionCode); ok {
			return opt, true, nil
		}
	}
	return pimsync.AttributeOption{}, false, nil
}

// Options returns every cached option of attrCode in shard order.
func (r *Resolver) Options(ctx context.Context, attrCode string) []pimsync.AttributeOption {
	count := r.cache.ShardCount(ctx, OptionsKey(attrCode))
	var all []pimsync.AttributeOption
	for i := 0; i < max(count, 1); i++ {
		var shard []pimsync.AttributeOption
		if r.cache.Get(ctx, shardKey(attrCode, i), &shard) {
			all = append(all, shard...)
		}
	}
	return all
}

func (r *Resolver) findInShard(ctx context.Context, key, optionCode string) (pimsync.AttributeOption, bool) {
	var shard []pimsync.AttributeOption
	if !r.cache.Get(ctx, key, &shard) {
		return pimsync.AttributeOption{}, false
	}
	for _, opt := range shard {
		if opt.Code == optionCode {
			return opt, true
		}
	}
	return pimsync.AttributeOption{}, false
}

// FetchOptions pages through the options of attrCode and appends each page to the shards.
func (r *Resolver) FetchOptions(ctx context.Context, attrCode string) error {
	key := OptionsKey(attrCode)
	pages := 0
	target := pim.AttributeOptionsPath(attrCode) + "?limit=100"
	for page, err := range r.api.FetchAll(ctx, target, r.pageLimit) {
		if err != nil {
			return err
		}
		items := make([]pimsync.AttributeOption, 0, len(page.Items))
		for _, raw := range page.Items {
			var opt pimsync.AttributeOption
			if err := json.Unmarshal(raw, &opt); err != nil {
				zap.S().Warnw("skipping undecodable attribute option", "attribute", attrCode, "error", err)
				continue
			}
			items = append(items, opt)
		}
		r.cache.AppendOptionShard(ctx, key, items)
		pages++
	}
	if pages == 0 {
		r.cache.AppendOptionShard(ctx, key, []pimsync.AttributeOption{})
	}
	zap.S().Debugw("attribute options cached", "attribute", attrCode, "pages", pages)
	return nil
}
