package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/diffsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// assetPageSize is the page size of asset listings
const assetPageSize = 100

type assetRecord struct {
	Code string `json:"code"`
}

// CacheAssets pages every asset family and caches the assets updated since
// the last import. On differential runs each cached asset is recorded as
// changed so the update pass refreshes the products referencing it.
func (r *Runner) CacheAssets(ctx context.Context) (*pimsync.JobReport, error) {
	t := r.track(StepAssets)
	if err := r.attach(ctx); err != nil {
		return nil, err
	}
	families, err := r.assetFamilies(ctx)
	if err != nil {
		return nil, err
	}
	since := r.sync.QueryFilter(ctx, diffsync.KindAssets).UpdatedSince
	args, err := pim.UpdatedSinceArgs(since, assetPageSize)
	if err != nil {
		return nil, err
	}

	for _, family := range families {
		for page, err := range r.client.FetchAll(ctx, pim.AssetFamilyAssetsPath(family)+args, r.pageLimit()) {
			if err != nil {
				return nil, fmt.Errorf("list assets of family %s: %w", family, err)
			}
			for _, raw := range page.Items {
				var asset assetRecord
				if err := json.Unmarshal(raw, &asset); err != nil || asset.Code == "" {
					if err == nil {
						err = pimsync.NewSyncError(pimsync.ErrorTypeEntityProcessing, pimsync.ErrCodeEntityFailed, "asset without code")
					}
					if err := t.fail(family, err); err != nil {
						return nil, err
					}
					continue
				}
				r.cache.Set(ctx, diffsync.AssetKey(asset.Code), raw)
				r.sync.RecordChangedAsset(ctx, asset.Code)
				t.ok()
			}
		}
	}
	return r.done(t), nil
}

func (r *Runner) assetFamilies(ctx context.Context) ([]string, error) {
	var codes []string
	for page, err := range r.client.FetchAll(ctx, pim.AssetFamiliesPath, 0) {
		if err != nil {
			return nil, fmt.Errorf("list asset families: %w", err)
		}
		for _, raw := range page.Items {
			var family assetRecord
			if err := json.Unmarshal(raw, &family); err != nil || family.Code == "" {
				zap.S().Warnw("skipping unreadable asset family", "error", err)
				continue
			}
			codes = append(codes, family.Code)
		}
	}
	zap.S().Debugw("asset families listed", "count", len(codes))
	return codes, nil
}
