package pipeline

import (
	"context"
	"fmt"

	"github.com/lychee-technology/pimsync"
	"go.uber.org/zap"
)

// Begin starts a catalog import: the start timestamp is captured and, without
// a previous import, every derived cache is cleared.
func (r *Runner) Begin(ctx context.Context) (*pimsync.JobReport, error) {
	t := r.track(StepBegin)
	if err := r.sync.Begin(ctx, r.RuntimeID()); err != nil {
		return nil, err
	}
	t.ok()
	return r.done(t), nil
}

// Commit advances the watermark of the catalog runtime to the start of the run.
func (r *Runner) Commit(ctx context.Context) (*pimsync.JobReport, error) {
	t := r.track(StepCommit)
	if err := r.sync.Commit(ctx, r.RuntimeID()); err != nil {
		return nil, err
	}
	t.ok()
	return r.done(t), nil
}

// Step runs one named job step.
func (r *Runner) Step(ctx context.Context, step string, sink pimsync.Sink) (*pimsync.JobReport, error) {
	switch step {
	case StepBegin:
		return r.Begin(ctx)
	case StepCategories:
		return r.Categories(ctx, sink)
	case StepAssets:
		return r.CacheAssets(ctx)
	case StepModelProducts:
		return r.CacheModelProducts(ctx)
	case StepProducts:
		return r.TransformProducts(ctx, sink)
	case StepModelCatalog:
		return r.ModelCatalog(ctx, sink)
	case StepModelVariation:
		return r.ModelVariations(ctx, sink)
	case StepUpdateProducts:
		return r.UpdateProducts(ctx, sink)
	case StepPriceBooks:
		return r.PriceBooks(ctx, sink)
	case StepEntityRecords:
		return r.EntityRecords(ctx, sink)
	case StepCommit:
		return r.Commit(ctx)
	}
	return nil, pimsync.NewSyncError(pimsync.ErrorTypeConfiguration, pimsync.ErrCodeInvalidSetting,
		fmt.Sprintf("unknown job step %q", step))
}

// Run executes every step in order. The first fatal error stops the run
// before the watermark is committed; reports of completed steps are returned
// with it.
func (r *Runner) Run(ctx context.Context, sink pimsync.Sink) ([]*pimsync.JobReport, error) {
	reports := make([]*pimsync.JobReport, 0, len(Steps))
	for _, step := range Steps {
		report, err := r.Step(ctx, step, sink)
		if err != nil {
			zap.S().Errorw("job step aborted", "step", step, "error", err)
			return reports, fmt.Errorf("step %s: %w", step, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
