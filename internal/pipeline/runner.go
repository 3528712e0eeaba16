package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/lychee-technology/pimsync/internal/diffsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/transform"
	"github.com/lychee-technology/pimsync/internal/variation"
	"go.uber.org/zap"
)

// Job step names
const (
	StepBegin          = "begin"
	StepCategories     = "categories"
	StepAssets         = "assets"
	StepModelProducts  = "model-products"
	StepProducts       = "products"
	StepModelCatalog   = "model-catalog"
	StepModelVariation = "model-variation"
	StepUpdateProducts = "update-products"
	StepPriceBooks     = "price-books"
	StepEntityRecords  = "entity-records"
	StepCommit         = "commit"
)

// Steps lists the job steps in run order
var Steps = []string{
	StepBegin,
	StepCategories,
	StepAssets,
	StepModelProducts,
	StepProducts,
	StepModelCatalog,
	StepModelVariation,
	StepUpdateProducts,
	StepPriceBooks,
	StepEntityRecords,
	StepCommit,
}

// EntityMarker is implemented by sinks that group emissions per entity.
type EntityMarker interface {
	StartEntity(key string)
}

// Deps are the collaborators of a Runner
type Deps struct {
	Config    *pimsync.Config
	Cache     pimsync.CacheStore
	Client    *pim.Client
	Attrs     *attributes.Resolver
	Engine    *transform.Engine
	Variation *variation.Resolver
	Sync      *diffsync.Coordinator
}

// Runner executes the job steps of one catalog import. Steps run one at a
// time; pages are handled strictly in sequence.
type Runner struct {
	cfg       *pimsync.Config
	cache     pimsync.CacheStore
	client    *pim.Client
	attrs     *attributes.Resolver
	engine    *transform.Engine
	variation *variation.Resolver
	sync      *diffsync.Coordinator
	now       func() time.Time
}

// New creates a runner
func New(d Deps) *Runner {
	return &Runner{
		cfg:       d.Config,
		cache:     d.Cache,
		client:    d.Client,
		attrs:     d.Attrs,
		engine:    d.Engine,
		variation: d.Variation,
		sync:      d.Sync,
		now:       time.Now,
	}
}

// Coordinator returns the differential sync coordinator of the runner
func (r *Runner) Coordinator() *diffsync.Coordinator {
	return r.sync
}

// RuntimeID returns the runtime object holding the catalog watermark
func (r *Runner) RuntimeID() string {
	return r.cfg.Import.CatalogRuntimeObject
}

// attach makes a step started on its own see the watermark of the catalog runtime.
func (r *Runner) attach(ctx context.Context) error {
	if r.sync.RuntimeID() != "" {
		return nil
	}
	return r.sync.Resume(ctx, r.RuntimeID())
}

func (r *Runner) pageLimit() int {
	if r.cfg.Debug.BreakOnLimit {
		return r.cfg.Debug.PageLimit
	}
	return 0
}

type tracker struct {
	report *pimsync.JobReport
	errs   *pimsync.EntityErrors
	start  time.Time
}

func (r *Runner) track(step string) *tracker {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	runID := id.String()
	zap.S().Infow("job step started", "step", step, "runId", runID)
	return &tracker{
		report: &pimsync.JobReport{RunID: runID, Step: step, Status: pimsync.JobStatusOK},
		errs:   pimsync.NewEntityErrors(),
		start:  r.now(),
	}
}

func (t *tracker) ok() {
	t.errs.Succeeded()
}

// fail records a per-entity failure. Fatal errors are returned for the step to abort.
func (t *tracker) fail(entity string, err error) error {
	if isFatal(err) {
		return err
	}
	se := pimsync.NewEntityProcessingError(entity, err)
	zap.S().Warnw("entity processing failed", "step", t.report.Step, "entity", entity, "error", err)
	t.errs.Add(se)
	return nil
}

func (t *tracker) finish(now time.Time) *pimsync.JobReport {
	t.report.Processed = t.errs.SuccessCount
	t.report.Failed = t.errs.FailureCount
	t.report.Status = t.errs.Status()
	t.report.Duration = now.Sub(t.start)
	if t.errs.HasErrors() {
		t.report.Errors = t.errs
	}
	zap.S().Infow("job step finished",
		"step", t.report.Step,
		"runId", t.report.RunID,
		"status", t.report.Status,
		"processed", t.report.Processed,
		"failed", t.report.Failed,
		"duration", t.report.Duration,
	)
	return t.report
}

func (r *Runner) done(t *tracker) *pimsync.JobReport {
	return t.finish(r.now())
}

// isFatal reports whether err aborts a step. Remote, data inconsistency and
// configuration failures do; anything else only fails the current entity.
func isFatal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *pimsync.SyncError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Type {
	case pimsync.ErrorTypeTransientRemote, pimsync.ErrorTypeDataInconsistency, pimsync.ErrorTypeConfiguration:
		return true
	}
	return false
}

// walk pages a product or product model listing, replaying cached products
// on differential runs, and hands every item to fn. A non-nil error from fn
// stops the walk.
func (r *Runner) walk(ctx context.Context, endpoint, advanced string, fn func(raw json.RawMessage) error) error {
	return r.walkPages(ctx, endpoint, advanced, fn, nil)
}

// walkPages is walk with a callback run after the items of every page.
func (r *Runner) walkPages(ctx context.Context, endpoint, advanced string, fn func(raw json.RawMessage) error, pageDone func()) error {
	pager := pim.NewProductPager(r.client, r.cache, r.sync, pim.PagerConfig{
		Endpoint:  endpoint,
		Advanced:  advanced,
		CatalogID: r.cfg.Import.CatalogID,
		RuntimeID: r.sync.RuntimeID(),
		PageSize:  r.cfg.PIM.PageSize,
	})

	cursor := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := pager.Next(ctx, cursor)
		if err != nil {
			return err
		}
		for _, raw := range batch.Items {
			if err := fn(raw); err != nil {
				return err
			}
		}
		if pageDone != nil {
			pageDone()
		}
		pages++
		if batch.Next == "" {
			return nil
		}
		if limit := r.pageLimit(); limit > 0 && pages >= limit {
			zap.S().Infow("page limit reached, stopping pagination", "endpoint", endpoint, "pages", pages)
			return nil
		}
		cursor = batch.Next
	}
}

func decodeEntity(raw json.RawMessage) (pimsync.Entity, error) {
	var e pimsync.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, err
	}
	if e.Values == nil {
		e.Values = pimsync.Values{}
	}
	return e, nil
}

func startEntity(sink pimsync.Sink, key string) {
	if m, ok := sink.(EntityMarker); ok {
		m.StartEntity(key)
	}
}
