package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// Emission keys of the reference entity records step
const (
	RecordLabelKey = "entity-record-label"
	entityPrefix   = "akeneo_entity_"
)

type referenceEntity struct {
	Code string `json:"code"`
}

// entityRecord is one record of a reference entity. Its values are kept as
// decoded so the written payload carries every field the PIM returned.
type entityRecord struct {
	Code   string                      `json:"code"`
	Values map[string][]map[string]any `json:"values"`
}

// RecordAttributeID returns the target id of a reference entity record, the
// value written by the entity strategy for attributes linking to it.
func RecordAttributeID(entity, record string) string {
	return entityPrefix + entity + "_" + record
}

// EntityRecords pages every reference entity and emits its records: one node
// per record holding the record as JSON, filtered to the configured scope,
// followed by its label nodes. Records are grouped per reference entity.
func (r *Runner) EntityRecords(ctx context.Context, sink pimsync.Sink) (*pimsync.JobReport, error) {
	t := r.track(StepEntityRecords)

	entities, err := r.referenceEntities(ctx)
	if err != nil {
		return nil, err
	}
	for _, entity := range entities {
		startEntity(sink, entityPrefix+entity)
		target := pim.ReferenceEntityRecordsPath(entity)
		for page, err := range r.client.FetchAll(ctx, target, r.pageLimit()) {
			if err != nil {
				return nil, fmt.Errorf("list records of reference entity %s: %w", entity, err)
			}
			for _, raw := range page.Items {
				var rec entityRecord
				if err := json.Unmarshal(raw, &rec); err != nil || rec.Code == "" {
					if err == nil {
						err = pimsync.NewSyncError(pimsync.ErrorTypeEntityProcessing, pimsync.ErrCodeEntityFailed, "record without code")
					}
					if err := t.fail(entity, err); err != nil {
						return nil, err
					}
					continue
				}
				if err := r.emitRecord(entity, rec, sink); err != nil {
					if err := t.fail(RecordAttributeID(entity, rec.Code), err); err != nil {
						return nil, err
					}
					continue
				}
				t.ok()
			}
		}
	}
	return r.done(t), nil
}

func (r *Runner) referenceEntities(ctx context.Context) ([]string, error) {
	var codes []string
	for page, err := range r.client.FetchAll(ctx, pim.ReferenceEntitiesPath, 0) {
		if err != nil {
			return nil, fmt.Errorf("list reference entities: %w", err)
		}
		for _, raw := range page.Items {
			var e referenceEntity
			if err := json.Unmarshal(raw, &e); err != nil || e.Code == "" {
				zap.S().Warnw("skipping unreadable reference entity", "error", err)
				continue
			}
			codes = append(codes, e.Code)
		}
	}
	zap.S().Debugw("reference entities listed", "count", len(codes))
	return codes, nil
}

func (r *Runner) emitRecord(entity string, rec entityRecord, sink pimsync.Sink) error {
	id := RecordAttributeID(entity, rec.Code)
	rec.Values = r.channelValues(rec.Values)
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	sink.Emit(pimsync.Emission{Key: id, Value: string(payload)})

	labels := rec.Values["label"]
	if len(labels) == 0 {
		sink.Emit(pimsync.Emission{Key: RecordLabelKey, Value: id, Label: id})
		return nil
	}
	for _, l := range labels {
		if l["data"] == nil {
			continue
		}
		locale, _ := l["locale"].(string)
		sink.Emit(pimsync.Emission{Key: RecordLabelKey, Value: id, Locale: locale, Label: fmt.Sprint(l["data"])})
	}
	return nil
}

// channelValues drops the record values of other channels. Values without a
// channel and an empty configured scope always pass.
func (r *Runner) channelValues(values map[string][]map[string]any) map[string][]map[string]any {
	scope := r.cfg.Import.Scope
	out := make(map[string][]map[string]any, len(values))
	for code, entries := range values {
		kept := make([]map[string]any, 0, len(entries))
		for _, v := range entries {
			channel, _ := v["channel"].(string)
			if scope == "" || channel == "" || channel == scope {
				kept = append(kept, v)
			}
		}
		out[code] = kept
	}
	return out
}
