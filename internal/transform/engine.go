package transform

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"go.uber.org/zap"
)

// Attributes is the part of the attribute resolver used by the engine.
// *attributes.Resolver satisfies it.
type Attributes interface {
	Resolve(ctx context.Context, code string) (pimsync.AttributeDefinition, error)
	Option(ctx context.Context, attrCode, optionCode string) (pimsync.AttributeOption, bool, error)
	Mapper() *attributes.Mapper
	Included(code string) bool
}

// Options configures an Engine
type Options struct {
	// Scope keeps values of this channel only. "" keeps every value.
	Scope string
	// ColorKey is the target key whose variant values are duplicated under RefinementColorKey.
	ColorKey           string
	RefinementColorKey string
}

// OptionsFromConfig extracts the engine options from the import settings
func OptionsFromConfig(cfg pimsync.ImportConfig) Options {
	return Options{
		Scope:              cfg.Scope,
		ColorKey:           cfg.ColorKey,
		RefinementColorKey: cfg.RefinementColorKey,
	}
}

// Engine turns qualified attribute values into target emissions.
type Engine struct {
	attrs Attributes
	opts  Options
}

// New creates an engine
func New(attrs Attributes, opts Options) *Engine {
	if opts.ColorKey == "" {
		opts.ColorKey = "color"
	}
	if opts.RefinementColorKey == "" {
		opts.RefinementColorKey = "refinementColor"
	}
	return &Engine{attrs: attrs, opts: opts}
}

// Transform emits the values of one attribute code under its target key.
// Codes without a target key are skipped.
func (e *Engine) Transform(ctx context.Context, code string, values []pimsync.AttributeValue, sink pimsync.Sink, parentCode string) error {
	key, ok := e.attrs.Mapper().TargetKey(code)
	if !ok {
		return nil
	}
	return e.transform(ctx, code, key, values, sink, parentCode, false)
}

// TransformEntity emits every custom attribute of entity in code order,
// followed by an empty node for each select code the entity has no value for.
// axes holds the variation axis codes of the catalog.
func (e *Engine) TransformEntity(ctx context.Context, entity pimsync.Entity, sink pimsync.Sink, axes map[string]struct{}, selectCodes []string) error {
	missing := make(map[string]struct{}, len(selectCodes))
	for _, code := range selectCodes {
		missing[code] = struct{}{}
	}

	mapper := e.attrs.Mapper()
	for _, code := range slices.Sorted(maps.Keys(entity.Values)) {
		delete(missing, code)
		key, ok := mapper.TargetKey(code)
		if !ok || !e.attrs.Included(code) {
			continue
		}
		_, isAxis := axes[code]
		if err := e.transform(ctx, code, key, entity.Values[code], sink, entity.Parent, isAxis); err != nil {
			return fmt.Errorf("attribute %s: %w", code, err)
		}
	}

	for _, code := range selectCodes {
		if _, ok := missing[code]; !ok {
			continue
		}
		if key, ok := mapper.TargetKey(code); ok {
			sink.Emit(pimsync.Emission{Key: key, Empty: true})
		}
	}
	return nil
}

func (e *Engine) transform(ctx context.Context, code, key string, values []pimsync.AttributeValue, sink pimsync.Sink, parentCode string, isAxis bool) error {
	if len(values) == 0 {
		return nil
	}
	def, err := e.attrs.Resolve(ctx, code)
	if err != nil {
		return err
	}
	c := attributes.Classify(def, isAxis)
	zap.S().Debugw("transforming attribute", "code", code, "key", key, "strategy", c.Strategy, "shadow", c.Shadow)

	if c.Shadow {
		if err := e.selects(ctx, code, values, attributes.ShadowKey(code), sink, parentCode); err != nil {
			return err
		}
	}

	switch c.Strategy {
	case attributes.StrategyGeneral:
		e.general(values, key, sink, parentCode)
	case attributes.StrategyPrice:
		e.price(values, key, sink)
	case attributes.StrategyMetric:
		e.metric(values, key, sink)
	case attributes.StrategyEntity:
		e.entity(values, key, sink, parentCode, c.ReferenceEntity)
	case attributes.StrategySelect:
		return e.selects(ctx, code, values, key, sink, parentCode)
	default:
		e.newDataType(values, key, sink)
	}
	return nil
}

// qualifying applies the scope filter. Multi entry values keep every matching
// entry, a single entry value keeps its only entry.
func (e *Engine) qualifying(values []pimsync.AttributeValue) (entries []pimsync.AttributeValue, multi bool) {
	multi = pimsync.IsMultiEntry(values)
	if !multi {
		values = values[:1]
	}
	for _, v := range values {
		if e.scopeMatches(v) {
			entries = append(entries, v)
		}
	}
	return entries, multi
}

func (e *Engine) scopeMatches(v pimsync.AttributeValue) bool {
	if v.Scope == nil || *v.Scope == "" || e.opts.Scope == "" {
		return true
	}
	return *v.Scope == e.opts.Scope
}

// refinement duplicates a variant's scalar color under the refinement key.
func (e *Engine) refinement(key, parentCode, value string, sink pimsync.Sink) {
	if parentCode != "" && key == e.opts.ColorKey {
		sink.Emit(pimsync.Emission{Key: e.opts.RefinementColorKey, Value: value})
	}
}
