package transform

import (
	"context"
	"encoding/json"

	"github.com/lychee-technology/pimsync"
)

func node(key string, v pimsync.AttributeValue) pimsync.Emission {
	return pimsync.Emission{Key: key, Locale: v.LocaleOrEmpty()}
}

// entryEmission renders one entry of a multi-entry value. Scalars are written
// literally (false included) and non-empty arrays as child values. Null, ""
// and 0 write an empty node; any other object writes nothing.
func entryEmission(key string, v pimsync.AttributeValue) (pimsync.Emission, bool) {
	em := node(key, v)
	if v.Data == false {
		em.Value = "false"
		return em, true
	}
	if isFalsy(v.Data) {
		em.Empty = true
		return em, true
	}
	if s, ok := scalarString(v.Data); ok {
		em.Value = s
		return em, true
	}
	if arr, ok := v.Data.([]any); ok && len(arr) > 0 {
		em.Values = stringifyAll(arr, "")
		return em, true
	}
	return em, false
}

// generalEmission renders a single entry value: scalars literally (false
// included), arrays and plain objects as child values, and amount objects
// as "amount unit".
func generalEmission(key string, v pimsync.AttributeValue) pimsync.Emission {
	em := node(key, v)
	if isBlank(v.Data) {
		em.Empty = true
		return em
	}
	if s, ok := scalarString(v.Data); ok {
		em.Value = s
		return em
	}
	if s, ok := composite(v.Data, "unit", "currency"); ok {
		em.Value = s
		return em
	}
	em.Values = stringifyAll(elements(v.Data), "")
	return em
}

func (e *Engine) general(values []pimsync.AttributeValue, key string, sink pimsync.Sink, parentCode string) {
	entries, multi := e.qualifying(values)
	if multi {
		e.entries(entries, key, sink)
		return
	}
	for _, v := range entries {
		if !isBlank(v.Data) {
			if s, ok := scalarString(v.Data); ok {
				e.refinement(key, parentCode, s, sink)
			}
		}
		sink.Emit(generalEmission(key, v))
	}
}

func (e *Engine) entries(entries []pimsync.AttributeValue, key string, sink pimsync.Sink) {
	for _, v := range entries {
		if em, ok := entryEmission(key, v); ok {
			sink.Emit(em)
		}
	}
}

// newDataType handles attribute types without a dedicated strategy. Arrays
// and objects are written as one JSON string.
func (e *Engine) newDataType(values []pimsync.AttributeValue, key string, sink pimsync.Sink) {
	entries, _ := e.qualifying(values)
	for _, v := range entries {
		em := node(key, v)
		switch d := v.Data.(type) {
		case bool:
			if d {
				em.Value = "true"
			} else {
				em.Empty = true
			}
		case []any, map[string]any:
			if isBlank(d) {
				em.Empty = true
			} else if b, err := json.Marshal(d); err == nil {
				em.Value = string(b)
			} else {
				em.Empty = true
			}
		default:
			if isBlank(d) {
				em.Empty = true
			} else {
				em.Value = stringify(d)
			}
		}
		sink.Emit(em)
	}
}

// price writes one node per qualifying entry holding its "amount currency"
// pairs. An entry without a usable amount still writes an empty node.
func (e *Engine) price(values []pimsync.AttributeValue, key string, sink pimsync.Sink) {
	entries, _ := e.qualifying(values)
	for _, v := range entries {
		em := node(key, v)
		if pairs := pricePairs(v.Data); len(pairs) > 0 {
			em.Values = pairs
		} else {
			em.Empty = true
		}
		sink.Emit(em)
	}
}

// metric always writes the node of a single entry value. Entries of a
// multi-entry value without amount and unit are skipped unless their data
// is null.
func (e *Engine) metric(values []pimsync.AttributeValue, key string, sink pimsync.Sink) {
	entries, multi := e.qualifying(values)
	for _, v := range entries {
		em := node(key, v)
		if s, ok := composite(v.Data, "unit"); ok {
			em.Value = s
		} else if multi && !isFalsy(v.Data) {
			continue
		} else {
			em.Empty = true
		}
		sink.Emit(em)
	}
}

// entity prefixes reference entity record codes with their entity namespace.
func (e *Engine) entity(values []pimsync.AttributeValue, key string, sink pimsync.Sink, parentCode, referenceEntity string) {
	prefix := "akeneo_entity_" + referenceEntity + "_"
	entries, multi := e.qualifying(values)
	for _, v := range entries {
		em := node(key, v)
		switch {
		case isBlank(v.Data) || referenceEntity == "":
			em.Empty = true
		default:
			if s, ok := scalarString(v.Data); ok {
				if !multi {
					e.refinement(key, parentCode, s, sink)
				}
				em.Value = prefix + s
			} else {
				em.Values = stringifyAll(elements(v.Data), prefix)
			}
		}
		sink.Emit(em)
	}
}

// selects writes the raw option codes. A single entry value is followed by
// one labelled node per option label locale.
func (e *Engine) selects(ctx context.Context, code string, values []pimsync.AttributeValue, key string, sink pimsync.Sink, parentCode string) error {
	entries, multi := e.qualifying(values)
	if multi {
		e.entries(entries, key, sink)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	v := entries[0]
	if isBlank(v.Data) {
		sink.Emit(pimsync.Emission{Key: key, Empty: true})
		return nil
	}

	if s, ok := scalarString(v.Data); ok {
		e.refinement(key, parentCode, s, sink)
		sink.Emit(pimsync.Emission{Key: key, Value: s})
		return e.optionLabels(ctx, code, s, key, sink, nil)
	}

	items := elements(v.Data)
	sink.Emit(pimsync.Emission{Key: key, Values: stringifyAll(items, "")})
	seen := make(map[[2]string]struct{})
	for _, item := range items {
		if err := e.optionLabels(ctx, code, stringify(item), key, sink, seen); err != nil {
			return err
		}
	}
	return nil
}

// optionLabels emits the option code once per label locale, in label order.
// seen deduplicates on (locale, code) across the elements of a multi select.
func (e *Engine) optionLabels(ctx context.Context, attrCode, optionCode, key string, sink pimsync.Sink, seen map[[2]string]struct{}) error {
	opt, found, err := e.attrs.Option(ctx, attrCode, optionCode)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	for _, l := range opt.Labels {
		if seen != nil {
			k := [2]string{l.Locale, optionCode}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		sink.Emit(pimsync.Emission{Key: key, Value: optionCode, Locale: l.Locale, Label: l.Label})
	}
	return nil
}
