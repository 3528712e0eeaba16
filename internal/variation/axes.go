package variation

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"unicode"
	"unicode/utf8"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"go.uber.org/zap"
)

// AxisValue is one distinct value of a variation axis
type AxisValue struct {
	Value  string         `json:"value"`
	Labels pimsync.Labels `json:"labels,omitempty"`
}

// VariationAttribute describes one axis of a master product
type VariationAttribute struct {
	Code        string      `json:"code"`
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	Locales     []string    `json:"locales,omitempty"`
	Values      []AxisValue `json:"values"`
}

// VariationAttributes lists every axis of every variant attribute set of
// model with the distinct values found on its variation products. Values of
// select axes carry the option labels.
func (r *Resolver) VariationAttributes(ctx context.Context, model pimsync.ModelProduct, selectCodes []string) ([]VariationAttribute, error) {
	if len(model.VariationProducts) == 0 {
		return nil, nil
	}
	mapper := r.attrs.Mapper()
	entered := make(map[string]struct{})
	var out []VariationAttribute

	for _, set := range model.VariantAttributeSets {
		for _, axis := range set.Axes {
			id := mapper.CustomKey(axis)
			attr := VariationAttribute{Code: axis, ID: id, DisplayName: capitalize(id)}
			for _, v := range model.Values[axis] {
				if v.Locale != nil {
					attr.Locales = append(attr.Locales, *v.Locale)
				}
			}

			isSelect := slices.Contains(selectCodes, axis)
			for _, variant := range model.VariationProducts {
				value, ok := DisplayValue(variant.Values[axis])
				if !ok {
					continue
				}
				dedup := axis + "-" + value
				if _, seen := entered[dedup]; seen {
					continue
				}
				entered[dedup] = struct{}{}

				av := AxisValue{Value: value}
				if isSelect {
					opt, found, err := r.attrs.Option(ctx, axis, value)
					if err != nil {
						return nil, err
					}
					if found {
						av.Labels = opt.Labels
					}
				}
				attr.Values = append(attr.Values, av)
			}
			out = append(out, attr)
		}
	}
	return out, nil
}

// VariationGroups returns the codes of the sub models of master that carry
// at least one of the given axis values.
func (r *Resolver) VariationGroups(ctx context.Context, master pimsync.ModelProduct, axes []VariationAttribute) []string {
	values := make(map[string]struct{})
	for _, a := range axes {
		for _, v := range a.Values {
			values[v.Value] = struct{}{}
		}
	}

	var groups []string
	for _, code := range master.ModelList {
		model, ok := r.CachedModel(ctx, code)
		if !ok {
			zap.S().Warnw("sub model not cached", "master", master.Code, "model", code)
			continue
		}
		for _, attr := range slices.Sorted(maps.Keys(model.Values)) {
			value, ok := DisplayValue(model.Values[attr])
			if !ok {
				continue
			}
			if _, match := values[value]; match {
				groups = append(groups, model.Code)
				break
			}
		}
	}
	return groups
}

// VariantAxesCatalog returns every axis code used by any family variant of
// any family. The set is cached.
func (r *Resolver) VariantAxesCatalog(ctx context.Context) (map[string]struct{}, error) {
	var cached []string
	if r.cache.Get(ctx, AxesListKey, &cached) {
		return toSet(cached), nil
	}

	axes := make(map[string]struct{})
	for page, err := range r.api.FetchAll(ctx, pim.FamiliesPath+"?limit=100", r.opts.PageLimit) {
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			var family struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal(raw, &family); err != nil || family.Code == "" {
				zap.S().Warnw("skipping undecodable family", "error", err)
				continue
			}
			if err := r.collectAxes(ctx, family.Code, axes); err != nil {
				return nil, err
			}
		}
	}

	list := slices.Sorted(maps.Keys(axes))
	r.cache.Set(ctx, AxesListKey, list)
	zap.S().Infow("variant axes catalog built", "axes", len(list))
	return axes, nil
}

func (r *Resolver) collectAxes(ctx context.Context, family string, axes map[string]struct{}) error {
	for page, err := range r.api.FetchAll(ctx, pim.FamilyVariantsPath(family)+"?limit=100", r.opts.PageLimit) {
		if err != nil {
			return err
		}
		for _, raw := range page.Items {
			var fv pimsync.FamilyVariant
			if err := json.Unmarshal(raw, &fv); err != nil {
				zap.S().Warnw("skipping undecodable family variant", "family", family, "error", err)
				continue
			}
			for _, set := range fv.VariantAttributeSets {
				for _, axis := range set.Axes {
					axes[axis] = struct{}{}
				}
			}
		}
	}
	return nil
}

func toSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
