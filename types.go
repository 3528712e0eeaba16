package pimsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AttributeType is the PIM wire name of an attribute type
type AttributeType string

const (
	AttributeTypeIdentifier                AttributeType = "pim_catalog_identifier"
	AttributeTypeText                      AttributeType = "pim_catalog_text"
	AttributeTypeTextarea                  AttributeType = "pim_catalog_textarea"
	AttributeTypeSimpleSelect              AttributeType = "pim_catalog_simpleselect"
	AttributeTypeMultiSelect               AttributeType = "pim_catalog_multiselect"
	AttributeTypeBoolean                   AttributeType = "pim_catalog_boolean"
	AttributeTypeDate                      AttributeType = "pim_catalog_date"
	AttributeTypeNumber                    AttributeType = "pim_catalog_number"
	AttributeTypeMetric                    AttributeType = "pim_catalog_metric"
	AttributeTypePriceCollection           AttributeType = "pim_catalog_price_collection"
	AttributeTypeImage                     AttributeType = "pim_catalog_image"
	AttributeTypeFile                      AttributeType = "pim_catalog_file"
	AttributeTypeAssetCollection           AttributeType = "pim_assets_collection"
	AttributeTypeCatalogAssetCollection    AttributeType = "pim_catalog_asset_collection"
	AttributeTypeReferenceEntity           AttributeType = "akeneo_reference_entity"
	AttributeTypeReferenceEntityList       AttributeType = "akeneo_reference_entity_collection"
	AttributeTypeReferenceDataSimpleSelect AttributeType = "pim_reference_data_simpleselect"
	AttributeTypeReferenceDataMultiSelect  AttributeType = "pim_reference_data_multiselect"
)

// IsSelect reports whether options must be resolved for the type.
func (t AttributeType) IsSelect() bool {
	return t == AttributeTypeSimpleSelect || t == AttributeTypeMultiSelect
}

// IsAsset reports whether the type holds asset codes in either asset system.
func (t AttributeType) IsAsset() bool {
	return t == AttributeTypeAssetCollection || t == AttributeTypeCatalogAssetCollection
}

// AttributeValue is one locale/channel qualified value of an attribute
type AttributeValue struct {
	Data    any     `json:"data"`
	Locale  *string `json:"locale"`
	Scope   *string `json:"scope"`
	Channel *string `json:"channel,omitempty"`
}

// LocaleOrEmpty returns the locale or "" when the value is not localized
func (v AttributeValue) LocaleOrEmpty() string {
	if v.Locale == nil {
		return ""
	}
	return *v.Locale
}

// IsMultiEntry reports whether values must be iterated entry by entry.
// Several entries may exist only because of channel scoping, so this is not
// a localizability signal.
func IsMultiEntry(values []AttributeValue) bool {
	return len(values) > 1 || (len(values) == 1 && values[0].Locale != nil)
}

// LocalizedLabel is one locale/label pair
type LocalizedLabel struct {
	Locale string
	Label  string
}

// Labels keeps the locale order of the payload it was decoded from.
type Labels []LocalizedLabel

// Get returns the label of a locale
func (l Labels) Get(locale string) (string, bool) {
	for _, item := range l {
		if item.Locale == locale {
			return item.Label, true
		}
	}
	return "", false
}

// UnmarshalJSON decodes a locale keyed object without losing key order.
// The PIM serialises empty label maps as [].
func (l *Labels) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*l = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("labels: expected object, got %v", tok)
	}

	out := make(Labels, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("labels: expected string key, got %v", keyTok)
		}
		var label *string
		if err := dec.Decode(&label); err != nil {
			return fmt.Errorf("labels: value of %s: %w", key, err)
		}
		if label == nil {
			continue
		}
		out = append(out, LocalizedLabel{Locale: key, Label: *label})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// MarshalJSON encodes the labels as an object in their stored order.
func (l Labels) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Locale)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AttributeOption is one entry of a select attribute's vocabulary
type AttributeOption struct {
	Code      string `json:"code"`
	Attribute string `json:"attribute,omitempty"`
	SortOrder int    `json:"sort_order,omitempty"`
	Labels    Labels `json:"labels"`
}

// AttributeDefinition is the PIM metadata of an attribute code
type AttributeDefinition struct {
	Code              string            `json:"code"`
	Type              AttributeType     `json:"type"`
	Group             string            `json:"group,omitempty"`
	Localizable       bool              `json:"localizable"`
	Scopable          bool              `json:"scopable"`
	Labels            Labels            `json:"labels"`
	ReferenceDataName string            `json:"reference_data_name,omitempty"`
	Options           []AttributeOption `json:"options,omitempty"`
}

// Association lists the entities linked under one association type
type Association struct {
	Products      []string `json:"products"`
	ProductModels []string `json:"product_models"`
	Groups        []string `json:"groups,omitempty"`
}

// Values maps attribute codes to their qualified values
type Values map[string][]AttributeValue

// UnmarshalJSON accepts [] for an entity without values.
func (v *Values) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		*v = Values{}
		return nil
	}
	var m map[string][]AttributeValue
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*v = m
	return nil
}

// Entity is a product, model product, asset or entity record as returned by the PIM
type Entity struct {
	Identifier    string                 `json:"identifier,omitempty"`
	Code          string                 `json:"code,omitempty"`
	Family        string                 `json:"family,omitempty"`
	FamilyVariant string                 `json:"family_variant,omitempty"`
	Parent        string                 `json:"parent,omitempty"`
	Enabled       *bool                  `json:"enabled,omitempty"`
	Values        Values                 `json:"values"`
	Categories    []string               `json:"categories,omitempty"`
	Associations  map[string]Association `json:"associations,omitempty"`
	Updated       string                 `json:"updated,omitempty"`
}

// Key returns the identifier of a product or the code of any other entity.
func (e Entity) Key() string {
	if e.Identifier != "" {
		return e.Identifier
	}
	return e.Code
}

// VariantAttributeSet lists the axes and attributes owned by one variation level
type VariantAttributeSet struct {
	Level      int      `json:"level"`
	Axes       []string `json:"axes"`
	Attributes []string `json:"attributes"`
}

// FamilyVariant defines the variation levels of a family
type FamilyVariant struct {
	Code                 string                `json:"code"`
	Labels               Labels                `json:"labels,omitempty"`
	VariantAttributeSets []VariantAttributeSet `json:"variant_attribute_sets"`
}

// VariationSummary is the part of a variant product stored on its master
type VariationSummary struct {
	Identifier  string `json:"identifier"`
	Values      Values `json:"values,omitempty"`
	MediaValues Values `json:"mediaValues,omitempty"`
}

// ModelProduct is the cached aggregate of a model product. The master is the
// single writer of its VariationProducts list.
type ModelProduct struct {
	Code                 string                 `json:"code"`
	Parent               string                 `json:"parent,omitempty"`
	MasterFamilyVariant  string                 `json:"masterFamilyVariant"`
	Values               Values                 `json:"values"`
	Categories           []string               `json:"categories,omitempty"`
	Associations         map[string]Association `json:"associations,omitempty"`
	VariantAttributeSets []VariantAttributeSet  `json:"variantAttributeSets,omitempty"`
	VariationProducts    []VariationSummary     `json:"variationProducts,omitempty"`
	ModelList            []string               `json:"modelList,omitempty"`
}

// NewModelProduct copies the fields of a model entity that are kept in cache.
func NewModelProduct(e Entity) ModelProduct {
	return ModelProduct{
		Code:                e.Code,
		Parent:              e.Parent,
		MasterFamilyVariant: e.FamilyVariant,
		Values:              e.Values,
		Categories:          e.Categories,
		Associations:        e.Associations,
	}
}

// Emission is one target node handed to the catalog writer
type Emission struct {
	Key    string   `json:"key"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
	Locale string   `json:"locale,omitempty"`
	Label  string   `json:"label,omitempty"`
	Empty  bool     `json:"empty,omitempty"`
}

// Page is one page of a paginated PIM collection. NextURL is "" on the last page.
type Page struct {
	Items   []json.RawMessage
	NextURL string
}

// JobStatus is the outcome of a job step
type JobStatus string

const (
	JobStatusOK   JobStatus = "OK"
	JobStatusWarn JobStatus = "WARN"
)

// JobReport summarises one job step run
type JobReport struct {
	RunID     string        `json:"runId"`
	Step      string        `json:"step"`
	Status    JobStatus     `json:"status"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Errors    *EntityErrors `json:"errors,omitempty"`
}
