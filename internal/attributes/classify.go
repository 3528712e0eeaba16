package attributes

import "github.com/lychee-technology/pimsync"

// Strategy names the transformation applied to an attribute's values
type Strategy int

const (
	StrategyNewDataType Strategy = iota
	StrategyGeneral
	StrategyPrice
	StrategyMetric
	StrategyEntity
	StrategySelect
)

func (s Strategy) String() string {
	switch s {
	case StrategyGeneral:
		return "general"
	case StrategyPrice:
		return "price"
	case StrategyMetric:
		return "metric"
	case StrategyEntity:
		return "entity"
	case StrategySelect:
		return "select"
	default:
		return "new-data-type"
	}
}

// Classification is the dispatch decision for one attribute.
// Shadow is set for simple select variation axes, which are additionally
// written through the select strategy under ShadowKey.
type Classification struct {
	Strategy        Strategy
	Shadow          bool
	ReferenceEntity string
}

// Classify picks the strategy of def.
func Classify(def pimsync.AttributeDefinition, isVariationAxis bool) Classification {
	if isVariationAxis {
		return Classification{
			Strategy: StrategyGeneral,
			Shadow:   def.Type == pimsync.AttributeTypeSimpleSelect,
		}
	}

	switch def.Type {
	case pimsync.AttributeTypePriceCollection:
		return Classification{Strategy: StrategyPrice}
	case pimsync.AttributeTypeMetric:
		return Classification{Strategy: StrategyMetric}
	case pimsync.AttributeTypeFile,
		pimsync.AttributeTypeImage,
		pimsync.AttributeTypeBoolean,
		pimsync.AttributeTypeAssetCollection,
		pimsync.AttributeTypeNumber,
		pimsync.AttributeTypeDate,
		pimsync.AttributeTypeText,
		pimsync.AttributeTypeTextarea,
		pimsync.AttributeTypeIdentifier,
		pimsync.AttributeTypeReferenceDataMultiSelect,
		pimsync.AttributeTypeReferenceDataSimpleSelect:
		return Classification{Strategy: StrategyGeneral}
	case pimsync.AttributeTypeReferenceEntity, pimsync.AttributeTypeReferenceEntityList:
		return Classification{Strategy: StrategyEntity, ReferenceEntity: def.ReferenceDataName}
	case pimsync.AttributeTypeSimpleSelect, pimsync.AttributeTypeMultiSelect:
		return Classification{Strategy: StrategySelect}
	default:
		return Classification{Strategy: StrategyNewDataType}
	}
}
