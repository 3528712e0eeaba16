package pim

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// REST paths of the PIM API
const (
	TokenPath             = "/api/oauth/v1/token"
	ProductsPath          = "/api/rest/v1/products"
	ProductModelsPath     = "/api/rest/v1/product-models"
	AttributesPath        = "/api/rest/v1/attributes"
	FamiliesPath          = "/api/rest/v1/families"
	AssetFamiliesPath     = "/api/rest/v1/asset-families"
	CategoriesPath        = "/api/rest/v1/categories"
	ReferenceEntitiesPath = "/api/rest/v1/reference-entities"
)

// ReferenceEntityRecordsPath returns the record collection of a reference entity
func ReferenceEntityRecordsPath(entity string) string {
	return ReferenceEntitiesPath + "/" + url.PathEscape(entity) + "/records"
}

// LimitArgs builds the query string of a plain paginated listing.
func LimitArgs(pageSize int) string {
	return "?limit=" + strconv.Itoa(pageSize)
}

// ProductPath returns the path of one product
func ProductPath(identifier string) string {
	return ProductsPath + "/" + url.PathEscape(identifier)
}

// ProductModelPath returns the path of one product model
func ProductModelPath(code string) string {
	return ProductModelsPath + "/" + url.PathEscape(code)
}

// AttributePath returns the path of one attribute definition
func AttributePath(code string) string {
	return AttributesPath + "/" + url.PathEscape(code)
}

// AttributeOptionsPath returns the option collection of a select attribute
func AttributeOptionsPath(code string) string {
	return AttributePath(code) + "/options"
}

// FamilyVariantPath returns the path of a family variant
func FamilyVariantPath(family, variant string) string {
	return FamiliesPath + "/" + url.PathEscape(family) + "/variants/" + url.PathEscape(variant)
}

// FamilyVariantsPath returns the variant collection of a family
func FamilyVariantsPath(family string) string {
	return FamiliesPath + "/" + url.PathEscape(family) + "/variants"
}

// AssetFamilyAssetsPath returns the asset collection of an asset family
func AssetFamilyAssetsPath(family string) string {
	return AssetFamiliesPath + "/" + url.PathEscape(family) + "/assets"
}

// UpdatedSinceArgs builds the query string of an asset listing. A non-empty
// since restricts it to assets updated after that time.
func UpdatedSinceArgs(since string, pageSize int) (string, error) {
	filter := map[string]any{}
	if since != "" {
		filter["updated"] = []map[string]string{{"operator": ">", "value": since}}
	}
	search, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	return "?limit=" + strconv.Itoa(pageSize) + "&search=" + url.QueryEscape(string(search)), nil
}

// IsProductModelsEndpoint reports whether endpoint lists product models.
func IsProductModelsEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "product-models")
}

// SearchArgs builds the query string of a products or product models listing.
//
// advanced is an optional JSON object: its "search" member seeds the search
// filter and every other member is appended as a query parameter. A non-empty
// lastImportTime adds an "updated greater than" condition.
func SearchArgs(lastImportTime, advanced string, pageSize int) (string, error) {
	filter := map[string]json.RawMessage{}
	var extra strings.Builder

	if strings.TrimSpace(advanced) != "" {
		var builder map[string]json.RawMessage
		if err := json.Unmarshal([]byte(advanced), &builder); err != nil {
			return "", fmt.Errorf("parse advanced search config: %w", err)
		}
		keys := make([]string, 0, len(builder))
		for k := range builder {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "search" {
				if err := json.Unmarshal(builder[k], &filter); err != nil {
					return "", fmt.Errorf("parse advanced search filter: %w", err)
				}
				continue
			}
			extra.WriteString("&" + url.QueryEscape(k) + "=" + url.QueryEscape(rawParam(builder[k])))
		}
	}

	if lastImportTime != "" {
		updated, err := json.Marshal([]map[string]string{{"operator": ">", "value": lastImportTime}})
		if err != nil {
			return "", err
		}
		filter["updated"] = updated
	}

	search, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	return "?pagination_type=search_after&search=" + url.QueryEscape(string(search)) +
		extra.String() + "&limit=" + strconv.Itoa(pageSize), nil
}

func rawParam(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
