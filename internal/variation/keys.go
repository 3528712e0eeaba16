package variation

import "strings"

// Cache locations owned by the variation resolver
const (
	ModelProductsFolder = "/model-products"
	FamiliesFolder      = "/families"
	AxesListKey         = "/variants-axes/axesList"
)

// ModelProductsKey returns the folder holding the model products of a catalog
func ModelProductsKey(catalogID string) string {
	return ModelProductsFolder + "/" + catalogID
}

// ModelProductKey returns the cache key of one model product
func ModelProductKey(catalogID, code string) string {
	return ModelProductsKey(catalogID) + "/" + escape(code)
}

// FamilyVariantKey returns the cache key of a family variant definition
func FamilyVariantKey(family, variant string) string {
	return FamiliesFolder + "/" + escape(family) + "/variants/" + escape(variant)
}

// escape keeps codes containing a slash inside a single cache entry name.
func escape(code string) string {
	return strings.ReplaceAll(code, "/", "%2F")
}
