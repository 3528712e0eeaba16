package variation

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lychee-technology/pimsync"
	"github.com/shopspring/decimal"
)

// DisplayValue renders the first value of an attribute for variation
// purposes. Metric and price objects become "amount unit" and "amount currency".
func DisplayValue(values []pimsync.AttributeValue) (string, bool) {
	if len(values) == 0 || values[0].Data == nil {
		return "", false
	}
	return displayData(values[0].Data), true
}

func displayData(data any) string {
	switch d := data.(type) {
	case string:
		return d
	case bool:
		return strconv.FormatBool(d)
	case float64:
		return decimal.NewFromFloat(d).String()
	case json.Number:
		return d.String()
	case map[string]any:
		if amount := amountString(d["amount"]); amount != "" {
			if unit, ok := d["unit"].(string); ok && unit != "" {
				return amount + " " + unit
			}
			if currency, ok := d["currency"].(string); ok && currency != "" {
				return amount + " " + currency
			}
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(b)
}

func amountString(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case float64:
		return decimal.NewFromFloat(a).String()
	case json.Number:
		return a.String()
	}
	return ""
}
