package transform

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

// scalarString renders strings, booleans and numbers. Other shapes report false.
func scalarString(data any) (string, bool) {
	switch d := data.(type) {
	case string:
		return d, true
	case bool:
		return strconv.FormatBool(d), true
	case float64:
		return decimal.NewFromFloat(d).String(), true
	case json.Number:
		if n, err := decimal.NewFromString(d.String()); err == nil {
			return n.String(), true
		}
		return d.String(), true
	case int:
		return strconv.Itoa(d), true
	case int64:
		return strconv.FormatInt(d, 10), true
	}
	return "", false
}

// isBlank reports data the target treats as an absent value.
func isBlank(data any) bool {
	switch d := data.(type) {
	case nil:
		return true
	case string:
		return d == ""
	case []any:
		return len(d) == 0
	case map[string]any:
		return len(d) == 0
	}
	return false
}

// isFalsy reports data a payload treats as absent: null, "", false or 0.
func isFalsy(data any) bool {
	switch d := data.(type) {
	case nil:
		return true
	case string:
		return d == ""
	case bool:
		return !d
	case float64:
		return d == 0
	case json.Number:
		f, err := d.Float64()
		return err == nil && f == 0
	}
	return false
}

// stringify renders any decoded JSON value, falling back to its JSON text.
func stringify(data any) string {
	if s, ok := scalarString(data); ok {
		return s
	}
	if data == nil {
		return ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(b)
}

// elements returns the items of an array, or the field values of an object in key order.
func elements(data any) []any {
	switch d := data.(type) {
	case []any:
		return d
	case map[string]any:
		out := make([]any, 0, len(d))
		for _, k := range slices.Sorted(maps.Keys(d)) {
			out = append(out, d[k])
		}
		return out
	}
	return nil
}

func stringifyAll(items []any, prefix string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, prefix+stringify(item))
	}
	return out
}

// formatAmount renders an amount: strings verbatim, numbers through decimal.
func formatAmount(v any) (string, bool) {
	switch a := v.(type) {
	case string:
		return a, a != ""
	case float64:
		return decimal.NewFromFloat(a).String(), true
	case json.Number:
		n, err := decimal.NewFromString(a.String())
		if err != nil {
			return a.String(), a.String() != ""
		}
		return n.String(), true
	}
	return "", false
}

// composite renders {amount, unit} and {amount, currency} objects as "amount suffix".
func composite(data any, suffixes ...string) (string, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", false
	}
	amount, ok := formatAmount(m["amount"])
	if !ok {
		return "", false
	}
	for _, field := range suffixes {
		if s, ok := m[field].(string); ok && s != "" {
			return amount + " " + s, true
		}
	}
	return "", false
}

// pricePairs collects "amount currency" pairs from an array of prices or a
// map keyed by currency.
func pricePairs(data any) []string {
	var pairs []string
	for _, item := range elements(data) {
		if pair, ok := composite(item, "currency"); ok {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}
