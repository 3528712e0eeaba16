package pipeline

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/shopspring/decimal"
)

// PriceTableKey is the emission key of one product price of a price book
const PriceTableKey = "price-table"

type listPrice struct {
	Currency string `json:"currency"`
	Amount   any    `json:"amount"`
}

// PriceBookID returns the id of the list price book of a currency
func PriceBookID(currency string) string {
	return strings.ToLower(currency) + "-list-prices"
}

// PriceBooks pages the products listing and emits one list price book per
// currency and page, holding the first price entry of every product.
func (r *Runner) PriceBooks(ctx context.Context, sink pimsync.Sink) (*pimsync.JobReport, error) {
	t := r.track(StepPriceBooks)
	if err := r.attach(ctx); err != nil {
		return nil, err
	}
	code := r.cfg.Import.PriceAttribute

	books := map[string][]pimsync.Emission{}
	flush := func() {
		for _, currency := range slices.Sorted(maps.Keys(books)) {
			startEntity(sink, PriceBookID(currency))
			for _, em := range books[currency] {
				sink.Emit(em)
			}
		}
		clear(books)
	}

	pending := 0
	err := r.walkPages(ctx, pim.ProductsPath, r.cfg.Import.ProductSearch, func(raw json.RawMessage) error {
		product, err := decodeEntity(raw)
		if err != nil {
			return t.fail("", err)
		}
		values := product.Values[code]
		if len(values) == 0 {
			t.ok()
			return nil
		}
		prices, err := decodePrices(values[0].Data)
		if err != nil {
			return t.fail(product.Key(), err)
		}
		for _, p := range prices {
			books[p.Currency] = append(books[p.Currency], pimsync.Emission{
				Key:    PriceTableKey,
				Value:  product.Key(),
				Values: []string{formatPrice(p.Amount)},
			})
			pending++
		}
		t.ok()
		return nil
	}, func() {
		if pending > 0 {
			flush()
			pending = 0
		}
	})
	if err != nil {
		return nil, err
	}
	return r.done(t), nil
}

// decodePrices reads a price collection given as an array of prices or a
// map keyed by currency. Map entries are returned in currency order.
func decodePrices(data any) ([]listPrice, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var prices []listPrice
	if err := json.Unmarshal(raw, &prices); err == nil {
		return slices.DeleteFunc(prices, func(p listPrice) bool { return p.Currency == "" }), nil
	}
	var byCurrency map[string]listPrice
	if err := json.Unmarshal(raw, &byCurrency); err != nil {
		return nil, pimsync.NewSyncError(pimsync.ErrorTypeEntityProcessing, pimsync.ErrCodeTransformFailed, "unreadable price collection")
	}
	prices = make([]listPrice, 0, len(byCurrency))
	for _, key := range slices.Sorted(maps.Keys(byCurrency)) {
		if p := byCurrency[key]; p.Currency != "" {
			prices = append(prices, p)
		}
	}
	return prices, nil
}

// formatPrice renders an amount: strings verbatim, numbers as decimals and
// 0 when it is missing.
func formatPrice(amount any) string {
	switch a := amount.(type) {
	case string:
		if a != "" {
			return a
		}
	case float64:
		return decimal.NewFromFloat(a).String()
	}
	return "0"
}
