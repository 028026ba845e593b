// Package pricing holds the pure resolution primitives the rest of the
// engine is built on: temporal discount predicates, discount application
// and price resolution over dated observations. Every function takes its
// reference date as an explicit parameter; nothing here reads a clock.
package pricing

import (
	"github.com/shopspring/decimal"

	"price-comparator-api/internal/models"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// IsDiscountActive reports whether date falls inside the discount's
// inclusive [FromDate, ToDate] window.
func IsDiscountActive(d models.Discount, date models.Date) bool {
	return !date.Before(d.FromDate) && !date.After(d.ToDate)
}

// IsDiscountUpcoming reports whether the discount starts after date.
func IsDiscountUpcoming(d models.Discount, date models.Date) bool {
	return date.Before(d.FromDate)
}

// IsDiscountExpired reports whether the discount ended before date.
func IsDiscountExpired(d models.Discount, date models.Date) bool {
	return date.After(d.ToDate)
}

// ApplyDiscount applies a percentage discount to a price. The percentage is
// first turned into a two-decimal multiplier (half-up) and the final price
// is rounded to two decimals (half-up) afterwards. The two rounding stages
// are deliberate: collapsing them shifts cent-level results.
func ApplyDiscount(price, percentage decimal.Decimal) decimal.Decimal {
	multiplier := one.Sub(percentage.DivRound(hundred, 2))
	return price.Mul(multiplier).Round(2)
}

// ResolvePrice picks the authoritative price of a product at a store as of
// date: the observation with the newest entry date not after date. When two
// observations share that entry date the one seen later in the slice wins.
// The boolean is false when the product has no qualifying observation at
// the store.
func ResolvePrice(observations []models.PriceObservation, storeID string, date models.Date) (decimal.Decimal, bool) {
	var (
		best  decimal.Decimal
		entry models.Date
		found bool
	)
	for _, obs := range observations {
		if obs.StoreID != storeID || obs.EntryDate.After(date) {
			continue
		}
		if !found || !obs.EntryDate.Before(entry) {
			best = obs.Price
			entry = obs.EntryDate
			found = true
		}
	}
	return best, found
}

// ActiveDiscount selects the discount to apply for a product at a store on
// date. When several discounts are active at once the highest percentage
// wins; remaining ties fall back to the earliest from-date, then the
// smallest id, so the choice is deterministic regardless of input order.
func ActiveDiscount(discounts []models.Discount, storeID string, date models.Date) (models.Discount, bool) {
	var (
		best  models.Discount
		found bool
	)
	for _, d := range discounts {
		if d.StoreID != storeID || !IsDiscountActive(d, date) {
			continue
		}
		if !found || betterDiscount(d, best) {
			best = d
			found = true
		}
	}
	return best, found
}

func betterDiscount(a, b models.Discount) bool {
	if cmp := a.Percentage.Cmp(b.Percentage); cmp != 0 {
		return cmp > 0
	}
	if !a.FromDate.Equal(b.FromDate) {
		return a.FromDate.Before(b.FromDate)
	}
	return a.ID < b.ID
}
