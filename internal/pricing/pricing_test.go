package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"price-comparator-api/internal/models"
)

func date(day int) models.Date {
	return models.NewDate(2025, time.May, day)
}

func TestDiscountPredicates_WindowBoundaries(t *testing.T) {
	d := models.Discount{FromDate: date(5), ToDate: date(10)}

	tests := []struct {
		day                       int
		active, upcoming, expired bool
	}{
		{4, false, true, false},
		{5, true, false, false},
		{7, true, false, false},
		{10, true, false, false},
		{11, false, false, true},
	}

	for _, tt := range tests {
		on := date(tt.day)
		if got := IsDiscountActive(d, on); got != tt.active {
			t.Errorf("day %d: IsDiscountActive = %v, want %v", tt.day, got, tt.active)
		}
		if got := IsDiscountUpcoming(d, on); got != tt.upcoming {
			t.Errorf("day %d: IsDiscountUpcoming = %v, want %v", tt.day, got, tt.upcoming)
		}
		if got := IsDiscountExpired(d, on); got != tt.expired {
			t.Errorf("day %d: IsDiscountExpired = %v, want %v", tt.day, got, tt.expired)
		}
	}
}

func TestApplyDiscount(t *testing.T) {
	tests := []struct {
		price      string
		percentage string
		want       string
	}{
		{"10.00", "0", "10.00"},
		{"10.00", "10", "9.00"},
		{"9.00", "20", "7.20"},
		{"10.00", "100", "0.00"},
		{"3.33", "25", "2.50"},
	}

	for _, tt := range tests {
		got := ApplyDiscount(decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.percentage))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ApplyDiscount(%s, %s) = %s, want %s", tt.price, tt.percentage, got, tt.want)
		}
	}
}

func TestApplyDiscount_TwoStageRounding(t *testing.T) {
	// 12.5% becomes the multiplier 1 - 0.13 = 0.87 because the percentage
	// division is rounded to two decimals before multiplying: 10.00 yields
	// 8.70, not the 8.75 a single full-precision rounding would give.
	got := ApplyDiscount(decimal.RequireFromString("10.00"), decimal.RequireFromString("12.5"))
	if !got.Equal(decimal.RequireFromString("8.70")) {
		t.Errorf("ApplyDiscount(10.00, 12.5) = %s, want 8.70", got)
	}
}

func TestResolvePrice_NewestObservationWins(t *testing.T) {
	observations := []models.PriceObservation{
		{StoreID: "lidl", Price: decimal.RequireFromString("9.50"), EntryDate: date(1)},
		{StoreID: "lidl", Price: decimal.RequireFromString("10.00"), EntryDate: date(5)},
		{StoreID: "kaufland", Price: decimal.RequireFromString("8.00"), EntryDate: date(6)},
		{StoreID: "lidl", Price: decimal.RequireFromString("11.00"), EntryDate: date(9)},
	}

	price, ok := ResolvePrice(observations, "lidl", date(7))
	if !ok {
		t.Fatal("expected a resolvable price")
	}
	if !price.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("resolved price = %s, want 10.00", price)
	}

	// An observation dated after the query date is never considered.
	price, ok = ResolvePrice(observations, "lidl", date(2))
	if !ok || !price.Equal(decimal.RequireFromString("9.50")) {
		t.Errorf("resolved price = %s (ok=%v), want 9.50", price, ok)
	}
}

func TestResolvePrice_NoQualifyingObservation(t *testing.T) {
	observations := []models.PriceObservation{
		{StoreID: "lidl", Price: decimal.NewFromInt(10), EntryDate: date(5)},
	}

	if _, ok := ResolvePrice(observations, "lidl", date(4)); ok {
		t.Error("expected no price before the first observation")
	}
	if _, ok := ResolvePrice(observations, "kaufland", date(5)); ok {
		t.Error("expected no price at a store without observations")
	}
	if _, ok := ResolvePrice(nil, "lidl", date(5)); ok {
		t.Error("expected no price from an empty series")
	}
}

func TestResolvePrice_EqualEntryDatesLastWins(t *testing.T) {
	observations := []models.PriceObservation{
		{StoreID: "lidl", Price: decimal.NewFromInt(10), EntryDate: date(5)},
		{StoreID: "lidl", Price: decimal.NewFromInt(12), EntryDate: date(5)},
	}

	price, ok := ResolvePrice(observations, "lidl", date(5))
	if !ok || !price.Equal(decimal.NewFromInt(12)) {
		t.Errorf("resolved price = %s (ok=%v), want 12", price, ok)
	}
}

func TestActiveDiscount_HighestPercentageWins(t *testing.T) {
	discounts := []models.Discount{
		{ID: 1, StoreID: "lidl", Percentage: decimal.NewFromInt(10), FromDate: date(1), ToDate: date(10)},
		{ID: 2, StoreID: "lidl", Percentage: decimal.NewFromInt(25), FromDate: date(3), ToDate: date(8)},
		{ID: 3, StoreID: "kaufland", Percentage: decimal.NewFromInt(50), FromDate: date(1), ToDate: date(10)},
	}

	d, ok := ActiveDiscount(discounts, "lidl", date(5))
	if !ok {
		t.Fatal("expected an active discount")
	}
	if d.ID != 2 {
		t.Errorf("selected discount %d, want 2", d.ID)
	}

	// Outside the bigger discount's window the smaller one applies.
	d, ok = ActiveDiscount(discounts, "lidl", date(9))
	if !ok || d.ID != 1 {
		t.Errorf("selected discount %d (ok=%v), want 1", d.ID, ok)
	}
}

func TestActiveDiscount_TieBreaks(t *testing.T) {
	samePct := decimal.NewFromInt(20)

	// Equal percentage: the earlier from-date wins.
	discounts := []models.Discount{
		{ID: 1, StoreID: "lidl", Percentage: samePct, FromDate: date(3), ToDate: date(10)},
		{ID: 2, StoreID: "lidl", Percentage: samePct, FromDate: date(1), ToDate: date(10)},
	}
	d, ok := ActiveDiscount(discounts, "lidl", date(5))
	if !ok || d.ID != 2 {
		t.Errorf("selected discount %d (ok=%v), want 2", d.ID, ok)
	}

	// Equal percentage and from-date: the smallest id wins, regardless of
	// input order.
	discounts = []models.Discount{
		{ID: 7, StoreID: "lidl", Percentage: samePct, FromDate: date(1), ToDate: date(10)},
		{ID: 4, StoreID: "lidl", Percentage: samePct, FromDate: date(1), ToDate: date(10)},
	}
	d, ok = ActiveDiscount(discounts, "lidl", date(5))
	if !ok || d.ID != 4 {
		t.Errorf("selected discount %d (ok=%v), want 4", d.ID, ok)
	}
}

func TestActiveDiscount_NoneActive(t *testing.T) {
	discounts := []models.Discount{
		{ID: 1, StoreID: "lidl", Percentage: decimal.NewFromInt(10), FromDate: date(6), ToDate: date(8)},
	}

	if _, ok := ActiveDiscount(discounts, "lidl", date(5)); ok {
		t.Error("expected no discount before the window opens")
	}
	if _, ok := ActiveDiscount(discounts, "lidl", date(9)); ok {
		t.Error("expected no discount after the window closes")
	}
}
