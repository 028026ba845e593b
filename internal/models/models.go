package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"price-comparator-api/internal/units"
)

// DefaultCurrency is assumed when a price feed omits the currency column.
const DefaultCurrency = "RON"

// Product is an immutable catalog entry. Prices and discounts reference it
// by id; the package quantity and unit describe one retail package.
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Brand           string          `json:"brand"`
	PackageQuantity decimal.Decimal `json:"package_quantity"`
	PackageUnit     units.Unit      `json:"package_unit"`
}

// Store is an immutable reference entity.
type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PriceObservation records the price of a product at a store as observed on
// a specific date. Observations for one (product, store) pair form a time
// series; the newest observation on or before a query date is authoritative.
type PriceObservation struct {
	ProductID string          `json:"product_id"`
	StoreID   string          `json:"store_id"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	EntryDate Date            `json:"entry_date"`
}

// Discount is a percentage reduction valid over an inclusive date window.
// EntryDate is the date the discount was recorded, not when it takes effect.
type Discount struct {
	ID         int64           `json:"id"`
	ProductID  string          `json:"product_id"`
	StoreID    string          `json:"store_id"`
	Percentage decimal.Decimal `json:"percentage"`
	FromDate   Date            `json:"from_date"`
	ToDate     Date            `json:"to_date"`
	EntryDate  Date            `json:"entry_date"`
}

// Alert is a user price target for a product at a store. Alerts live only in
// process memory and are deactivated either explicitly or by triggering.
type Alert struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	StoreID     string          `json:"store_id"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BasketItem is one optimized line of a store basket.
type BasketItem struct {
	ProductID          string          `json:"product_id"`
	ProductName        string          `json:"product_name"`
	OriginalPrice      decimal.Decimal `json:"original_price"`
	DiscountedPrice    decimal.Decimal `json:"discounted_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

// StoreBasket groups the basket products won by a single store.
type StoreBasket struct {
	StoreID   string          `json:"store_id"`
	StoreName string          `json:"store_name"`
	Items     []BasketItem    `json:"items"`
	Total     decimal.Decimal `json:"total"`
}

// OptimizeBasketRequest is the payload of POST /basket/optimize. Date is
// optional and defaults to the current UTC day.
type OptimizeBasketRequest struct {
	ProductIDs []string `json:"product_ids"`
	Date       string   `json:"date,omitempty"`
}

// PriceHistoryFilter selects the observations a price history is built from.
// ProductName is required; the remaining fields narrow the result.
type PriceHistoryFilter struct {
	ProductName string `json:"product_name"`
	StoreName   string `json:"store_name,omitempty"`
	Category    string `json:"category,omitempty"`
	Brand       string `json:"brand,omitempty"`
	StartDate   *Date  `json:"start_date,omitempty"`
	EndDate     *Date  `json:"end_date,omitempty"`
}

// PriceSegment is a maximal date range during which both the base price and
// the discount status of a product at one store are constant. End dates are
// inclusive.
type PriceSegment struct {
	StartDate          Date            `json:"start_date"`
	EndDate            Date            `json:"end_date"`
	OriginalPrice      decimal.Decimal `json:"original_price"`
	FinalPrice         decimal.Decimal `json:"final_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

// StoreTimeline is the gapless sequence of price segments for one store.
type StoreTimeline struct {
	StoreID   string         `json:"store_id"`
	StoreName string         `json:"store_name"`
	Segments  []PriceSegment `json:"segments"`
}

// ProductTimeline is the per-store price history of a single product.
type ProductTimeline struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Stores      []StoreTimeline `json:"stores"`
}

// Recommendation is a cheaper same-category alternative to a product,
// normalized to a common unit.
type Recommendation struct {
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	Brand             string          `json:"brand"`
	StoreID           string          `json:"store_id"`
	BestPrice         decimal.Decimal `json:"best_price"`
	Unit              units.Unit      `json:"unit"`
	PackageQuantity   decimal.Decimal `json:"package_quantity"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	SavingsPercentage decimal.Decimal `json:"savings_percentage"`
}

// CreateAlertRequest is the payload of POST /alerts.
type CreateAlertRequest struct {
	ProductID   string          `json:"product_id"`
	StoreID     string          `json:"store_id"`
	TargetPrice decimal.Decimal `json:"target_price"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

const dateLayout = "2006-01-02"

// Date is a calendar day without a time component, rendered as 2006-01-02
// in JSON, CSV and the database. The zero Date is treated as absent.
type Date struct {
	time.Time
}

// NewDate builds a Date at UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a 2006-01-02 string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// Today is the current day in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

// MarshalText implements encoding.TextMarshaler, which also drives the JSON
// and CSV representations.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input leaves the
// zero Date in place so optional fields stay optional.
func (d *Date) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MinDate returns the earlier of two dates.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxDate returns the later of two dates.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}
