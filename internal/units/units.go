// Package units models package measurement units and conversions between them.
// Prices can only be compared per unit when the units belong to the same
// measurement category; cross-category conversions are rejected, never guessed.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit is a package measurement unit as it appears in the source data.
// Countable units keep the Romanian abbreviations used by the store feeds.
type Unit string

const (
	Grams       Unit = "g"
	Kilograms   Unit = "kg"
	Milliliters Unit = "ml"
	Liters      Unit = "l"
	Pieces      Unit = "buc"
	Rolls       Unit = "role"
)

// Category groups units that measure the same kind of quantity.
type Category int

const (
	Weight Category = iota
	Volume
	Countable
)

func (c Category) String() string {
	switch c {
	case Weight:
		return "weight"
	case Volume:
		return "volume"
	case Countable:
		return "countable"
	}
	return "unknown"
}

var categories = map[Unit]Category{
	Grams:       Weight,
	Kilograms:   Weight,
	Milliliters: Volume,
	Liters:      Volume,
	Pieces:      Countable,
	Rolls:       Countable,
}

// Category returns the measurement category of the unit.
func (u Unit) Category() (Category, bool) {
	c, ok := categories[u]
	return c, ok
}

// Parse maps a unit abbreviation to a Unit, case-insensitively.
func Parse(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categories[u]; !ok {
		return "", fmt.Errorf("unknown unit abbreviation: %q", s)
	}
	return u, nil
}

// ErrUnsupportedConversion is returned for unit pairs that cannot be
// converted into each other.
var ErrUnsupportedConversion = errors.New("unsupported unit conversion")

// ErrNonPositiveQuantity is returned when a price-per-unit calculation is
// attempted with a zero or negative package quantity.
var ErrNonPositiveQuantity = errors.New("package quantity must be positive")

var thousand = decimal.NewFromInt(1000)

// Convert converts value between compatible units: kg<->g and l<->ml, plus
// the identity conversion. Divisions keep 6 fractional digits (half-up) so
// precision survives until the final price rounding.
func Convert(value decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from == to {
		return value, nil
	}

	switch from {
	case Kilograms:
		if to == Grams {
			return value.Mul(thousand), nil
		}
	case Grams:
		if to == Kilograms {
			return value.DivRound(thousand, 6), nil
		}
	case Liters:
		if to == Milliliters {
			return value.Mul(thousand), nil
		}
	case Milliliters:
		if to == Liters {
			return value.DivRound(thousand, 6), nil
		}
	}

	return decimal.Decimal{}, fmt.Errorf("%w: from %s to %s", ErrUnsupportedConversion, from, to)
}

// PricePerUnit normalizes a package price to a price per single unit.
// The price is divided by the package quantity at 6 fractional digits
// (half-up), converted to target when one is given and differs from unit,
// and only then rounded to 2 decimals. Target selection therefore matters
// before rounding: 12.00 for 3 kg is 4.00 per kg but 0.00 per gram.
func PricePerUnit(price, quantity decimal.Decimal, unit, target Unit) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Decimal{}, ErrNonPositiveQuantity
	}

	perUnit := price.DivRound(quantity, 6)

	if target != "" && target != unit {
		// A price per kilogram is a price per 1000 grams, so the value
		// converts inversely to a quantity: per-kg -> per-g divides.
		converted, err := Convert(perUnit, target, unit)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: from %s to %s", ErrUnsupportedConversion, unit, target)
		}
		perUnit = converted
	}

	return perUnit.Round(2), nil
}
