package units

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"kg", Kilograms, false},
		{"KG", Kilograms, false},
		{" l ", Liters, false},
		{"buc", Pieces, false},
		{"role", Rolls, false},
		{"oz", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConvert_SameCategory(t *testing.T) {
	tests := []struct {
		value    string
		from, to Unit
		want     string
	}{
		{"2", Kilograms, Grams, "2000"},
		{"500", Grams, Kilograms, "0.5"},
		{"1.5", Liters, Milliliters, "1500"},
		{"250", Milliliters, Liters, "0.25"},
		{"3", Pieces, Pieces, "3"},
	}

	for _, tt := range tests {
		got, err := Convert(decimal.RequireFromString(tt.value), tt.from, tt.to)
		if err != nil {
			t.Errorf("Convert(%s, %s, %s): unexpected error: %v", tt.value, tt.from, tt.to, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Convert(%s, %s, %s) = %s, want %s", tt.value, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestConvert_UnsupportedPairs(t *testing.T) {
	pairs := []struct{ from, to Unit }{
		{Kilograms, Liters},
		{Grams, Milliliters},
		{Pieces, Rolls},
		{Liters, Grams},
	}

	for _, p := range pairs {
		_, err := Convert(decimal.NewFromInt(1), p.from, p.to)
		if !errors.Is(err, ErrUnsupportedConversion) {
			t.Errorf("Convert(1, %s, %s): expected ErrUnsupportedConversion, got %v", p.from, p.to, err)
		}
	}
}

func TestConvert_DivisionPrecision(t *testing.T) {
	// 1 g -> kg keeps 6 fractional digits before any later rounding.
	got, err := Convert(decimal.NewFromInt(1), Grams, Kilograms)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("Convert(1, g, kg) = %s, want 0.001", got)
	}
}

func TestPricePerUnit_NativeUnit(t *testing.T) {
	got, err := PricePerUnit(decimal.RequireFromString("12.00"), decimal.NewFromInt(3), Kilograms, "")
	if err != nil {
		t.Fatalf("PricePerUnit failed: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("4.00")) {
		t.Errorf("price per kg = %s, want 4.00", got)
	}
}

func TestPricePerUnit_TargetUnitSelectedBeforeRounding(t *testing.T) {
	// 12.00 for 3 kg is 4.00 per kg, but per gram it is 0.004 which rounds
	// to 0.00. The target unit must be applied before the final rounding.
	perGram, err := PricePerUnit(decimal.RequireFromString("12.00"), decimal.NewFromInt(3), Kilograms, Grams)
	if err != nil {
		t.Fatalf("PricePerUnit failed: %v", err)
	}
	if !perGram.Equal(decimal.Zero) {
		t.Errorf("price per g = %s, want 0.00", perGram)
	}

	perKilo, err := PricePerUnit(decimal.RequireFromString("0.02"), decimal.NewFromInt(500), Grams, Kilograms)
	if err != nil {
		t.Fatalf("PricePerUnit failed: %v", err)
	}
	if !perKilo.Equal(decimal.RequireFromString("0.04")) {
		t.Errorf("price per kg = %s, want 0.04", perKilo)
	}
}

func TestPricePerUnit_NonPositiveQuantity(t *testing.T) {
	for _, quantity := range []string{"0", "-1"} {
		_, err := PricePerUnit(decimal.NewFromInt(10), decimal.RequireFromString(quantity), Kilograms, "")
		if !errors.Is(err, ErrNonPositiveQuantity) {
			t.Errorf("quantity %s: expected ErrNonPositiveQuantity, got %v", quantity, err)
		}
	}
}

func TestPricePerUnit_CrossCategoryTarget(t *testing.T) {
	_, err := PricePerUnit(decimal.NewFromInt(10), decimal.NewFromInt(1), Kilograms, Liters)
	if !errors.Is(err, ErrUnsupportedConversion) {
		t.Errorf("expected ErrUnsupportedConversion, got %v", err)
	}
}
