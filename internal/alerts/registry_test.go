package alerts

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"price-comparator-api/internal/models"
)

type fakeCatalog struct {
	products map[string]bool
	stores   map[string]bool
}

func (f fakeCatalog) ProductExists(id string) (bool, error) { return f.products[id], nil }
func (f fakeCatalog) StoreExists(id string) (bool, error)   { return f.stores[id], nil }

type fakePrices struct {
	prices map[string]decimal.Decimal
}

func (f fakePrices) CurrentPrice(productID, storeID string, _ models.Date) (decimal.Decimal, bool, error) {
	price, ok := f.prices[productID+"@"+storeID]
	return price, ok, nil
}

func newTestRegistry(prices map[string]decimal.Decimal) *Registry {
	catalog := fakeCatalog{
		products: map[string]bool{"P001": true, "P002": true},
		stores:   map[string]bool{"lidl": true, "kaufland": true},
	}
	return NewRegistry(catalog, fakePrices{prices: prices})
}

func testDay() models.Date {
	return models.NewDate(2025, time.May, 5)
}

func TestCreate(t *testing.T) {
	registry := newTestRegistry(nil)

	alert, err := registry.Create("P001", "lidl", decimal.RequireFromString("4.50"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if alert.ID == "" {
		t.Error("expected a generated alert id")
	}
	if !alert.Active {
		t.Error("new alerts must start active")
	}
	if alert.CreatedAt.IsZero() {
		t.Error("expected a creation timestamp")
	}

	active := registry.ActiveAlerts()
	if len(active) != 1 || active[0].ID != alert.ID {
		t.Errorf("ActiveAlerts = %+v, want the created alert", active)
	}
}

func TestCreate_UnknownReferences(t *testing.T) {
	registry := newTestRegistry(nil)

	if _, err := registry.Create("missing", "lidl", decimal.NewFromInt(5)); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown product: expected ErrNotFound, got %v", err)
	}
	if _, err := registry.Create("P001", "missing", decimal.NewFromInt(5)); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown store: expected ErrNotFound, got %v", err)
	}
}

func TestCreate_NonPositiveTarget(t *testing.T) {
	registry := newTestRegistry(nil)

	for _, target := range []string{"0", "-1.50"} {
		_, err := registry.Create("P001", "lidl", decimal.RequireFromString(target))
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("target %s: expected ErrInvalidTarget, got %v", target, err)
		}
	}
}

func TestCheckAll_TriggersAtOrBelowTarget(t *testing.T) {
	registry := newTestRegistry(map[string]decimal.Decimal{
		"P001@lidl":     decimal.RequireFromString("5.00"),
		"P002@kaufland": decimal.RequireFromString("9.99"),
	})

	// Current price exactly equals the target: triggers.
	atTarget, err := registry.Create("P001", "lidl", decimal.RequireFromString("5.00"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Target below the current price: stays active.
	if _, err := registry.Create("P002", "kaufland", decimal.RequireFromString("8.00")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	triggered, err := registry.CheckAll(testDay())
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(triggered) != 1 || triggered[0].ID != atTarget.ID {
		t.Fatalf("triggered = %+v, want only the at-target alert", triggered)
	}
	if triggered[0].Active {
		t.Error("triggered alerts must be reported inactive")
	}

	// Triggering is one-way: a second pass finds nothing.
	triggered, err = registry.CheckAll(testDay())
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(triggered) != 0 {
		t.Errorf("second CheckAll re-triggered: %+v", triggered)
	}

	active := registry.ActiveAlerts()
	if len(active) != 1 || active[0].ProductID != "P002" {
		t.Errorf("ActiveAlerts = %+v, want only the P002 alert", active)
	}
}

func TestCheckAll_SkipsUnresolvablePrices(t *testing.T) {
	registry := newTestRegistry(nil)

	if _, err := registry.Create("P001", "lidl", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	triggered, err := registry.CheckAll(testDay())
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(triggered) != 0 {
		t.Errorf("unresolvable price must not trigger, got %+v", triggered)
	}
	if len(registry.ActiveAlerts()) != 1 {
		t.Error("alert with unresolvable price must stay active")
	}
}

func TestCheckForProduct(t *testing.T) {
	registry := newTestRegistry(map[string]decimal.Decimal{
		"P001@lidl":     decimal.NewFromInt(1),
		"P002@kaufland": decimal.NewFromInt(1),
	})

	if _, err := registry.Create("P001", "lidl", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := registry.Create("P002", "kaufland", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	triggered, err := registry.CheckForProduct("P001", testDay())
	if err != nil {
		t.Fatalf("CheckForProduct failed: %v", err)
	}
	if len(triggered) != 1 || triggered[0].ProductID != "P001" {
		t.Fatalf("triggered = %+v, want only P001", triggered)
	}

	// The P002 alert was untouched and still triggers on a full check.
	triggered, err = registry.CheckAll(testDay())
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(triggered) != 1 || triggered[0].ProductID != "P002" {
		t.Errorf("triggered = %+v, want only P002", triggered)
	}
}

func TestDeactivate(t *testing.T) {
	registry := newTestRegistry(map[string]decimal.Decimal{
		"P001@lidl": decimal.NewFromInt(1),
	})

	alert, err := registry.Create("P001", "lidl", decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	registry.Deactivate(alert.ID)
	if len(registry.ActiveAlerts()) != 0 {
		t.Error("expected no active alerts after deactivation")
	}

	// Deactivated alerts never trigger.
	triggered, err := registry.CheckAll(testDay())
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(triggered) != 0 {
		t.Errorf("deactivated alert triggered: %+v", triggered)
	}

	// Idempotent, including for unknown ids.
	registry.Deactivate(alert.ID)
	registry.Deactivate("no-such-alert")
}
