// Package alerts owns the in-memory price alert registry. The registry is
// the only mutable shared state in the engine; one mutex serializes every
// read and mutation so a trigger can never race a deactivation and two
// concurrent checks can never both report the same alert.
package alerts

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"price-comparator-api/internal/models"
)

// ErrNotFound is returned when an alert references an unknown product or store.
var ErrNotFound = errors.New("not found")

// ErrInvalidTarget is returned for non-positive target prices.
var ErrInvalidTarget = errors.New("target price must be positive")

// Catalog answers reference-existence questions for alert creation.
type Catalog interface {
	ProductExists(id string) (bool, error)
	StoreExists(id string) (bool, error)
}

// PriceSource resolves the current price of a product at a store as of a
// date. The boolean is false when no price is resolvable.
type PriceSource interface {
	CurrentPrice(productID, storeID string, date models.Date) (decimal.Decimal, bool, error)
}

// Registry is an injectable collection of price alerts. A fresh registry
// starts empty; alerts live only for the process lifetime.
type Registry struct {
	mu      sync.Mutex
	alerts  []*models.Alert
	catalog Catalog
	prices  PriceSource
}

// NewRegistry creates an empty registry bound to its collaborators.
func NewRegistry(catalog Catalog, prices PriceSource) *Registry {
	return &Registry{catalog: catalog, prices: prices}
}

// Create validates both references and inserts a new active alert.
func (r *Registry) Create(productID, storeID string, targetPrice decimal.Decimal) (models.Alert, error) {
	if !targetPrice.IsPositive() {
		return models.Alert{}, ErrInvalidTarget
	}

	ok, err := r.catalog.ProductExists(productID)
	if err != nil {
		return models.Alert{}, err
	}
	if !ok {
		return models.Alert{}, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}

	ok, err = r.catalog.StoreExists(storeID)
	if err != nil {
		return models.Alert{}, err
	}
	if !ok {
		return models.Alert{}, fmt.Errorf("%w: store %s", ErrNotFound, storeID)
	}

	alert := &models.Alert{
		ID:          uuid.New().String(),
		ProductID:   productID,
		StoreID:     storeID,
		TargetPrice: targetPrice,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()

	return *alert, nil
}

// ActiveAlerts returns copies of all currently active alerts.
func (r *Registry) ActiveAlerts() []models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := []models.Alert{}
	for _, alert := range r.alerts {
		if alert.Active {
			active = append(active, *alert)
		}
	}
	return active
}

// Deactivate turns an alert off. Deactivating an unknown or already
// inactive alert is a no-op.
func (r *Registry) Deactivate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, alert := range r.alerts {
		if alert.ID == id {
			alert.Active = false
			return
		}
	}
}

// CheckAll evaluates every active alert against the current price as of
// now: a resolvable price at or below the target triggers the alert, which
// deactivates it permanently. Unresolvable prices are skipped. The returned
// slice holds copies of the alerts triggered by this call.
func (r *Registry) CheckAll(now models.Date) ([]models.Alert, error) {
	return r.check(now, func(*models.Alert) bool { return true })
}

// CheckForProduct behaves like CheckAll restricted to one product.
func (r *Registry) CheckForProduct(productID string, now models.Date) ([]models.Alert, error) {
	return r.check(now, func(a *models.Alert) bool { return a.ProductID == productID })
}

// check holds the registry lock for the whole evaluation so two concurrent
// checks cannot both trigger the same alert.
func (r *Registry) check(now models.Date, match func(*models.Alert) bool) ([]models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	triggered := []models.Alert{}
	for _, alert := range r.alerts {
		if !alert.Active || !match(alert) {
			continue
		}

		price, ok, err := r.prices.CurrentPrice(alert.ProductID, alert.StoreID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if price.LessThanOrEqual(alert.TargetPrice) {
			alert.Active = false
			triggered = append(triggered, *alert)
		}
	}
	return triggered, nil
}
