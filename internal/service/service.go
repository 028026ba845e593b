// Package service implements the price and discount resolution engine:
// basket optimization, price-history timelines, cheaper-alternative
// recommendations and the catalog/discount queries backing the API.
//
// Every operation is a deterministic computation over record slices fetched
// from the persistence collaborator; the reference date is always an
// explicit parameter. Absent data (a store without a price, a product with
// no observations) is absorbed locally and never aborts a request.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"price-comparator-api/internal/cache"
	"price-comparator-api/internal/database"
	"price-comparator-api/internal/events"
	"price-comparator-api/internal/models"
	"price-comparator-api/internal/pricing"
)

var (
	// ErrInvalidInput marks malformed or empty caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing product or store reference.
	ErrNotFound = errors.New("not found")
)

// Service provides the business logic of the price comparator.
type Service struct {
	db       *database.DB
	logger   zerolog.Logger
	tracer   trace.Tracer
	cache    cache.Cache
	cacheTTL time.Duration
	events   *events.Manager
}

// NewService creates a new service instance.
func NewService(db *database.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
		tracer: otel.Tracer("price-comparator-api"),
	}
}

// UseCache enables response caching for basket and history requests.
func (s *Service) UseCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// UseEvents enables event publishing.
func (s *Service) UseEvents(m *events.Manager) {
	s.events = m
}

// Products returns the whole catalog.
func (s *Service) Products(ctx context.Context) ([]models.Product, error) {
	_, span := s.tracer.Start(ctx, "service.Products")
	defer span.End()

	return s.db.ListProducts()
}

// ProductByID returns a single product or ErrNotFound.
func (s *Service) ProductByID(ctx context.Context, id string) (models.Product, error) {
	_, span := s.tracer.Start(ctx, "service.ProductByID")
	defer span.End()

	if id == "" {
		return models.Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	product, ok, err := s.db.GetProduct(id)
	if err != nil {
		return models.Product{}, err
	}
	if !ok {
		return models.Product{}, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return product, nil
}

// ProductsByCategory returns all products in a category.
func (s *Service) ProductsByCategory(ctx context.Context, category string) ([]models.Product, error) {
	_, span := s.tracer.Start(ctx, "service.ProductsByCategory")
	defer span.End()

	if category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	return s.db.ListProductsByCategory(category)
}

// Stores returns all stores ordered by id.
func (s *Service) Stores(ctx context.Context) ([]models.Store, error) {
	_, span := s.tracer.Start(ctx, "service.Stores")
	defer span.End()

	return s.db.ListStores()
}

// ProductExists reports whether a product id is known. It backs the alert
// registry's reference validation.
func (s *Service) ProductExists(id string) (bool, error) {
	_, ok, err := s.db.GetProduct(id)
	return ok, err
}

// StoreExists reports whether a store id is known.
func (s *Service) StoreExists(id string) (bool, error) {
	_, ok, err := s.db.GetStore(id)
	return ok, err
}

// CurrentPrice resolves the price of a product at a store as of date. The
// boolean is false when the product has no observation at the store on or
// before that date.
func (s *Service) CurrentPrice(productID, storeID string, date models.Date) (decimal.Decimal, bool, error) {
	observations, err := s.db.ListPricesForProduct(productID)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	price, ok := pricing.ResolvePrice(observations, storeID, date)
	return price, ok, nil
}

// discountedPriceAt resolves the price of a product at a store on date and
// applies the active discount, if any. Used by basket optimization and
// recommendations, which share the same notion of "effective price".
func discountedPriceAt(
	observations []models.PriceObservation,
	discounts []models.Discount,
	storeID string,
	date models.Date,
) (original, final, percentage decimal.Decimal, ok bool) {
	original, ok = pricing.ResolvePrice(observations, storeID, date)
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, false
	}

	final = original
	if d, active := pricing.ActiveDiscount(discounts, storeID, date); active {
		final = pricing.ApplyDiscount(original, d.Percentage)
		percentage = d.Percentage
	}
	return original, final, percentage, true
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
