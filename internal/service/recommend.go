package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"price-comparator-api/internal/models"
	"price-comparator-api/internal/units"
)

var hundred = decimal.NewFromInt(100)

// GetCheaperAlternatives finds products in the same category and with the
// same package unit as productID whose discount-applied price per unit on
// date is strictly lower than the original's. Prices are normalized to
// target when given, otherwise to the product's native unit; cross-category
// units are never converted for comparison, they are excluded by the
// same-unit candidate filter. An original with no resolvable price anywhere
// yields an empty list.
func (s *Service) GetCheaperAlternatives(ctx context.Context, productID string, date models.Date, target units.Unit) ([]models.Recommendation, error) {
	_, span := s.tracer.Start(ctx, "service.GetCheaperAlternatives")
	defer span.End()

	product, ok, err := s.db.GetProduct(productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}

	stores, err := s.db.ListStores()
	if err != nil {
		return nil, err
	}

	bestPrice, _, ok, err := s.bestOffer(product.ID, stores, date)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The original cannot be priced anywhere, so there is nothing to
		// compare against.
		return []models.Recommendation{}, nil
	}

	originalPerUnit, err := units.PricePerUnit(bestPrice, product.PackageQuantity, product.PackageUnit, target)
	if err != nil {
		return nil, err
	}

	candidates, err := s.db.ListProductsByCategory(product.Category)
	if err != nil {
		return nil, err
	}

	recommendations := []models.Recommendation{}
	for _, candidate := range candidates {
		if candidate.ID == product.ID || candidate.PackageUnit != product.PackageUnit {
			continue
		}

		candidateBest, storeID, ok, err := s.bestOffer(candidate.ID, stores, date)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		perUnit, err := units.PricePerUnit(candidateBest, candidate.PackageQuantity, candidate.PackageUnit, target)
		if err != nil {
			s.logger.Warn().Err(err).Str("product_id", candidate.ID).Msg("skipping candidate with bad package data")
			continue
		}
		if perUnit.GreaterThanOrEqual(originalPerUnit) {
			continue
		}

		savings := originalPerUnit.Sub(perUnit).
			DivRound(originalPerUnit, 4).
			Mul(hundred).
			Round(2)

		unit := candidate.PackageUnit
		quantity := candidate.PackageQuantity
		if target != "" && target != candidate.PackageUnit {
			unit = target
			if converted, err := units.Convert(candidate.PackageQuantity, candidate.PackageUnit, target); err == nil {
				quantity = converted
			}
		}

		recommendations = append(recommendations, models.Recommendation{
			ProductID:         candidate.ID,
			ProductName:       candidate.Name,
			Brand:             candidate.Brand,
			StoreID:           storeID,
			BestPrice:         candidateBest,
			Unit:              unit,
			PackageQuantity:   quantity,
			PricePerUnit:      perUnit,
			SavingsPercentage: savings,
		})
	}

	sort.Slice(recommendations, func(i, j int) bool {
		if cmp := recommendations[i].PricePerUnit.Cmp(recommendations[j].PricePerUnit); cmp != 0 {
			return cmp < 0
		}
		return recommendations[i].ProductID < recommendations[j].ProductID
	})

	return recommendations, nil
}

// bestOffer returns the lowest discount-applied price for a product across
// all stores on date, with the store it was found at. Stores are evaluated
// in ascending id order; ties keep the first store seen.
func (s *Service) bestOffer(productID string, stores []models.Store, date models.Date) (decimal.Decimal, string, bool, error) {
	observations, err := s.db.ListPricesForProduct(productID)
	if err != nil {
		return decimal.Decimal{}, "", false, err
	}
	discounts, err := s.db.ListDiscountsForProduct(productID)
	if err != nil {
		return decimal.Decimal{}, "", false, err
	}

	var (
		best    decimal.Decimal
		storeID string
		found   bool
	)
	for _, store := range stores {
		_, final, _, ok := discountedPriceAt(observations, discounts, store.ID, date)
		if !ok {
			continue
		}
		if !found || final.LessThan(best) {
			best = final
			storeID = store.ID
			found = true
		}
	}
	return best, storeID, found, nil
}
