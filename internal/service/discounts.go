package service

import (
	"context"
	"sort"

	"price-comparator-api/internal/models"
	"price-comparator-api/internal/pricing"
)

// Discounts returns every recorded discount.
func (s *Service) Discounts(ctx context.Context) ([]models.Discount, error) {
	_, span := s.tracer.Start(ctx, "service.Discounts")
	defer span.End()

	return s.db.ListDiscounts()
}

// ActiveDiscounts returns all discounts whose window contains date.
func (s *Service) ActiveDiscounts(ctx context.Context, date models.Date) ([]models.Discount, error) {
	_, span := s.tracer.Start(ctx, "service.ActiveDiscounts")
	defer span.End()

	discounts, err := s.db.ListDiscounts()
	if err != nil {
		return nil, err
	}

	active := []models.Discount{}
	for _, d := range discounts {
		if pricing.IsDiscountActive(d, date) {
			active = append(active, d)
		}
	}
	return active, nil
}

// BestDiscounts returns, per product, the highest discount percentage
// active on date, sorted by percentage descending.
func (s *Service) BestDiscounts(ctx context.Context, date models.Date) ([]models.Discount, error) {
	_, span := s.tracer.Start(ctx, "service.BestDiscounts")
	defer span.End()

	active, err := s.ActiveDiscounts(ctx, date)
	if err != nil {
		return nil, err
	}

	bestPerProduct := make(map[string]models.Discount)
	for _, d := range active {
		current, ok := bestPerProduct[d.ProductID]
		if !ok || d.Percentage.GreaterThan(current.Percentage) {
			bestPerProduct[d.ProductID] = d
		}
	}

	best := make([]models.Discount, 0, len(bestPerProduct))
	for _, d := range bestPerProduct {
		best = append(best, d)
	}
	sort.Slice(best, func(i, j int) bool {
		if cmp := best[i].Percentage.Cmp(best[j].Percentage); cmp != 0 {
			return cmp > 0
		}
		return best[i].ProductID < best[j].ProductID
	})
	return best, nil
}

// NewDiscounts returns discounts recorded up to date that started no
// earlier than the previous day and are active on date: the "newly added"
// discounts of the last 24 hours.
func (s *Service) NewDiscounts(ctx context.Context, date models.Date) ([]models.Discount, error) {
	_, span := s.tracer.Start(ctx, "service.NewDiscounts")
	defer span.End()

	discounts, err := s.db.ListDiscounts()
	if err != nil {
		return nil, err
	}

	yesterday := date.AddDays(-1)
	recent := []models.Discount{}
	for _, d := range discounts {
		if d.EntryDate.After(date) {
			continue
		}
		if d.FromDate.Before(yesterday) {
			continue
		}
		if !pricing.IsDiscountActive(d, date) {
			continue
		}
		recent = append(recent, d)
	}
	return recent, nil
}
