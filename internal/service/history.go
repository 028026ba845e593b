package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"price-comparator-api/internal/models"
	"price-comparator-api/internal/pricing"
)

// GetPriceHistory reconstructs, per store, the gap-free sequence of price
// segments for the product named in the filter. Each observation's price is
// valid from its entry date through the day before the next observation;
// within that window segments close whenever the selected active discount
// changes, including when a discount starts mid-window. A nil result (with
// nil error) means no observations matched the filter.
func (s *Service) GetPriceHistory(ctx context.Context, filter models.PriceHistoryFilter) ([]models.ProductTimeline, error) {
	_, span := s.tracer.Start(ctx, "service.GetPriceHistory")
	defer span.End()

	if filter.ProductName == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}

	products, err := s.db.ListProductsByName(filter.ProductName)
	if err != nil {
		return nil, err
	}

	stores, err := s.db.ListStores()
	if err != nil {
		return nil, err
	}
	storeNames := make(map[string]string, len(stores))
	var filterStoreID string
	for _, store := range stores {
		storeNames[store.ID] = store.Name
		if filter.StoreName != "" && store.Name == filter.StoreName {
			filterStoreID = store.ID
		}
	}

	var timelines []models.ProductTimeline
	for _, product := range products {
		if filter.Category != "" && product.Category != filter.Category {
			continue
		}
		if filter.Brand != "" && product.Brand != filter.Brand {
			continue
		}

		observations, err := s.db.ListPricesForProduct(product.ID)
		if err != nil {
			return nil, err
		}
		discounts, err := s.db.ListDiscountsForProduct(product.ID)
		if err != nil {
			return nil, err
		}

		byStore := make(map[string][]models.PriceObservation)
		for _, obs := range observations {
			if filter.StoreName != "" && obs.StoreID != filterStoreID {
				continue
			}
			byStore[obs.StoreID] = append(byStore[obs.StoreID], obs)
		}
		if len(byStore) == 0 {
			continue
		}

		storeIDs := make([]string, 0, len(byStore))
		for storeID := range byStore {
			storeIDs = append(storeIDs, storeID)
		}
		sort.Strings(storeIDs)

		timeline := models.ProductTimeline{
			ProductID:   product.ID,
			ProductName: product.Name,
			Brand:       product.Brand,
			Category:    product.Category,
		}
		for _, storeID := range storeIDs {
			segments := buildStoreTimeline(byStore[storeID], discounts, storeID, filter.StartDate, filter.EndDate)
			if len(segments) == 0 {
				continue
			}
			timeline.Stores = append(timeline.Stores, models.StoreTimeline{
				StoreID:   storeID,
				StoreName: storeNames[storeID],
				Segments:  segments,
			})
		}
		if len(timeline.Stores) > 0 {
			timelines = append(timelines, timeline)
		}
	}

	return timelines, nil
}

// buildStoreTimeline emits the contiguous price segments for one store.
// Observations must all belong to storeID.
func buildStoreTimeline(
	observations []models.PriceObservation,
	discounts []models.Discount,
	storeID string,
	startOverride, endOverride *models.Date,
) []models.PriceSegment {
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].EntryDate.Before(observations[j].EntryDate)
	})

	start := observations[0].EntryDate
	if startOverride != nil {
		start = models.MaxDate(start, *startOverride)
	}
	end := observations[len(observations)-1].EntryDate
	if endOverride != nil {
		end = *endOverride
	}
	if end.Before(start) {
		return nil
	}

	var segments []models.PriceSegment
	for i, obs := range observations {
		windowStart := models.MaxDate(obs.EntryDate, start)
		windowEnd := end
		if i+1 < len(observations) {
			windowEnd = models.MinDate(windowEnd, observations[i+1].EntryDate.AddDays(-1))
		}
		if windowStart.After(windowEnd) {
			continue
		}

		segStart := windowStart
		for !segStart.After(windowEnd) {
			selected, active := pricing.ActiveDiscount(discounts, storeID, segStart)
			segEnd := windowEnd

			// Close the segment at the first day where the discount
			// selection would differ. Only discount window edges can
			// change the selection, so those are the only days checked.
			for _, boundary := range discountBoundaries(discounts, storeID, segStart, segEnd) {
				next, nextActive := pricing.ActiveDiscount(discounts, storeID, boundary)
				if nextActive != active || (active && next.ID != selected.ID) {
					segEnd = boundary.AddDays(-1)
					break
				}
			}

			segment := models.PriceSegment{
				StartDate:     segStart,
				EndDate:       segEnd,
				OriginalPrice: obs.Price,
			}
			if active {
				segment.FinalPrice = pricing.ApplyDiscount(obs.Price, selected.Percentage)
				segment.DiscountPercentage = selected.Percentage
			} else {
				segment.FinalPrice = obs.Price
				segment.DiscountPercentage = decimal.Zero
			}
			segments = append(segments, segment)

			segStart = segEnd.AddDays(1)
		}
	}

	return segments
}

// discountBoundaries lists, in ascending order, the days in (after, upTo]
// on which the set of active discounts for the store can change: each
// discount's from-date and the day after its to-date.
func discountBoundaries(discounts []models.Discount, storeID string, after, upTo models.Date) []models.Date {
	var boundaries []models.Date
	add := func(d models.Date) {
		if d.After(after) && !d.After(upTo) {
			boundaries = append(boundaries, d)
		}
	}
	for _, d := range discounts {
		if d.StoreID != storeID {
			continue
		}
		add(d.FromDate)
		add(d.ToDate.AddDays(1))
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })
	return boundaries
}
