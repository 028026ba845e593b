package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"price-comparator-api/internal/cache"
	"price-comparator-api/internal/models"
)

// OptimizeBasket finds, for every requested product, the store offering the
// lowest discounted price on date, then groups the winners into per-store
// baskets. Stores are evaluated in ascending id order and only a strictly
// lower price displaces the current best, so when two stores tie the
// lexicographically smallest store id wins. Products without a resolvable
// price anywhere are dropped from the result; an unknown product id is an
// error.
func (s *Service) OptimizeBasket(ctx context.Context, productIDs []string, date models.Date) ([]models.StoreBasket, error) {
	ctx, span := s.tracer.Start(ctx, "service.OptimizeBasket")
	defer span.End()

	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: product id list cannot be empty", ErrInvalidInput)
	}

	cacheKey := cache.Key("basket", strings.Join(sortedCopy(productIDs), ","), date.String())
	if baskets, ok := s.cachedBaskets(ctx, cacheKey); ok {
		return baskets, nil
	}

	stores, err := s.db.ListStores()
	if err != nil {
		return nil, err
	}
	storeNames := make(map[string]string, len(stores))
	for _, store := range stores {
		storeNames[store.ID] = store.Name
	}

	s.logger.Info().Strs("product_ids", productIDs).Str("date", date.String()).Msg("optimizing basket")

	type bestOffer struct {
		item    models.BasketItem
		storeID string
	}

	grouped := make(map[string][]models.BasketItem)
	for _, productID := range productIDs {
		product, ok, err := s.db.GetProduct(productID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}

		observations, err := s.db.ListPricesForProduct(productID)
		if err != nil {
			return nil, err
		}
		discounts, err := s.db.ListDiscountsForProduct(productID)
		if err != nil {
			return nil, err
		}

		var best *bestOffer
		for _, store := range stores {
			original, final, percentage, ok := discountedPriceAt(observations, discounts, store.ID, date)
			if !ok {
				continue
			}
			if best != nil && final.GreaterThanOrEqual(best.item.DiscountedPrice) {
				continue
			}
			best = &bestOffer{
				storeID: store.ID,
				item: models.BasketItem{
					ProductID:          product.ID,
					ProductName:        product.Name,
					OriginalPrice:      original,
					DiscountedPrice:    final,
					DiscountPercentage: percentage,
				},
			}
		}

		if best == nil {
			// Not sold anywhere on or before this date.
			s.logger.Debug().Str("product_id", productID).Msg("no resolvable price, dropping from basket")
			continue
		}
		grouped[best.storeID] = append(grouped[best.storeID], best.item)
	}

	storeIDs := make([]string, 0, len(grouped))
	for storeID := range grouped {
		storeIDs = append(storeIDs, storeID)
	}
	sort.Strings(storeIDs)

	baskets := make([]models.StoreBasket, 0, len(storeIDs))
	for _, storeID := range storeIDs {
		items := grouped[storeID]
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.DiscountedPrice)
		}
		baskets = append(baskets, models.StoreBasket{
			StoreID:   storeID,
			StoreName: storeNames[storeID],
			Items:     items,
			Total:     total,
		})
	}

	s.storeBaskets(ctx, cacheKey, baskets)
	if s.events != nil {
		s.events.PublishBasketOptimized(ctx, productIDs, date, baskets)
	}

	return baskets, nil
}

func (s *Service) cachedBaskets(ctx context.Context, key string) ([]models.StoreBasket, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var baskets []models.StoreBasket
	if err := json.Unmarshal(data, &baskets); err != nil {
		return nil, false
	}
	return baskets, true
}

func (s *Service) storeBaskets(ctx context.Context, key string, baskets []models.StoreBasket) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(baskets)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache basket response")
	}
}
