package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockcore-system/internal/cache"
)

// Valuation computes unit cost and total value for the quantity on hand
// under a chosen costing method. It reads batches and ledger history and
// never mutates either.
type Valuation struct {
	store  Store
	cache  cache.Cache
	logger *zap.Logger
}

func NewValuation(store Store, c cache.Cache, logger *zap.Logger) *Valuation {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valuation{store: store, cache: c, logger: logger}
}

type BatchValuation struct {
	BatchID     string          `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Value       decimal.Decimal `json:"value"`
}

type ValuationResult struct {
	Method     ValuationMethod  `json:"method"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitCost   decimal.Decimal  `json:"unit_cost"`
	TotalValue decimal.Decimal  `json:"total_value"`
	Batches    []BatchValuation `json:"batches,omitempty"`
	AsOf       *time.Time       `json:"as_of,omitempty"`
}

// Valuate returns nil (and no error) when nothing is on hand: zero stock has
// no valuation to report.
func (s *Valuation) Valuate(ctx context.Context, key LevelKey, method ValuationMethod, asOf *time.Time) (*ValuationResult, error) {
	if !method.Valid() {
		return nil, InvalidStatef("unknown valuation method %q", method)
	}

	cacheKey := valuationCacheKey(key, method, asOf)
	var cached ValuationResult
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	level, err := s.store.Levels().Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !level.CurrentLevel.IsPositive() {
		return nil, nil
	}

	var result *ValuationResult
	switch method {
	case ValuationFIFO:
		result, err = s.valuateByBatchWalk(ctx, key, level.CurrentLevel, OrderFIFO, asOf)
	case ValuationLIFO:
		result, err = s.valuateByBatchWalk(ctx, key, level.CurrentLevel, OrderLIFO, asOf)
	case ValuationAverage:
		result, err = s.valuateAverage(ctx, key, level.CurrentLevel, asOf)
	case ValuationSpecific:
		result, err = s.valuateSpecific(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	result.Method = method
	result.AsOf = asOf

	s.cache.Set(ctx, cacheKey, result, cache.TTL_SHORT)
	return result, nil
}

// valuateByBatchWalk greedily consumes the on-hand quantity from batches in
// the given order, accumulating each slice at its batch cost.
func (s *Valuation) valuateByBatchWalk(ctx context.Context, key LevelKey, onHand decimal.Decimal, order BatchOrder, asOf *time.Time) (*ValuationResult, error) {
	batches, err := s.store.Batches().ListActive(ctx, key, order)
	if err != nil {
		return nil, err
	}

	remaining := onHand
	totalValue := decimal.Zero
	valued := decimal.Zero
	var slices []BatchValuation

	for _, batch := range batches {
		if remaining.IsZero() {
			break
		}
		if asOf != nil && batch.ReceivedDate.After(*asOf) {
			continue
		}
		take := decimal.Min(batch.CurrentQuantity, remaining)
		if !take.IsPositive() {
			continue
		}
		value := take.Mul(batch.UnitCost)
		slices = append(slices, BatchValuation{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Quantity:    take,
			UnitCost:    batch.UnitCost,
			Value:       value,
		})
		totalValue = totalValue.Add(value)
		valued = valued.Add(take)
		remaining = remaining.Sub(take)
	}

	unitCost := decimal.Zero
	if valued.IsPositive() {
		unitCost = totalValue.DivRound(valued, 4)
	}
	return &ValuationResult{
		Quantity:   valued,
		UnitCost:   unitCost,
		TotalValue: totalValue,
		Batches:    slices,
	}, nil
}

// valuateAverage replays inbound movements carrying a positive unit cost,
// weighted by quantity, up to asOf.
func (s *Valuation) valuateAverage(ctx context.Context, key LevelKey, onHand decimal.Decimal, asOf *time.Time) (*ValuationResult, error) {
	applied := MovementApplied
	filter := MovementFilter{
		ProductID:  &key.ProductID,
		LocationID: &key.LocationID,
		Variant:    &key.Variant,
		Status:     &applied,
		To:         asOf,
	}
	movements, _, err := s.store.Movements().Query(ctx, key.TenantID, filter, Page{})
	if err != nil {
		return nil, err
	}

	weighted := decimal.Zero
	totalQty := decimal.Zero
	for _, m := range movements {
		if m.MovementType.Direction() != 1 {
			continue
		}
		if !m.UnitCost.Valid || !m.UnitCost.Decimal.IsPositive() {
			continue
		}
		weighted = weighted.Add(m.Quantity.Mul(m.UnitCost.Decimal))
		totalQty = totalQty.Add(m.Quantity)
	}

	unitCost := decimal.Zero
	if totalQty.IsPositive() {
		unitCost = weighted.DivRound(totalQty, 4)
	}
	return &ValuationResult{
		Quantity:   onHand,
		UnitCost:   unitCost,
		TotalValue: unitCost.Mul(onHand),
	}, nil
}

// valuateSpecific preserves each lot's actual cost with no fungibility
// assumption.
func (s *Valuation) valuateSpecific(ctx context.Context, key LevelKey) (*ValuationResult, error) {
	batches, err := s.store.Batches().ListActive(ctx, key, OrderFIFO)
	if err != nil {
		return nil, err
	}

	totalValue := decimal.Zero
	totalQty := decimal.Zero
	var slices []BatchValuation
	for _, batch := range batches {
		if !batch.CurrentQuantity.IsPositive() {
			continue
		}
		value := batch.CurrentQuantity.Mul(batch.UnitCost)
		slices = append(slices, BatchValuation{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Quantity:    batch.CurrentQuantity,
			UnitCost:    batch.UnitCost,
			Value:       value,
		})
		totalValue = totalValue.Add(value)
		totalQty = totalQty.Add(batch.CurrentQuantity)
	}

	unitCost := decimal.Zero
	if totalQty.IsPositive() {
		unitCost = totalValue.DivRound(totalQty, 4)
	}
	return &ValuationResult{
		Quantity:   totalQty,
		UnitCost:   unitCost,
		TotalValue: totalValue,
		Batches:    slices,
	}, nil
}

// LocationValuation is one product line in a location summary.
type LocationValuation struct {
	ProductID  string          `json:"product_id"`
	VariantID  VariantID       `json:"variant_id"`
	Method     ValuationMethod `json:"method"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type LocationSummary struct {
	LocationID string              `json:"location_id"`
	Lines      []LocationValuation `json:"lines"`
	TotalValue decimal.Decimal     `json:"total_value"`
}

// SummarizeLocation valuates every active level in a location under its own
// configured method.
func (s *Valuation) SummarizeLocation(ctx context.Context, tenantID, locationID string) (*LocationSummary, error) {
	levels, err := s.store.Levels().ListByLocation(ctx, tenantID, locationID)
	if err != nil {
		return nil, err
	}

	summary := &LocationSummary{LocationID: locationID, TotalValue: decimal.Zero}
	for _, level := range levels {
		result, err := s.Valuate(ctx, level.Key(), level.ValuationMethod, nil)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		summary.Lines = append(summary.Lines, LocationValuation{
			ProductID:  level.ProductID,
			VariantID:  level.Variant,
			Method:     result.Method,
			Quantity:   result.Quantity,
			UnitCost:   result.UnitCost,
			TotalValue: result.TotalValue,
		})
		summary.TotalValue = summary.TotalValue.Add(result.TotalValue)
	}
	return summary, nil
}

func valuationCacheKey(key LevelKey, method ValuationMethod, asOf *time.Time) cache.Key {
	asOfPart := "latest"
	if asOf != nil {
		asOfPart = asOf.UTC().Format(time.RFC3339)
	}
	return cache.NewKey(key.TenantID, cacheEntityValuation,
		key.ProductID, key.Variant.String(), key.LocationID, string(method), asOfPart)
}
