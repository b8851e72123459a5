package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockcore-system/internal/cache"
)

// Batches is the batch tracker: consumption orderings over active lots,
// consumption, recall and the expiry sweep. Receipt of new lots happens
// through the Coordinator so the level store and ledger move in the same
// unit.
type Batches struct {
	store  Store
	events Notifier
	cache  cache.Cache
	logger *zap.Logger
}

func NewBatches(store Store, events Notifier, c cache.Cache, logger *zap.Logger) *Batches {
	if events == nil {
		events = NopNotifier{}
	}
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batches{store: store, events: events, cache: c, logger: logger}
}

func (s *Batches) Get(ctx context.Context, tenantID, id string) (*Batch, error) {
	return s.store.Batches().Get(ctx, tenantID, id)
}

// ListOrdered returns the active batches of a key in the requested
// consumption order. FEFO sorts soonest expiry first with expiry-less
// batches last.
func (s *Batches) ListOrdered(ctx context.Context, key LevelKey, order BatchOrder) ([]Batch, error) {
	if !order.Valid() {
		return nil, InvalidStatef("unknown batch order %q", order)
	}
	return s.store.Batches().ListActive(ctx, key, order)
}

// Consume decrements a batch's current quantity; at zero the batch becomes
// consumed. Only active batches can be consumed.
func (s *Batches) Consume(ctx context.Context, tenantID, batchID string, quantity decimal.Decimal, reason string) (*Batch, error) {
	if !quantity.IsPositive() {
		return nil, InvalidStatef("consume quantity must be positive")
	}

	var consumed *Batch
	err := s.store.InTx(ctx, func(tx Store) error {
		batch, err := tx.Batches().GetForUpdate(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		if err := drawDownBatch(batch, quantity); err != nil {
			return err
		}
		if err := tx.Batches().Save(ctx, batch); err != nil {
			return err
		}
		consumed = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateInventory(ctx, s.cache, tenantID)
	s.logger.Info("batch consumed",
		zap.String("tenant_id", tenantID),
		zap.String("batch_id", batchID),
		zap.String("quantity", quantity.String()),
		zap.String("reason", reason),
	)
	return consumed, nil
}

// Recall transitions every active batch sharing the number to recalled,
// across all locations of the tenant. Recalling an already-recalled number
// is a no-op.
func (s *Batches) Recall(ctx context.Context, tenantID, batchNumber, actorID string) (int, error) {
	var recalled []Batch
	err := s.store.InTx(ctx, func(tx Store) error {
		batches, err := tx.Batches().ListActiveByNumber(ctx, tenantID, batchNumber)
		if err != nil {
			return err
		}
		for i := range batches {
			batch := batches[i]
			batch.Status = BatchRecalled
			if err := tx.Batches().Save(ctx, &batch); err != nil {
				return err
			}
			recalled = append(recalled, batch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	invalidateInventory(ctx, s.cache, tenantID)
	for _, batch := range recalled {
		s.events.Emit(ctx, EventBatchRecalled, map[string]string{
			"tenant_id":    tenantID,
			"batch_id":     batch.ID,
			"batch_number": batchNumber,
			"location_id":  batch.LocationID,
			"recalled_by":  actorID,
		})
	}
	s.logger.Info("batch recall processed",
		zap.String("tenant_id", tenantID),
		zap.String("batch_number", batchNumber),
		zap.Int("batches_recalled", len(recalled)),
	)
	return len(recalled), nil
}

// ExpireBatches transitions active batches past their expiry date to
// expired, blocking further consumption. The corresponding stock write-off
// stays an explicit movement decision for the caller.
func (s *Batches) ExpireBatches(ctx context.Context, tenantID string, asOf time.Time) (int, error) {
	var expired []Batch
	err := s.store.InTx(ctx, func(tx Store) error {
		batches, err := tx.Batches().ListExpiring(ctx, tenantID, asOf)
		if err != nil {
			return err
		}
		for i := range batches {
			batch := batches[i]
			batch.Status = BatchExpired
			if err := tx.Batches().Save(ctx, &batch); err != nil {
				return err
			}
			expired = append(expired, batch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	invalidateInventory(ctx, s.cache, tenantID)
	for _, batch := range expired {
		s.events.Emit(ctx, EventBatchExpired, map[string]string{
			"tenant_id":    tenantID,
			"batch_id":     batch.ID,
			"batch_number": batch.BatchNumber,
			"location_id":  batch.LocationID,
		})
	}
	return len(expired), nil
}

// drawDownBatch applies a consumption to an in-memory batch row.
func drawDownBatch(batch *Batch, quantity decimal.Decimal) error {
	if batch.Status != BatchActive {
		return InvalidStatef("batch %s is %s and cannot be consumed", batch.BatchNumber, batch.Status)
	}
	if batch.CurrentQuantity.LessThan(quantity) {
		return Insufficientf("batch %s holds %s, requested %s",
			batch.BatchNumber, batch.CurrentQuantity, quantity)
	}
	batch.CurrentQuantity = batch.CurrentQuantity.Sub(quantity)
	if batch.CurrentQuantity.IsZero() {
		batch.Status = BatchConsumed
	}
	return nil
}

// applyBatchDelta adjusts a batch inside the coordinator's transaction:
// positive deltas replenish the lot (a new receipt under the same number),
// negative deltas consume from it.
func applyBatchDelta(ctx context.Context, tx Store, key LevelKey, batchNumber string, delta decimal.Decimal) error {
	batch, err := tx.Batches().FindByNumberForUpdate(ctx, key, batchNumber)
	if err != nil {
		return err
	}
	if delta.IsNegative() {
		return drawDownAndSave(ctx, tx, batch, delta.Neg())
	}

	if batch.Status == BatchExpired || batch.Status == BatchRecalled {
		return InvalidStatef("batch %s is %s and cannot receive stock", batch.BatchNumber, batch.Status)
	}
	batch.CurrentQuantity = batch.CurrentQuantity.Add(delta)
	batch.OriginalQuantity = batch.OriginalQuantity.Add(delta)
	if batch.Status == BatchConsumed && batch.CurrentQuantity.IsPositive() {
		batch.Status = BatchActive
	}
	return tx.Batches().Save(ctx, batch)
}

func drawDownAndSave(ctx context.Context, tx Store, batch *Batch, quantity decimal.Decimal) error {
	if err := drawDownBatch(batch, quantity); err != nil {
		return err
	}
	return tx.Batches().Save(ctx, batch)
}
