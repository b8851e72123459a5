package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockcore-system/internal/cache"
)

// reconciliationEpsilon tolerates decimal rounding from upstream count
// capture; anything inside it is not a variance.
var reconciliationEpsilon = decimal.RequireFromString("0.001")

// Coordinator is the perpetual-inventory state machine: every stock change
// runs its validate, append-movement, update-level, adjust-batch sequence as
// one transactional unit.
type Coordinator struct {
	store  Store
	events Notifier
	cache  cache.Cache
	logger *zap.Logger
}

func NewCoordinator(store Store, events Notifier, c cache.Cache, logger *zap.Logger) *Coordinator {
	if events == nil {
		events = NopNotifier{}
	}
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, events: events, cache: c, logger: logger}
}

// BatchInput describes a new receipt lot accompanying an inbound movement.
type BatchInput struct {
	BatchNumber   string          `json:"batch_number"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	QualityStatus QualityStatus   `json:"quality_status,omitempty"`
}

// ChangeRequest is one perpetual-inventory update. Quantity is taken as an
// absolute amount for directional types; adjustment and recount apply it
// signed as given.
type ChangeRequest struct {
	Key              LevelKey
	MovementType     MovementType
	Quantity         decimal.Decimal
	UnitCost         decimal.NullDecimal
	ReferenceType    *string
	ReferenceID      *string
	BatchNumber      *string
	NewBatch         *BatchInput
	Reason           string
	RequiresApproval bool
	ActorID          string
}

// UpdatePerpetualInventory runs the full change sequence for one key. When
// the change requires approval, the movement is recorded as pending and the
// level store stays untouched until ApproveMovement.
func (c *Coordinator) UpdatePerpetualInventory(ctx context.Context, req ChangeRequest) (*InventoryMovement, *InventoryLevel, error) {
	if !req.MovementType.Valid() {
		return nil, nil, InvalidStatef("unknown movement type %q", req.MovementType)
	}
	if req.Quantity.IsZero() {
		return nil, nil, InvalidStatef("quantity must be non-zero")
	}
	// A pending movement defers its level change, but the lot input has no
	// place to wait with it: expiry and quality would be lost. The lot is
	// recorded once the receipt is approved and re-submitted.
	if req.RequiresApproval && req.NewBatch != nil {
		return nil, nil, InvalidStatef("new batch lots cannot accompany movements pending approval")
	}

	var (
		movement *InventoryMovement
		level    *InventoryLevel
	)
	err := c.store.InTx(ctx, func(tx Store) error {
		var err error
		level, err = tx.Levels().GetForUpdate(ctx, req.Key)
		if err != nil {
			return err
		}

		signed := signedQuantity(req.MovementType, req.Quantity)
		newLevel := level.CurrentLevel.Add(signed)
		if newLevel.IsNegative() && req.MovementType != MovementAdjustment {
			return InvalidStatef("%s of %s would drive stock negative (current %s)",
				req.MovementType, req.Quantity.Abs(), level.CurrentLevel)
		}

		movement = &InventoryMovement{
			ID:               uuid.NewString(),
			TenantID:         req.Key.TenantID,
			ProductID:        req.Key.ProductID,
			Variant:          req.Key.Variant,
			LocationID:       req.Key.LocationID,
			MovementType:     req.MovementType,
			Quantity:         signed,
			UnitCost:         req.UnitCost,
			PreviousLevel:    level.CurrentLevel,
			NewLevel:         newLevel,
			ReferenceType:    req.ReferenceType,
			ReferenceID:      req.ReferenceID,
			BatchNumber:      req.BatchNumber,
			Reason:           req.Reason,
			RequiresApproval: req.RequiresApproval,
			Status:           MovementApplied,
			CreatedBy:        req.ActorID,
			CreatedAt:        time.Now(),
		}
		if req.UnitCost.Valid {
			movement.TotalCost = decimal.NewNullDecimal(req.UnitCost.Decimal.Mul(signed.Abs()))
		}
		if req.RequiresApproval {
			movement.Status = MovementPendingApproval
		}

		if err := appendMovement(ctx, tx, movement); err != nil {
			return err
		}
		if movement.Status == MovementPendingApproval {
			return nil
		}

		if err := c.applyBatchChange(ctx, tx, req, signed); err != nil {
			return err
		}
		return applyLevelChange(ctx, tx, level, movement)
	})
	if err != nil {
		return nil, nil, err
	}

	if movement.Status == MovementPendingApproval {
		c.logger.Info("movement recorded pending approval",
			zap.String("tenant_id", req.Key.TenantID),
			zap.String("movement_id", movement.ID),
			zap.String("movement_type", string(req.MovementType)),
		)
		return movement, level, nil
	}

	c.invalidate(ctx, req.Key.TenantID)
	emitLevelChanged(ctx, c.events, level, movement)
	return movement, level, nil
}

// ApproveMovement applies a pending movement's delta to the current level.
// The movement's level snapshot stays as recorded; the delta is re-applied
// against whatever the level is now.
func (c *Coordinator) ApproveMovement(ctx context.Context, tenantID, movementID, approverID string) (*InventoryMovement, *InventoryLevel, error) {
	var (
		movement *InventoryMovement
		level    *InventoryLevel
	)
	err := c.store.InTx(ctx, func(tx Store) error {
		var err error
		movement, err = tx.Movements().Get(ctx, tenantID, movementID)
		if err != nil {
			return err
		}
		if movement.Status != MovementPendingApproval {
			return InvalidStatef("movement %s is %s, not pending approval", movementID, movement.Status)
		}

		level, err = tx.Levels().GetForUpdate(ctx, movement.Key())
		if err != nil {
			return err
		}
		newLevel := level.CurrentLevel.Add(movement.Quantity)
		if newLevel.IsNegative() && movement.MovementType != MovementAdjustment {
			return InvalidStatef("approving movement %s would drive stock negative (current %s)",
				movementID, level.CurrentLevel)
		}

		if movement.BatchNumber != nil {
			if err := applyBatchDelta(ctx, tx, movement.Key(), *movement.BatchNumber, movement.Quantity); err != nil {
				return err
			}
		}

		now := time.Now()
		if err := tx.Movements().SetApproval(ctx, tenantID, movementID, MovementApplied, approverID, now); err != nil {
			return err
		}
		movement.Status = MovementApplied
		movement.ApprovedBy = &approverID
		movement.ApprovedAt = &now

		level.CurrentLevel = newLevel
		level.Recompute()
		if movement.UnitCost.Valid && movement.MovementType.Direction() == 1 {
			updateAverageCost(level, movement.Quantity, movement.UnitCost.Decimal)
		}
		level.TotalValue = level.CurrentLevel.Mul(level.AverageCost)
		return tx.Levels().Save(ctx, level)
	})
	if err != nil {
		return nil, nil, err
	}

	c.invalidate(ctx, tenantID)
	emitLevelChanged(ctx, c.events, level, movement)
	return movement, level, nil
}

// RejectMovement stamps a pending movement as rejected. The row stays in the
// ledger as a permanent audit entry; the level store is never touched.
func (c *Coordinator) RejectMovement(ctx context.Context, tenantID, movementID, actorID string) (*InventoryMovement, error) {
	var movement *InventoryMovement
	err := c.store.InTx(ctx, func(tx Store) error {
		var err error
		movement, err = tx.Movements().Get(ctx, tenantID, movementID)
		if err != nil {
			return err
		}
		if movement.Status != MovementPendingApproval {
			return InvalidStatef("movement %s is %s, not pending approval", movementID, movement.Status)
		}
		now := time.Now()
		if err := tx.Movements().SetApproval(ctx, tenantID, movementID, MovementRejected, actorID, now); err != nil {
			return err
		}
		movement.Status = MovementRejected
		movement.ApprovedBy = &actorID
		movement.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

type TransferRequest struct {
	TenantID       string
	ProductID      string
	Variant        VariantID
	FromLocationID string
	ToLocationID   string
	Quantity       decimal.Decimal
	BatchNumber    *string
	Reason         string
	ActorID        string
}

type TransferResult struct {
	OutMovement *InventoryMovement `json:"out_movement"`
	InMovement  *InventoryMovement `json:"in_movement"`
	Source      *InventoryLevel    `json:"source"`
	Destination *InventoryLevel    `json:"destination"`
}

// Transfer moves stock between two locations atomically: both rows commit or
// neither does. Locks are taken in lexicographic location order so opposite
// transfers cannot deadlock.
func (c *Coordinator) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, InvalidStatef("transfer quantity must be positive")
	}
	if req.FromLocationID == req.ToLocationID {
		return nil, InvalidStatef("cannot transfer to the same location")
	}

	fromKey := LevelKey{TenantID: req.TenantID, ProductID: req.ProductID, Variant: req.Variant, LocationID: req.FromLocationID}
	toKey := LevelKey{TenantID: req.TenantID, ProductID: req.ProductID, Variant: req.Variant, LocationID: req.ToLocationID}

	result := &TransferResult{}
	err := c.store.InTx(ctx, func(tx Store) error {
		levels, err := lockTransferRows(ctx, tx, fromKey, toKey)
		if err != nil {
			return err
		}
		source, destination := levels[fromKey.LocationID], levels[toKey.LocationID]

		if source.AvailableLevel.LessThan(req.Quantity) {
			return Insufficientf("available %s at %s, requested %s",
				source.AvailableLevel, req.FromLocationID, req.Quantity)
		}

		refType := "transfer"
		refID := uuid.NewString()
		now := time.Now()

		// The moved stock keeps the source's cost basis, so a destination
		// created by the transfer does not start valued at zero.
		var transferCost decimal.NullDecimal
		if source.AverageCost.IsPositive() {
			transferCost = decimal.NewNullDecimal(source.AverageCost)
		}

		out := &InventoryMovement{
			ID:            uuid.NewString(),
			TenantID:      req.TenantID,
			ProductID:     req.ProductID,
			Variant:       req.Variant,
			LocationID:    req.FromLocationID,
			MovementType:  MovementTransferOut,
			Quantity:      req.Quantity.Neg(),
			UnitCost:      transferCost,
			PreviousLevel: source.CurrentLevel,
			NewLevel:      source.CurrentLevel.Sub(req.Quantity),
			ReferenceType: &refType,
			ReferenceID:   &refID,
			BatchNumber:   req.BatchNumber,
			Reason:        req.Reason,
			Status:        MovementApplied,
			CreatedBy:     req.ActorID,
			CreatedAt:     now,
		}
		in := &InventoryMovement{
			ID:            uuid.NewString(),
			TenantID:      req.TenantID,
			ProductID:     req.ProductID,
			Variant:       req.Variant,
			LocationID:    req.ToLocationID,
			MovementType:  MovementTransferIn,
			Quantity:      req.Quantity,
			UnitCost:      transferCost,
			PreviousLevel: destination.CurrentLevel,
			NewLevel:      destination.CurrentLevel.Add(req.Quantity),
			ReferenceType: &refType,
			ReferenceID:   &refID,
			BatchNumber:   req.BatchNumber,
			Reason:        req.Reason,
			Status:        MovementApplied,
			CreatedBy:     req.ActorID,
			CreatedAt:     now,
		}

		if transferCost.Valid {
			total := decimal.NewNullDecimal(transferCost.Decimal.Mul(req.Quantity))
			out.TotalCost = total
			in.TotalCost = total
		}

		if err := appendMovement(ctx, tx, out); err != nil {
			return err
		}
		if err := appendMovement(ctx, tx, in); err != nil {
			return err
		}

		if req.BatchNumber != nil {
			if err := transferBatch(ctx, tx, fromKey, toKey, *req.BatchNumber, req.Quantity); err != nil {
				return err
			}
		}

		if err := applyLevelChange(ctx, tx, source, out); err != nil {
			return err
		}
		if err := applyLevelChange(ctx, tx, destination, in); err != nil {
			return err
		}

		result.OutMovement, result.InMovement = out, in
		result.Source, result.Destination = source, destination
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, req.TenantID)
	emitLevelChanged(ctx, c.events, result.Source, result.OutMovement)
	emitLevelChanged(ctx, c.events, result.Destination, result.InMovement)
	return result, nil
}

// lockTransferRows acquires both level rows in lexicographic location order,
// creating a zero baseline for a missing destination inside the same unit.
func lockTransferRows(ctx context.Context, tx Store, fromKey, toKey LevelKey) (map[string]*InventoryLevel, error) {
	keys := []LevelKey{fromKey, toKey}
	sort.Slice(keys, func(i, j int) bool { return keys[i].LocationID < keys[j].LocationID })

	levels := make(map[string]*InventoryLevel, 2)
	for _, key := range keys {
		level, err := tx.Levels().GetForUpdate(ctx, key)
		if IsNotFound(err) && key.LocationID == toKey.LocationID {
			level = newZeroLevel(key)
			if createErr := tx.Levels().Create(ctx, level); createErr != nil {
				return nil, createErr
			}
			err = nil
		}
		if err != nil {
			return nil, err
		}
		levels[key.LocationID] = level
	}
	return levels, nil
}

// transferBatch draws the quantity from the source lot and lands it in a lot
// of the same number at the destination, carrying cost and expiry across.
func transferBatch(ctx context.Context, tx Store, fromKey, toKey LevelKey, batchNumber string, quantity decimal.Decimal) error {
	source, err := tx.Batches().FindByNumberForUpdate(ctx, fromKey, batchNumber)
	if err != nil {
		return err
	}
	if err := drawDownAndSave(ctx, tx, source, quantity); err != nil {
		return err
	}

	destination, err := tx.Batches().FindByNumberForUpdate(ctx, toKey, batchNumber)
	if IsNotFound(err) {
		return tx.Batches().Create(ctx, &Batch{
			ID:               uuid.NewString(),
			TenantID:         toKey.TenantID,
			ProductID:        toKey.ProductID,
			Variant:          toKey.Variant,
			LocationID:       toKey.LocationID,
			BatchNumber:      batchNumber,
			OriginalQuantity: quantity,
			CurrentQuantity:  quantity,
			UnitCost:         source.UnitCost,
			ReceivedDate:     source.ReceivedDate,
			ExpiryDate:       source.ExpiryDate,
			QualityStatus:    source.QualityStatus,
			Status:           BatchActive,
		})
	}
	if err != nil {
		return err
	}
	destination.CurrentQuantity = destination.CurrentQuantity.Add(quantity)
	destination.OriginalQuantity = destination.OriginalQuantity.Add(quantity)
	if destination.Status == BatchConsumed {
		destination.Status = BatchActive
	}
	return tx.Batches().Save(ctx, destination)
}

type ReconciliationItem struct {
	ProductID        string          `json:"product_id"`
	Variant          VariantID       `json:"variant_id"`
	ExpectedQuantity decimal.Decimal `json:"expected_quantity"`
}

type ReconciliationRequest struct {
	TenantID    string
	LocationID  string
	Items       []ReconciliationItem
	ReferenceID *string
	ActorID     string
}

type VarianceRecord struct {
	ProductID      string          `json:"product_id"`
	Variant        VariantID       `json:"variant_id"`
	SystemQuantity decimal.Decimal `json:"system_quantity"`
	ExpectedQty    decimal.Decimal `json:"expected_quantity"`
	Variance       decimal.Decimal `json:"variance"`
	VarianceValue  decimal.Decimal `json:"variance_value"`
	MovementID     string          `json:"movement_id"`
}

type ReconciliationResult struct {
	LocationID        string           `json:"location_id"`
	TotalItems        int              `json:"total_items"`
	ItemsWithVariance int              `json:"items_with_variance"`
	LevelsEstablished int              `json:"levels_established"`
	AccuracyPct       decimal.Decimal  `json:"accuracy_pct"`
	Variances         []VarianceRecord `json:"variances"`
}

// PerformInventoryReconciliation compares counted quantities against system
// quantities for one location, writing a corrective adjustment per detected
// variance. Counts for unknown keys establish a new baseline level and are
// not treated as variances.
func (c *Coordinator) PerformInventoryReconciliation(ctx context.Context, req ReconciliationRequest) (*ReconciliationResult, error) {
	result := &ReconciliationResult{
		LocationID: req.LocationID,
		TotalItems: len(req.Items),
	}

	err := c.store.InTx(ctx, func(tx Store) error {
		for _, item := range req.Items {
			key := LevelKey{
				TenantID:   req.TenantID,
				ProductID:  item.ProductID,
				Variant:    item.Variant,
				LocationID: req.LocationID,
			}

			level, err := tx.Levels().GetForUpdate(ctx, key)
			if IsNotFound(err) {
				if baselineErr := establishBaseline(ctx, tx, key, item.ExpectedQuantity, req); baselineErr != nil {
					return baselineErr
				}
				result.LevelsEstablished++
				continue
			}
			if err != nil {
				return err
			}

			variance := item.ExpectedQuantity.Sub(level.CurrentLevel)
			if variance.Abs().LessThanOrEqual(reconciliationEpsilon) {
				continue
			}

			refType := "reconciliation"
			movement := &InventoryMovement{
				ID:            uuid.NewString(),
				TenantID:      key.TenantID,
				ProductID:     key.ProductID,
				Variant:       key.Variant,
				LocationID:    key.LocationID,
				MovementType:  MovementAdjustment,
				Quantity:      variance,
				PreviousLevel: level.CurrentLevel,
				NewLevel:      item.ExpectedQuantity,
				ReferenceType: &refType,
				ReferenceID:   req.ReferenceID,
				Reason:        "reconciliation_variance",
				Status:        MovementApplied,
				CreatedBy:     req.ActorID,
				CreatedAt:     time.Now(),
			}
			if err := appendMovement(ctx, tx, movement); err != nil {
				return err
			}
			if err := applyLevelChange(ctx, tx, level, movement); err != nil {
				return err
			}

			result.ItemsWithVariance++
			result.Variances = append(result.Variances, VarianceRecord{
				ProductID:      item.ProductID,
				Variant:        item.Variant,
				SystemQuantity: movement.PreviousLevel,
				ExpectedQty:    item.ExpectedQuantity,
				Variance:       variance,
				VarianceValue:  variance.Mul(level.AverageCost),
				MovementID:     movement.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.AccuracyPct = accuracyPercentage(result.TotalItems, result.ItemsWithVariance)

	c.invalidate(ctx, req.TenantID)
	for _, v := range result.Variances {
		c.events.Emit(ctx, EventVarianceDetected, VariancePayload{
			TenantID:      req.TenantID,
			ProductID:     v.ProductID,
			LocationID:    req.LocationID,
			Expected:      v.ExpectedQty.String(),
			System:        v.SystemQuantity.String(),
			Variance:      v.Variance.String(),
			VarianceValue: v.VarianceValue.String(),
		})
	}
	c.events.Emit(ctx, EventReconciliationCompleted, result)
	return result, nil
}

type RegisterLevelRequest struct {
	Key             LevelKey
	MinStockLevel   decimal.Decimal
	MaxStockLevel   decimal.NullDecimal
	ReorderPoint    decimal.Decimal
	ReorderQuantity decimal.Decimal
	ValuationMethod ValuationMethod
	ActorID         string
}

// RegisterLevel creates the level row for a key's first stock registration.
// Subsequent stock arrives through UpdatePerpetualInventory.
func (c *Coordinator) RegisterLevel(ctx context.Context, req RegisterLevelRequest) (*InventoryLevel, error) {
	method := req.ValuationMethod
	if method == "" {
		method = ValuationFIFO
	}
	if !method.Valid() {
		return nil, InvalidStatef("unknown valuation method %q", method)
	}

	level := newZeroLevel(req.Key)
	level.MinStockLevel = req.MinStockLevel
	level.MaxStockLevel = req.MaxStockLevel
	level.ReorderPoint = req.ReorderPoint
	level.ReorderQuantity = req.ReorderQuantity
	level.ValuationMethod = method

	err := c.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.Levels().Get(ctx, req.Key); err == nil {
			return Conflictf("inventory level already registered for %s", req.Key)
		} else if !IsNotFound(err) {
			return err
		}
		return tx.Levels().Create(ctx, level)
	})
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, req.Key.TenantID)
	return level, nil
}

// applyBatchChange wires a movement's batch side effect: a NewBatch input
// creates (or replenishes) the lot, a bare BatchNumber adjusts the existing
// lot by the movement delta.
func (c *Coordinator) applyBatchChange(ctx context.Context, tx Store, req ChangeRequest, signed decimal.Decimal) error {
	if req.NewBatch != nil {
		if req.MovementType.Direction() != 1 {
			return InvalidStatef("new batches can only accompany inbound movements")
		}
		_, err := tx.Batches().FindByNumberForUpdate(ctx, req.Key, req.NewBatch.BatchNumber)
		if IsNotFound(err) {
			quality := req.NewBatch.QualityStatus
			if quality == "" {
				quality = QualityApproved
			}
			return tx.Batches().Create(ctx, &Batch{
				ID:               uuid.NewString(),
				TenantID:         req.Key.TenantID,
				ProductID:        req.Key.ProductID,
				Variant:          req.Key.Variant,
				LocationID:       req.Key.LocationID,
				BatchNumber:      req.NewBatch.BatchNumber,
				OriginalQuantity: signed,
				CurrentQuantity:  signed,
				UnitCost:         req.NewBatch.UnitCost,
				ReceivedDate:     time.Now(),
				ExpiryDate:       req.NewBatch.ExpiryDate,
				QualityStatus:    quality,
				Status:           BatchActive,
			})
		}
		if err != nil {
			return err
		}
		return applyBatchDelta(ctx, tx, req.Key, req.NewBatch.BatchNumber, signed)
	}
	if req.BatchNumber != nil {
		return applyBatchDelta(ctx, tx, req.Key, *req.BatchNumber, signed)
	}
	return nil
}

func (c *Coordinator) invalidate(ctx context.Context, tenantID string) {
	invalidateInventory(ctx, c.cache, tenantID)
}

// invalidateInventory drops the tenant's cached levels and valuations. Every
// service that mutates level or batch state calls this after commit so the
// read paths never serve figures older than the write.
func invalidateInventory(ctx context.Context, c cache.Cache, tenantID string) {
	c.InvalidateEntity(ctx, tenantID, cacheEntityLevels)
	c.InvalidateEntity(ctx, tenantID, cacheEntityValuation)
}

// signedQuantity maps a request quantity onto the ledger's sign convention.
func signedQuantity(t MovementType, quantity decimal.Decimal) decimal.Decimal {
	switch t.Direction() {
	case -1:
		return quantity.Abs().Neg()
	case 1:
		return quantity.Abs()
	}
	return quantity
}

// applyLevelChange commits a movement's level mutation and keeps the
// average-cost figures current.
func applyLevelChange(ctx context.Context, tx Store, level *InventoryLevel, movement *InventoryMovement) error {
	if movement.UnitCost.Valid && movement.MovementType.Direction() == 1 {
		updateAverageCost(level, movement.Quantity, movement.UnitCost.Decimal)
	}
	level.CurrentLevel = movement.NewLevel
	level.Recompute()
	level.TotalValue = level.CurrentLevel.Mul(level.AverageCost)
	return tx.Levels().Save(ctx, level)
}

// updateAverageCost folds an inbound receipt into the moving average.
func updateAverageCost(level *InventoryLevel, quantity, unitCost decimal.Decimal) {
	existingQty := level.CurrentLevel
	newQty := existingQty.Add(quantity)
	if !newQty.IsPositive() {
		return
	}
	weighted := existingQty.Mul(level.AverageCost).Add(quantity.Mul(unitCost))
	level.AverageCost = weighted.DivRound(newQty, 4)
}

func newZeroLevel(key LevelKey) *InventoryLevel {
	return &InventoryLevel{
		ID:              uuid.NewString(),
		TenantID:        key.TenantID,
		ProductID:       key.ProductID,
		Variant:         key.Variant,
		LocationID:      key.LocationID,
		CurrentLevel:    decimal.Zero,
		AvailableLevel:  decimal.Zero,
		ReservedLevel:   decimal.Zero,
		ValuationMethod: ValuationFIFO,
		AverageCost:     decimal.Zero,
		TotalValue:      decimal.Zero,
		IsActive:        true,
	}
}

// accuracyPercentage is (total - withVariance) / total * 100 clamped to
// [0, 100]; an empty count is perfectly accurate by definition.
func accuracyPercentage(totalItems, itemsWithVariance int) decimal.Decimal {
	if totalItems == 0 {
		return decimal.NewFromInt(100)
	}
	pct := decimal.NewFromInt(int64(totalItems - itemsWithVariance)).
		Div(decimal.NewFromInt(int64(totalItems))).
		Mul(decimal.NewFromInt(100))
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return pct.Round(2)
}

// establishBaseline creates a level for a counted key the system had never
// seen, recording the count as an establishing recount movement.
func establishBaseline(ctx context.Context, tx Store, key LevelKey, expected decimal.Decimal, req ReconciliationRequest) error {
	if expected.IsNegative() {
		return InvalidStatef("baseline quantity for %s cannot be negative", key.ProductID)
	}
	level := newZeroLevel(key)
	if err := tx.Levels().Create(ctx, level); err != nil {
		return err
	}
	if expected.IsZero() {
		return nil
	}

	refType := "reconciliation"
	movement := &InventoryMovement{
		ID:            uuid.NewString(),
		TenantID:      key.TenantID,
		ProductID:     key.ProductID,
		Variant:       key.Variant,
		LocationID:    key.LocationID,
		MovementType:  MovementRecount,
		Quantity:      expected,
		PreviousLevel: decimal.Zero,
		NewLevel:      expected,
		ReferenceType: &refType,
		ReferenceID:   req.ReferenceID,
		Reason:        "reconciliation_baseline",
		Status:        MovementApplied,
		CreatedBy:     req.ActorID,
		CreatedAt:     time.Now(),
	}
	if err := appendMovement(ctx, tx, movement); err != nil {
		return err
	}
	return applyLevelChange(ctx, tx, level, movement)
}

// emitLevelChanged publishes the level-changed event and, when the new level
// is at or under the reorder point, a low-stock event.
func emitLevelChanged(ctx context.Context, events Notifier, level *InventoryLevel, movement *InventoryMovement) {
	if level == nil || movement == nil {
		return
	}
	payload := LevelChangedPayload{
		TenantID:     level.TenantID,
		ProductID:    level.ProductID,
		LocationID:   level.LocationID,
		MovementID:   movement.ID,
		MovementType: string(movement.MovementType),
		Previous:     movement.PreviousLevel.String(),
		Current:      level.CurrentLevel.String(),
		ReorderPoint: level.ReorderPoint.String(),
	}
	if id, ok := level.Variant.Get(); ok {
		payload.VariantID = id
	}
	events.Emit(ctx, EventLevelChanged, payload)

	if level.ReorderPoint.IsPositive() && level.CurrentLevel.LessThanOrEqual(level.ReorderPoint) {
		events.Emit(ctx, EventLowStock, payload)
	}
}
