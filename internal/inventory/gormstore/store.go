// Package gormstore is the Postgres-backed inventory.Store. Row locks come
// from SELECT ... FOR UPDATE and level saves are guarded by an optimistic
// version column on top of that.
package gormstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockcore-system/internal/inventory"
)

type Store struct {
	db   *gorm.DB
	inTx bool
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx inventory.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&Store{db: tx, inTx: true}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func (s *Store) Levels() inventory.LevelRepo             { return levelRepo{s.db} }
func (s *Store) Movements() inventory.MovementRepo       { return movementRepo{s.db} }
func (s *Store) Batches() inventory.BatchRepo            { return batchRepo{s.db} }
func (s *Store) Reservations() inventory.ReservationRepo { return reservationRepo{s.db} }

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.NotFoundf(format, args...)
	}
	return err
}

type levelRepo struct{ db *gorm.DB }

func levelKeyScope(key inventory.LevelKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return variantScope(
			db.Where("tenant_id = ? AND product_id = ? AND location_id = ?",
				key.TenantID, key.ProductID, key.LocationID),
			key.Variant,
		)
	}
}

// variantScope matches the variant column; a none variant is stored as NULL
// and `= NULL` never matches in SQL.
func variantScope(db *gorm.DB, variant inventory.VariantID) *gorm.DB {
	if id, ok := variant.Get(); ok {
		return db.Where("variant = ?", id)
	}
	return db.Where("variant IS NULL")
}

func (r levelRepo) Get(ctx context.Context, key inventory.LevelKey) (*inventory.InventoryLevel, error) {
	var level inventory.InventoryLevel
	err := r.db.WithContext(ctx).Scopes(levelKeyScope(key)).First(&level).Error
	if err != nil {
		return nil, notFound(err, "inventory level %s not found", key)
	}
	return &level, nil
}

func (r levelRepo) GetForUpdate(ctx context.Context, key inventory.LevelKey) (*inventory.InventoryLevel, error) {
	var level inventory.InventoryLevel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(levelKeyScope(key)).
		First(&level).Error
	if err != nil {
		return nil, notFound(err, "inventory level %s not found", key)
	}
	return &level, nil
}

func (r levelRepo) Create(ctx context.Context, level *inventory.InventoryLevel) error {
	if err := r.db.WithContext(ctx).Create(level).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return inventory.Conflictf("inventory level %s already exists", level.Key())
		}
		return err
	}
	return nil
}

// Save performs a version-guarded update: the row is only written when the
// stored version still matches, then the version is bumped.
func (r levelRepo) Save(ctx context.Context, level *inventory.InventoryLevel) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.InventoryLevel{}).
		Where("id = ? AND version = ?", level.ID, level.Version).
		Updates(map[string]interface{}{
			"current_level":    level.CurrentLevel,
			"available_level":  level.AvailableLevel,
			"reserved_level":   level.ReservedLevel,
			"min_stock_level":  level.MinStockLevel,
			"max_stock_level":  level.MaxStockLevel,
			"reorder_point":    level.ReorderPoint,
			"reorder_quantity": level.ReorderQuantity,
			"valuation_method": level.ValuationMethod,
			"average_cost":     level.AverageCost,
			"total_value":      level.TotalValue,
			"is_active":        level.IsActive,
			"version":          level.Version + 1,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrVersionConflict
	}
	level.Version++
	return nil
}

func (r levelRepo) ListByLocation(ctx context.Context, tenantID, locationID string) ([]inventory.InventoryLevel, error) {
	var levels []inventory.InventoryLevel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND location_id = ? AND is_active = ?", tenantID, locationID, true).
		Order("product_id").
		Find(&levels).Error
	return levels, err
}

func (r levelRepo) ListBelowReorderPoint(ctx context.Context, tenantID string, locationID *string, page inventory.Page) ([]inventory.InventoryLevel, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&inventory.InventoryLevel{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Where("reorder_point > 0 AND current_level <= reorder_point")
	if locationID != nil {
		query = query.Where("location_id = ?", *locationID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var levels []inventory.InventoryLevel
	err := applyPage(query.Order("location_id, product_id"), page).Find(&levels).Error
	return levels, total, err
}

type movementRepo struct{ db *gorm.DB }

func (r movementRepo) Append(ctx context.Context, movement *inventory.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r movementRepo) Get(ctx context.Context, tenantID, id string) (*inventory.InventoryMovement, error) {
	var movement inventory.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&movement).Error
	if err != nil {
		return nil, notFound(err, "movement %s not found", id)
	}
	return &movement, nil
}

func (r movementRepo) Query(ctx context.Context, tenantID string, filter inventory.MovementFilter, page inventory.Page) ([]inventory.InventoryMovement, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&inventory.InventoryMovement{}).
		Where("tenant_id = ?", tenantID)

	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.LocationID != nil {
		query = query.Where("location_id = ?", *filter.LocationID)
	}
	if filter.Variant != nil {
		query = variantScope(query, *filter.Variant)
	}
	if filter.MovementType != nil {
		query = query.Where("movement_type = ?", *filter.MovementType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var movements []inventory.InventoryMovement
	err := applyPage(query.Order("created_at DESC"), page).Find(&movements).Error
	return movements, total, err
}

func (r movementRepo) FindPendingApproval(ctx context.Context, tenantID string) ([]inventory.InventoryMovement, error) {
	var movements []inventory.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, inventory.MovementPendingApproval).
		Order("created_at DESC").
		Find(&movements).Error
	return movements, err
}

func (r movementRepo) SetApproval(ctx context.Context, tenantID, id string, status inventory.MovementStatus, actorID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.InventoryMovement{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]interface{}{
			"status":      status,
			"approved_by": actorID,
			"approved_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.NotFoundf("movement %s not found", id)
	}
	return nil
}

type batchRepo struct{ db *gorm.DB }

func (r batchRepo) Create(ctx context.Context, batch *inventory.Batch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return inventory.Conflictf("batch %s already exists at location %s", batch.BatchNumber, batch.LocationID)
		}
		return err
	}
	return nil
}

func (r batchRepo) Get(ctx context.Context, tenantID, id string) (*inventory.Batch, error) {
	var batch inventory.Batch
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&batch).Error
	if err != nil {
		return nil, notFound(err, "batch %s not found", id)
	}
	return &batch, nil
}

func (r batchRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*inventory.Batch, error) {
	var batch inventory.Batch
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&batch).Error
	if err != nil {
		return nil, notFound(err, "batch %s not found", id)
	}
	return &batch, nil
}

func (r batchRepo) FindByNumber(ctx context.Context, key inventory.LevelKey, batchNumber string) (*inventory.Batch, error) {
	var batch inventory.Batch
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND location_id = ? AND batch_number = ?", key.TenantID, key.LocationID, batchNumber).
		First(&batch).Error
	if err != nil {
		return nil, notFound(err, "batch %s not found at location %s", batchNumber, key.LocationID)
	}
	return &batch, nil
}

func (r batchRepo) FindByNumberForUpdate(ctx context.Context, key inventory.LevelKey, batchNumber string) (*inventory.Batch, error) {
	var batch inventory.Batch
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND location_id = ? AND batch_number = ?", key.TenantID, key.LocationID, batchNumber).
		First(&batch).Error
	if err != nil {
		return nil, notFound(err, "batch %s not found at location %s", batchNumber, key.LocationID)
	}
	return &batch, nil
}

func (r batchRepo) ListActive(ctx context.Context, key inventory.LevelKey, order inventory.BatchOrder) ([]inventory.Batch, error) {
	query := variantScope(
		r.db.WithContext(ctx).
			Where("tenant_id = ? AND product_id = ? AND location_id = ? AND status = ?",
				key.TenantID, key.ProductID, key.LocationID, inventory.BatchActive),
		key.Variant,
	)

	switch order {
	case inventory.OrderLIFO:
		query = query.Order("received_date DESC")
	case inventory.OrderFEFO:
		// NULLS LAST keeps non-perishable lots at the back of the walk.
		query = query.Order("expiry_date ASC NULLS LAST, received_date ASC")
	default:
		query = query.Order("received_date ASC")
	}

	var batches []inventory.Batch
	err := query.Find(&batches).Error
	return batches, err
}

func (r batchRepo) ListActiveByNumber(ctx context.Context, tenantID, batchNumber string) ([]inventory.Batch, error) {
	var batches []inventory.Batch
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND batch_number = ? AND status = ?", tenantID, batchNumber, inventory.BatchActive).
		Order("location_id").
		Find(&batches).Error
	return batches, err
}

func (r batchRepo) ListExpiring(ctx context.Context, tenantID string, asOf time.Time) ([]inventory.Batch, error) {
	var batches []inventory.Batch
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND expiry_date IS NOT NULL AND expiry_date < ?",
			tenantID, inventory.BatchActive, asOf).
		Order("expiry_date ASC").
		Find(&batches).Error
	return batches, err
}

func (r batchRepo) Save(ctx context.Context, batch *inventory.Batch) error {
	return r.db.WithContext(ctx).Save(batch).Error
}

type reservationRepo struct{ db *gorm.DB }

func (r reservationRepo) Create(ctx context.Context, reservation *inventory.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r reservationRepo) Get(ctx context.Context, tenantID, id string) (*inventory.Reservation, error) {
	var reservation inventory.Reservation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&reservation).Error
	if err != nil {
		return nil, notFound(err, "reservation %s not found", id)
	}
	return &reservation, nil
}

func (r reservationRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*inventory.Reservation, error) {
	var reservation inventory.Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&reservation).Error
	if err != nil {
		return nil, notFound(err, "reservation %s not found", id)
	}
	return &reservation, nil
}

func (r reservationRepo) Save(ctx context.Context, reservation *inventory.Reservation) error {
	return r.db.WithContext(ctx).Save(reservation).Error
}

func (r reservationRepo) ListActive(ctx context.Context, key inventory.LevelKey) ([]inventory.Reservation, error) {
	var reservations []inventory.Reservation
	err := variantScope(
		r.db.WithContext(ctx).
			Where("tenant_id = ? AND product_id = ? AND location_id = ? AND status = ?",
				key.TenantID, key.ProductID, key.LocationID, inventory.ReservationActive),
		key.Variant,
	).
		Order("created_at ASC").
		Find(&reservations).Error
	return reservations, err
}

// applyPage translates the 1-based page-number token into offset/limit.
func applyPage(query *gorm.DB, page inventory.Page) *gorm.DB {
	if page.Size <= 0 {
		return query
	}
	n := 1
	if page.Token != "" {
		if parsed, err := strconv.Atoi(page.Token); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return query.Offset((n - 1) * page.Size).Limit(page.Size)
}
