package inventory

import (
	"context"
	"time"
)

// Store is the transactional persistence port for the engine. InTx runs fn
// against a store view whose writes commit or roll back as one unit; the
// engine performs every multi-step mutation inside InTx.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error

	Levels() LevelRepo
	Movements() MovementRepo
	Batches() BatchRepo
	Reservations() ReservationRepo
}

// LevelRepo persists InventoryLevel rows. GetForUpdate must serialize
// concurrent mutators of the same key for the duration of the enclosing
// transaction. Save rejects writes whose Version does not match the stored
// row with ErrVersionConflict and bumps the version on success.
type LevelRepo interface {
	Get(ctx context.Context, key LevelKey) (*InventoryLevel, error)
	GetForUpdate(ctx context.Context, key LevelKey) (*InventoryLevel, error)
	Create(ctx context.Context, level *InventoryLevel) error
	Save(ctx context.Context, level *InventoryLevel) error
	ListByLocation(ctx context.Context, tenantID, locationID string) ([]InventoryLevel, error)
	ListBelowReorderPoint(ctx context.Context, tenantID string, locationID *string, page Page) ([]InventoryLevel, int64, error)
}

// MovementFilter narrows ledger queries. Nil fields match everything.
type MovementFilter struct {
	ProductID    *string
	LocationID   *string
	Variant      *VariantID
	MovementType *MovementType
	Status       *MovementStatus
	From         *time.Time
	To           *time.Time
}

// Page is token pagination: the token is the 1-based page number and a
// non-positive Size means unlimited.
type Page struct {
	Size  int
	Token string
}

// MovementRepo is the append-only ledger. SetApproval is the only mutation
// after Append and only touches the approval stamp and status.
type MovementRepo interface {
	Append(ctx context.Context, movement *InventoryMovement) error
	Get(ctx context.Context, tenantID, id string) (*InventoryMovement, error)
	Query(ctx context.Context, tenantID string, filter MovementFilter, page Page) ([]InventoryMovement, int64, error)
	FindPendingApproval(ctx context.Context, tenantID string) ([]InventoryMovement, error)
	SetApproval(ctx context.Context, tenantID, id string, status MovementStatus, actorID string, at time.Time) error
}

// BatchRepo persists receipt lots. Create returns a Conflict error when the
// batch number already exists for the (tenant, location) pair.
type BatchRepo interface {
	Create(ctx context.Context, batch *Batch) error
	Get(ctx context.Context, tenantID, id string) (*Batch, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*Batch, error)
	FindByNumber(ctx context.Context, key LevelKey, batchNumber string) (*Batch, error)
	FindByNumberForUpdate(ctx context.Context, key LevelKey, batchNumber string) (*Batch, error)
	ListActive(ctx context.Context, key LevelKey, order BatchOrder) ([]Batch, error)
	ListActiveByNumber(ctx context.Context, tenantID, batchNumber string) ([]Batch, error)
	ListExpiring(ctx context.Context, tenantID string, asOf time.Time) ([]Batch, error)
	Save(ctx context.Context, batch *Batch) error
}

type ReservationRepo interface {
	Create(ctx context.Context, reservation *Reservation) error
	Get(ctx context.Context, tenantID, id string) (*Reservation, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*Reservation, error)
	Save(ctx context.Context, reservation *Reservation) error
	ListActive(ctx context.Context, key LevelKey) ([]Reservation, error)
}
