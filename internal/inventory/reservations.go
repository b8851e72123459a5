package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockcore-system/internal/cache"
)

// Reservations holds back available quantity for pending orders. Reserve and
// release never touch CurrentLevel; consumption converts the hold into an
// outbound sale movement.
type Reservations struct {
	store  Store
	events Notifier
	cache  cache.Cache
	logger *zap.Logger
}

func NewReservations(store Store, events Notifier, c cache.Cache, logger *zap.Logger) *Reservations {
	if events == nil {
		events = NopNotifier{}
	}
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reservations{store: store, events: events, cache: c, logger: logger}
}

type ReserveRequest struct {
	Key         LevelKey
	Quantity    decimal.Decimal
	ReservedFor string
	ReferenceID *string
	ActorID     string
}

func (s *Reservations) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	if !req.Quantity.IsPositive() {
		return nil, InvalidStatef("reservation quantity must be positive")
	}

	reservation := &Reservation{
		ID:          uuid.NewString(),
		TenantID:    req.Key.TenantID,
		ProductID:   req.Key.ProductID,
		Variant:     req.Key.Variant,
		LocationID:  req.Key.LocationID,
		Quantity:    req.Quantity,
		ReservedFor: req.ReservedFor,
		ReferenceID: req.ReferenceID,
		Status:      ReservationActive,
		CreatedBy:   req.ActorID,
	}

	err := s.store.InTx(ctx, func(tx Store) error {
		level, err := tx.Levels().GetForUpdate(ctx, req.Key)
		if err != nil {
			return err
		}
		if level.AvailableLevel.LessThan(req.Quantity) {
			return Insufficientf("available %s, requested %s", level.AvailableLevel, req.Quantity)
		}
		level.ReservedLevel = level.ReservedLevel.Add(req.Quantity)
		level.Recompute()
		if err := tx.Levels().Save(ctx, level); err != nil {
			return err
		}
		return tx.Reservations().Create(ctx, reservation)
	})
	if err != nil {
		return nil, err
	}

	invalidateInventory(ctx, s.cache, req.Key.TenantID)
	s.logger.Info("stock reserved",
		zap.String("tenant_id", req.Key.TenantID),
		zap.String("reservation_id", reservation.ID),
		zap.String("quantity", req.Quantity.String()),
	)
	return reservation, nil
}

// Release returns a hold to available stock. Releasing a non-active
// reservation is rejected; release is deliberately not idempotent so a
// double release surfaces as a caller bug.
func (s *Reservations) Release(ctx context.Context, tenantID, reservationID, actorID string) (*Reservation, error) {
	var released *Reservation
	err := s.store.InTx(ctx, func(tx Store) error {
		reservation, err := tx.Reservations().GetForUpdate(ctx, tenantID, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationActive {
			return InvalidStatef("reservation %s is %s, only active reservations can be released",
				reservationID, reservation.Status)
		}
		level, err := tx.Levels().GetForUpdate(ctx, reservation.Key())
		if err != nil {
			return err
		}
		level.ReservedLevel = level.ReservedLevel.Sub(reservation.Quantity)
		level.Recompute()
		if err := tx.Levels().Save(ctx, level); err != nil {
			return err
		}
		reservation.Status = ReservationReleased
		if err := tx.Reservations().Save(ctx, reservation); err != nil {
			return err
		}
		released = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateInventory(ctx, s.cache, tenantID)
	s.logger.Info("reservation released",
		zap.String("tenant_id", tenantID),
		zap.String("reservation_id", reservationID),
		zap.String("released_by", actorID),
	)
	return released, nil
}

// Consume converts an active reservation into an outbound sale movement.
// Current and reserved levels drop by the held quantity, so availability is
// unchanged.
func (s *Reservations) Consume(ctx context.Context, tenantID, reservationID, actorID string) (*InventoryMovement, error) {
	var (
		movement *InventoryMovement
		level    *InventoryLevel
	)
	err := s.store.InTx(ctx, func(tx Store) error {
		reservation, err := tx.Reservations().GetForUpdate(ctx, tenantID, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationActive {
			return InvalidStatef("reservation %s is %s, only active reservations can be consumed",
				reservationID, reservation.Status)
		}
		level, err = tx.Levels().GetForUpdate(ctx, reservation.Key())
		if err != nil {
			return err
		}

		refType := "reservation"
		movement = &InventoryMovement{
			ID:            uuid.NewString(),
			TenantID:      reservation.TenantID,
			ProductID:     reservation.ProductID,
			Variant:       reservation.Variant,
			LocationID:    reservation.LocationID,
			MovementType:  MovementSale,
			Quantity:      reservation.Quantity.Neg(),
			PreviousLevel: level.CurrentLevel,
			NewLevel:      level.CurrentLevel.Sub(reservation.Quantity),
			ReferenceType: &refType,
			ReferenceID:   &reservation.ID,
			Reason:        "reservation_consumed",
			Status:        MovementApplied,
			CreatedBy:     actorID,
			CreatedAt:     time.Now(),
		}
		if err := appendMovement(ctx, tx, movement); err != nil {
			return err
		}

		level.CurrentLevel = movement.NewLevel
		level.ReservedLevel = level.ReservedLevel.Sub(reservation.Quantity)
		level.Recompute()
		if err := tx.Levels().Save(ctx, level); err != nil {
			return err
		}

		reservation.Status = ReservationConsumed
		return tx.Reservations().Save(ctx, reservation)
	})
	if err != nil {
		return nil, err
	}

	invalidateInventory(ctx, s.cache, tenantID)
	emitLevelChanged(ctx, s.events, level, movement)
	return movement, nil
}
