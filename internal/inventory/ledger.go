package inventory

import (
	"context"

	"go.uber.org/zap"
)

// Ledger is the query side of the movement ledger. Appends happen inside the
// coordinator's transactions; this service never mutates level state.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

func (l *Ledger) Get(ctx context.Context, tenantID, id string) (*InventoryMovement, error) {
	return l.store.Movements().Get(ctx, tenantID, id)
}

func (l *Ledger) Query(ctx context.Context, tenantID string, filter MovementFilter, page Page) ([]InventoryMovement, int64, error) {
	return l.store.Movements().Query(ctx, tenantID, filter, page)
}

func (l *Ledger) FindPendingApproval(ctx context.Context, tenantID string) ([]InventoryMovement, error) {
	return l.store.Movements().FindPendingApproval(ctx, tenantID)
}

// ValidateMovement enforces the ledger write contract: a known movement
// type, a non-zero quantity whose sign matches the type's direction, and a
// new level equal to previous plus the signed quantity.
func ValidateMovement(m *InventoryMovement) error {
	if !m.MovementType.Valid() {
		return InvalidStatef("unknown movement type %q", m.MovementType)
	}
	if m.Quantity.IsZero() {
		return InvalidStatef("movement quantity must be non-zero")
	}
	switch m.MovementType.Direction() {
	case -1:
		if m.Quantity.IsPositive() {
			return InvalidStatef("outbound movement %s requires a negative quantity", m.MovementType)
		}
	case 1:
		if m.Quantity.IsNegative() {
			return InvalidStatef("inbound movement %s requires a positive quantity", m.MovementType)
		}
	}
	if !m.NewLevel.Equal(m.PreviousLevel.Add(m.Quantity)) {
		return InvalidStatef("movement level snapshot mismatch: %s + %s != %s",
			m.PreviousLevel, m.Quantity, m.NewLevel)
	}
	return nil
}

// appendMovement validates and appends within the caller's transaction.
func appendMovement(ctx context.Context, tx Store, m *InventoryMovement) error {
	if err := ValidateMovement(m); err != nil {
		return err
	}
	return tx.Movements().Append(ctx, m)
}
