// Package memstore is a process-local inventory.Store backed by maps. It
// serializes all transactions behind one mutex and restores a snapshot when a
// transaction returns an error, which is enough fidelity for tests and for
// running the engine without Postgres.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"stockcore-system/internal/inventory"
)

type tables struct {
	levels       map[string]*inventory.InventoryLevel
	movements    []*inventory.InventoryMovement
	batches      map[string]*inventory.Batch
	reservations map[string]*inventory.Reservation
}

func newTables() *tables {
	return &tables{
		levels:       make(map[string]*inventory.InventoryLevel),
		batches:      make(map[string]*inventory.Batch),
		reservations: make(map[string]*inventory.Reservation),
	}
}

func (t *tables) snapshot() *tables {
	snap := &tables{
		levels:       make(map[string]*inventory.InventoryLevel, len(t.levels)),
		movements:    make([]*inventory.InventoryMovement, len(t.movements)),
		batches:      make(map[string]*inventory.Batch, len(t.batches)),
		reservations: make(map[string]*inventory.Reservation, len(t.reservations)),
	}
	for k, v := range t.levels {
		clone := *v
		snap.levels[k] = &clone
	}
	for i, v := range t.movements {
		clone := *v
		snap.movements[i] = &clone
	}
	for k, v := range t.batches {
		clone := *v
		snap.batches[k] = &clone
	}
	for k, v := range t.reservations {
		clone := *v
		snap.reservations[k] = &clone
	}
	return snap
}

// Store implements inventory.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *tables

	// inTx views share the parent's data and skip re-locking.
	parent *Store
}

func New() *Store {
	return &Store{data: newTables()}
}

func (s *Store) root() *Store {
	if s.parent != nil {
		return s.parent
	}
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(tx inventory.Store) error) error {
	if s.parent != nil {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.data.snapshot()
	tx := &Store{data: s.data, parent: s}
	if err := fn(tx); err != nil {
		s.data = snap
		return err
	}
	return nil
}

func (s *Store) Levels() inventory.LevelRepo             { return levelRepo{s} }
func (s *Store) Movements() inventory.MovementRepo       { return movementRepo{s} }
func (s *Store) Batches() inventory.BatchRepo            { return batchRepo{s} }
func (s *Store) Reservations() inventory.ReservationRepo { return reservationRepo{s} }

// withRead runs fn under the store mutex unless already inside a transaction.
func (s *Store) withRead(fn func(t *tables) error) error {
	if s.parent == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.root().data)
}

type levelRepo struct{ s *Store }

func (r levelRepo) Get(ctx context.Context, key inventory.LevelKey) (*inventory.InventoryLevel, error) {
	var out *inventory.InventoryLevel
	err := r.s.withRead(func(t *tables) error {
		level, ok := t.levels[key.String()]
		if !ok {
			return inventory.NotFoundf("inventory level %s not found", key)
		}
		clone := *level
		out = &clone
		return nil
	})
	return out, err
}

func (r levelRepo) GetForUpdate(ctx context.Context, key inventory.LevelKey) (*inventory.InventoryLevel, error) {
	return r.Get(ctx, key)
}

func (r levelRepo) Create(ctx context.Context, level *inventory.InventoryLevel) error {
	return r.s.withRead(func(t *tables) error {
		k := level.Key().String()
		if _, ok := t.levels[k]; ok {
			return inventory.Conflictf("inventory level %s already exists", level.Key())
		}
		now := time.Now()
		level.CreatedAt = now
		level.UpdatedAt = now
		clone := *level
		t.levels[k] = &clone
		return nil
	})
}

func (r levelRepo) Save(ctx context.Context, level *inventory.InventoryLevel) error {
	return r.s.withRead(func(t *tables) error {
		k := level.Key().String()
		stored, ok := t.levels[k]
		if !ok {
			return inventory.NotFoundf("inventory level %s not found", level.Key())
		}
		if stored.Version != level.Version {
			return inventory.ErrVersionConflict
		}
		level.Version++
		level.UpdatedAt = time.Now()
		clone := *level
		t.levels[k] = &clone
		return nil
	})
}

func (r levelRepo) ListByLocation(ctx context.Context, tenantID, locationID string) ([]inventory.InventoryLevel, error) {
	var out []inventory.InventoryLevel
	err := r.s.withRead(func(t *tables) error {
		for _, level := range t.levels {
			if level.TenantID == tenantID && level.LocationID == locationID && level.IsActive {
				out = append(out, *level)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, err
}

func (r levelRepo) ListBelowReorderPoint(ctx context.Context, tenantID string, locationID *string, page inventory.Page) ([]inventory.InventoryLevel, int64, error) {
	var matched []inventory.InventoryLevel
	err := r.s.withRead(func(t *tables) error {
		for _, level := range t.levels {
			if level.TenantID != tenantID || !level.IsActive {
				continue
			}
			if locationID != nil && level.LocationID != *locationID {
				continue
			}
			if level.ReorderPoint.IsPositive() && level.CurrentLevel.LessThanOrEqual(level.ReorderPoint) {
				matched = append(matched, *level)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].LocationID != matched[j].LocationID {
			return matched[i].LocationID < matched[j].LocationID
		}
		return matched[i].ProductID < matched[j].ProductID
	})
	total := int64(len(matched))
	return paginate(matched, page), total, nil
}

type movementRepo struct{ s *Store }

func (r movementRepo) Append(ctx context.Context, movement *inventory.InventoryMovement) error {
	return r.s.withRead(func(t *tables) error {
		for _, m := range t.movements {
			if m.ID == movement.ID {
				return inventory.Conflictf("movement %s already recorded", movement.ID)
			}
		}
		clone := *movement
		t.movements = append(t.movements, &clone)
		return nil
	})
}

func (r movementRepo) Get(ctx context.Context, tenantID, id string) (*inventory.InventoryMovement, error) {
	var out *inventory.InventoryMovement
	err := r.s.withRead(func(t *tables) error {
		for _, m := range t.movements {
			if m.TenantID == tenantID && m.ID == id {
				clone := *m
				out = &clone
				return nil
			}
		}
		return inventory.NotFoundf("movement %s not found", id)
	})
	return out, err
}

func (r movementRepo) Query(ctx context.Context, tenantID string, filter inventory.MovementFilter, page inventory.Page) ([]inventory.InventoryMovement, int64, error) {
	var matched []inventory.InventoryMovement
	err := r.s.withRead(func(t *tables) error {
		for _, m := range t.movements {
			if m.TenantID == tenantID && matchMovement(m, filter) {
				matched = append(matched, *m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return paginate(matched, page), total, nil
}

func matchMovement(m *inventory.InventoryMovement, f inventory.MovementFilter) bool {
	if f.ProductID != nil && m.ProductID != *f.ProductID {
		return false
	}
	if f.LocationID != nil && m.LocationID != *f.LocationID {
		return false
	}
	if f.Variant != nil && !m.Variant.Equal(*f.Variant) {
		return false
	}
	if f.MovementType != nil && m.MovementType != *f.MovementType {
		return false
	}
	if f.Status != nil && m.Status != *f.Status {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (r movementRepo) FindPendingApproval(ctx context.Context, tenantID string) ([]inventory.InventoryMovement, error) {
	status := inventory.MovementPendingApproval
	out, _, err := r.Query(ctx, tenantID, inventory.MovementFilter{Status: &status}, inventory.Page{})
	return out, err
}

func (r movementRepo) SetApproval(ctx context.Context, tenantID, id string, status inventory.MovementStatus, actorID string, at time.Time) error {
	return r.s.withRead(func(t *tables) error {
		for _, m := range t.movements {
			if m.TenantID == tenantID && m.ID == id {
				m.Status = status
				m.ApprovedBy = &actorID
				m.ApprovedAt = &at
				return nil
			}
		}
		return inventory.NotFoundf("movement %s not found", id)
	})
}

type batchRepo struct{ s *Store }

func batchNumberKey(tenantID, locationID, batchNumber string) string {
	return strings.Join([]string{tenantID, locationID, batchNumber}, "|")
}

func (r batchRepo) Create(ctx context.Context, batch *inventory.Batch) error {
	return r.s.withRead(func(t *tables) error {
		for _, b := range t.batches {
			if b.TenantID == batch.TenantID && b.LocationID == batch.LocationID && b.BatchNumber == batch.BatchNumber {
				return inventory.Conflictf("batch %s already exists at location %s", batch.BatchNumber, batch.LocationID)
			}
		}
		now := time.Now()
		batch.CreatedAt = now
		batch.UpdatedAt = now
		clone := *batch
		t.batches[batch.ID] = &clone
		return nil
	})
}

func (r batchRepo) Get(ctx context.Context, tenantID, id string) (*inventory.Batch, error) {
	var out *inventory.Batch
	err := r.s.withRead(func(t *tables) error {
		b, ok := t.batches[id]
		if !ok || b.TenantID != tenantID {
			return inventory.NotFoundf("batch %s not found", id)
		}
		clone := *b
		out = &clone
		return nil
	})
	return out, err
}

func (r batchRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*inventory.Batch, error) {
	return r.Get(ctx, tenantID, id)
}

func (r batchRepo) FindByNumber(ctx context.Context, key inventory.LevelKey, batchNumber string) (*inventory.Batch, error) {
	var out *inventory.Batch
	err := r.s.withRead(func(t *tables) error {
		for _, b := range t.batches {
			if b.TenantID == key.TenantID && b.LocationID == key.LocationID && b.BatchNumber == batchNumber {
				clone := *b
				out = &clone
				return nil
			}
		}
		return inventory.NotFoundf("batch %s not found at location %s", batchNumber, key.LocationID)
	})
	return out, err
}

func (r batchRepo) FindByNumberForUpdate(ctx context.Context, key inventory.LevelKey, batchNumber string) (*inventory.Batch, error) {
	return r.FindByNumber(ctx, key, batchNumber)
}

func (r batchRepo) ListActive(ctx context.Context, key inventory.LevelKey, order inventory.BatchOrder) ([]inventory.Batch, error) {
	var out []inventory.Batch
	err := r.s.withRead(func(t *tables) error {
		for _, b := range t.batches {
			if b.TenantID != key.TenantID || b.ProductID != key.ProductID || b.LocationID != key.LocationID {
				continue
			}
			if !b.Variant.Equal(key.Variant) || b.Status != inventory.BatchActive {
				continue
			}
			out = append(out, *b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBatches(out, order)
	return out, nil
}

// sortBatches orders lots for consumption walks; FEFO places lots with no
// expiry date last.
func sortBatches(batches []inventory.Batch, order inventory.BatchOrder) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch order {
		case inventory.OrderLIFO:
			return a.ReceivedDate.After(b.ReceivedDate)
		case inventory.OrderFEFO:
			switch {
			case a.ExpiryDate == nil && b.ExpiryDate == nil:
				return a.ReceivedDate.Before(b.ReceivedDate)
			case a.ExpiryDate == nil:
				return false
			case b.ExpiryDate == nil:
				return true
			case !a.ExpiryDate.Equal(*b.ExpiryDate):
				return a.ExpiryDate.Before(*b.ExpiryDate)
			}
			return a.ReceivedDate.Before(b.ReceivedDate)
		default:
			return a.ReceivedDate.Before(b.ReceivedDate)
		}
	})
}

func (r batchRepo) ListActiveByNumber(ctx context.Context, tenantID, batchNumber string) ([]inventory.Batch, error) {
	var out []inventory.Batch
	err := r.s.withRead(func(t *tables) error {
		for _, b := range t.batches {
			if b.TenantID == tenantID && b.BatchNumber == batchNumber && b.Status == inventory.BatchActive {
				out = append(out, *b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, err
}

func (r batchRepo) ListExpiring(ctx context.Context, tenantID string, asOf time.Time) ([]inventory.Batch, error) {
	var out []inventory.Batch
	err := r.s.withRead(func(t *tables) error {
		for _, b := range t.batches {
			if b.TenantID == tenantID && b.Status == inventory.BatchActive && b.IsExpired(asOf) {
				out = append(out, *b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r batchRepo) Save(ctx context.Context, batch *inventory.Batch) error {
	return r.s.withRead(func(t *tables) error {
		if _, ok := t.batches[batch.ID]; !ok {
			return inventory.NotFoundf("batch %s not found", batch.ID)
		}
		batch.UpdatedAt = time.Now()
		clone := *batch
		t.batches[batch.ID] = &clone
		return nil
	})
}

type reservationRepo struct{ s *Store }

func (r reservationRepo) Create(ctx context.Context, reservation *inventory.Reservation) error {
	return r.s.withRead(func(t *tables) error {
		if _, ok := t.reservations[reservation.ID]; ok {
			return inventory.Conflictf("reservation %s already exists", reservation.ID)
		}
		now := time.Now()
		reservation.CreatedAt = now
		reservation.UpdatedAt = now
		clone := *reservation
		t.reservations[reservation.ID] = &clone
		return nil
	})
}

func (r reservationRepo) Get(ctx context.Context, tenantID, id string) (*inventory.Reservation, error) {
	var out *inventory.Reservation
	err := r.s.withRead(func(t *tables) error {
		res, ok := t.reservations[id]
		if !ok || res.TenantID != tenantID {
			return inventory.NotFoundf("reservation %s not found", id)
		}
		clone := *res
		out = &clone
		return nil
	})
	return out, err
}

func (r reservationRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*inventory.Reservation, error) {
	return r.Get(ctx, tenantID, id)
}

func (r reservationRepo) Save(ctx context.Context, reservation *inventory.Reservation) error {
	return r.s.withRead(func(t *tables) error {
		if _, ok := t.reservations[reservation.ID]; !ok {
			return inventory.NotFoundf("reservation %s not found", reservation.ID)
		}
		reservation.UpdatedAt = time.Now()
		clone := *reservation
		t.reservations[reservation.ID] = &clone
		return nil
	})
}

func (r reservationRepo) ListActive(ctx context.Context, key inventory.LevelKey) ([]inventory.Reservation, error) {
	var out []inventory.Reservation
	err := r.s.withRead(func(t *tables) error {
		for _, res := range t.reservations {
			if res.TenantID != key.TenantID || res.ProductID != key.ProductID || res.LocationID != key.LocationID {
				continue
			}
			if !res.Variant.Equal(key.Variant) || res.Status != inventory.ReservationActive {
				continue
			}
			out = append(out, *res)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// paginate applies 1-based page-number tokens; a non-positive size returns
// everything.
func paginate[T any](items []T, page inventory.Page) []T {
	if page.Size <= 0 {
		return items
	}
	n := 1
	if page.Token != "" {
		if parsed, err := strconv.Atoi(page.Token); err == nil && parsed > 0 {
			n = parsed
		}
	}
	start := (n - 1) * page.Size
	if start >= len(items) {
		return nil
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
