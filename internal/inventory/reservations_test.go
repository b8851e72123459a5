package inventory_test

import (
	"context"
	"testing"
	"time"

	"stockcore-system/internal/cache"
	"stockcore-system/internal/inventory"
	"stockcore-system/internal/inventory/memstore"
)

// recordingCache records invalidations so tests can assert writers drop what
// readers might have cached.
type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Get(context.Context, cache.Key, interface{}) bool           { return false }
func (c *recordingCache) Set(context.Context, cache.Key, interface{}, time.Duration) {}

func (c *recordingCache) InvalidateEntity(_ context.Context, tenant, entity string) {
	c.invalidated = append(c.invalidated, tenant+"/"+entity)
}

func (c *recordingCache) count(pair string) int {
	n := 0
	for _, p := range c.invalidated {
		if p == pair {
			n++
		}
	}
	return n
}

func setupReservations(t *testing.T) (*inventory.Reservations, *memstore.Store, inventory.LevelKey) {
	t.Helper()
	store := memstore.New()
	coord := inventory.NewCoordinator(store, nil, nil, nil)
	key := testKey("loc-1")
	registerLevel(t, coord, key)
	stock(t, coord, key, "20", "")
	return inventory.NewReservations(store, nil, nil, nil), store, key
}

func reserve(t *testing.T, svc *inventory.Reservations, key inventory.LevelKey, quantity string) *inventory.Reservation {
	t.Helper()
	reservation, err := svc.Reserve(context.Background(), inventory.ReserveRequest{
		Key:         key,
		Quantity:    dec(t, quantity),
		ReservedFor: "order-1",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	return reservation
}

func TestReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("holds available without touching current", func(t *testing.T) {
		svc, store, key := setupReservations(t)

		reserve(t, svc, key, "8")

		level, err := inventory.NewLevels(store, nil, nil).Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !level.CurrentLevel.Equal(dec(t, "20")) {
			t.Errorf("current level = %s, want 20", level.CurrentLevel)
		}
		if !level.ReservedLevel.Equal(dec(t, "8")) {
			t.Errorf("reserved level = %s, want 8", level.ReservedLevel)
		}
		if !level.AvailableLevel.Equal(dec(t, "12")) {
			t.Errorf("available level = %s, want 12", level.AvailableLevel)
		}
	})

	t.Run("insufficient available rejected", func(t *testing.T) {
		svc, _, key := setupReservations(t)
		reserve(t, svc, key, "15")

		_, err := svc.Reserve(ctx, inventory.ReserveRequest{
			Key:         key,
			Quantity:    dec(t, "6"),
			ReservedFor: "order-2",
		})
		if !inventory.IsInsufficient(err) {
			t.Fatalf("want insufficient, got %v", err)
		}
	})

	t.Run("non-positive quantity rejected", func(t *testing.T) {
		svc, _, key := setupReservations(t)

		_, err := svc.Reserve(ctx, inventory.ReserveRequest{
			Key:      key,
			Quantity: dec(t, "-1"),
		})
		if !inventory.IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	svc, store, key := setupReservations(t)
	reservation := reserve(t, svc, key, "8")

	released, err := svc.Release(ctx, key.TenantID, reservation.ID, "tester")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status != inventory.ReservationReleased {
		t.Errorf("status = %s, want released", released.Status)
	}

	level, err := inventory.NewLevels(store, nil, nil).Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !level.AvailableLevel.Equal(dec(t, "20")) {
		t.Errorf("available level = %s, want 20", level.AvailableLevel)
	}

	t.Run("double release is rejected", func(t *testing.T) {
		_, err := svc.Release(ctx, key.TenantID, reservation.ID, "tester")
		if !inventory.IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}

		// The hold must not be returned twice.
		level, err := inventory.NewLevels(store, nil, nil).Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !level.ReservedLevel.Equal(dec(t, "0")) {
			t.Errorf("reserved level = %s, want 0", level.ReservedLevel)
		}
	})
}

func TestConsumeReservation(t *testing.T) {
	ctx := context.Background()
	svc, store, key := setupReservations(t)
	reservation := reserve(t, svc, key, "8")

	movement, err := svc.Consume(ctx, key.TenantID, reservation.ID, "tester")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if movement.MovementType != inventory.MovementSale {
		t.Errorf("movement type = %s, want sale", movement.MovementType)
	}
	if !movement.Quantity.Equal(dec(t, "-8")) {
		t.Errorf("movement quantity = %s, want -8", movement.Quantity)
	}

	level, err := inventory.NewLevels(store, nil, nil).Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !level.CurrentLevel.Equal(dec(t, "12")) {
		t.Errorf("current level = %s, want 12", level.CurrentLevel)
	}
	if !level.ReservedLevel.Equal(dec(t, "0")) {
		t.Errorf("reserved level = %s, want 0", level.ReservedLevel)
	}
	// Availability is unchanged by consumption: the held stock leaves both
	// current and reserved.
	if !level.AvailableLevel.Equal(dec(t, "12")) {
		t.Errorf("available level = %s, want 12", level.AvailableLevel)
	}

	t.Run("consumed reservation cannot be released", func(t *testing.T) {
		_, err := svc.Release(ctx, key.TenantID, reservation.ID, "tester")
		if !inventory.IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})

	t.Run("consumed reservation cannot be consumed again", func(t *testing.T) {
		_, err := svc.Consume(ctx, key.TenantID, reservation.ID, "tester")
		if !inventory.IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})
}

func TestReservationWritesInvalidateCache(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	coord := inventory.NewCoordinator(store, nil, nil, nil)
	key := testKey("loc-1")
	registerLevel(t, coord, key)
	stock(t, coord, key, "20", "")

	rc := &recordingCache{}
	svc := inventory.NewReservations(store, nil, rc, nil)

	first := reserve(t, svc, key, "8")
	if got := rc.count(key.TenantID + "/levels"); got != 1 {
		t.Fatalf("level invalidations after reserve = %d, want 1", got)
	}
	if got := rc.count(key.TenantID + "/valuation"); got != 1 {
		t.Fatalf("valuation invalidations after reserve = %d, want 1", got)
	}

	if _, err := svc.Release(ctx, key.TenantID, first.ID, "tester"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := rc.count(key.TenantID + "/levels"); got != 2 {
		t.Errorf("level invalidations after release = %d, want 2", got)
	}

	second := reserve(t, svc, key, "5")
	if _, err := svc.Consume(ctx, key.TenantID, second.ID, "tester"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := rc.count(key.TenantID + "/levels"); got != 4 {
		t.Errorf("level invalidations after consume = %d, want 4", got)
	}
}
