package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"stockcore-system/internal/inventory"
	"stockcore-system/internal/inventory/memstore"
)

func seedBatch(t *testing.T, store *memstore.Store, key inventory.LevelKey, number, quantity, unitCost string, received time.Time, expiry *time.Time) *inventory.Batch {
	t.Helper()
	batch := &inventory.Batch{
		ID:               uuid.NewString(),
		TenantID:         key.TenantID,
		ProductID:        key.ProductID,
		Variant:          key.Variant,
		LocationID:       key.LocationID,
		BatchNumber:      number,
		OriginalQuantity: dec(t, quantity),
		CurrentQuantity:  dec(t, quantity),
		UnitCost:         dec(t, unitCost),
		ReceivedDate:     received,
		ExpiryDate:       expiry,
		QualityStatus:    inventory.QualityApproved,
		Status:           inventory.BatchActive,
	}
	if err := store.Batches().Create(context.Background(), batch); err != nil {
		t.Fatalf("seed batch %s: %v", number, err)
	}
	return batch
}

// Two receipt lots, ten units at cost 5 then ten at cost 7, with fifteen
// units on hand.
func seedTwoLots(t *testing.T) (*inventory.Valuation, inventory.LevelKey) {
	t.Helper()
	store := memstore.New()
	coord := inventory.NewCoordinator(store, nil, nil, nil)
	key := testKey("loc-1")
	registerLevel(t, coord, key)

	now := time.Now()
	seedBatch(t, store, key, "LOT-A", "10", "5", now.Add(-48*time.Hour), nil)
	seedBatch(t, store, key, "LOT-B", "10", "7", now.Add(-24*time.Hour), nil)

	if _, _, err := coord.UpdatePerpetualInventory(context.Background(), inventory.ChangeRequest{
		Key:          key,
		MovementType: inventory.MovementRecount,
		Quantity:     dec(t, "15"),
		Reason:       "initial count",
	}); err != nil {
		t.Fatalf("seeding on-hand quantity: %v", err)
	}

	return inventory.NewValuation(store, nil, nil), key
}

func TestValuateBatchWalk(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		method    inventory.ValuationMethod
		wantValue string
	}{
		// FIFO walks the cheap old lot first: 10*5 + 5*7.
		{"fifo", inventory.ValuationFIFO, "85"},
		// LIFO walks the newest lot first: 10*7 + 5*5.
		{"lifo", inventory.ValuationLIFO, "95"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valuation, key := seedTwoLots(t)

			result, err := valuation.Valuate(ctx, key, tt.method, nil)
			if err != nil {
				t.Fatalf("Valuate: %v", err)
			}
			if !result.TotalValue.Equal(dec(t, tt.wantValue)) {
				t.Errorf("total value = %s, want %s", result.TotalValue, tt.wantValue)
			}
			if !result.Quantity.Equal(dec(t, "15")) {
				t.Errorf("valued quantity = %s, want 15", result.Quantity)
			}
			if len(result.Batches) != 2 {
				t.Errorf("batch slices = %d, want 2", len(result.Batches))
			}
		})
	}
}

func TestValuateSpecific(t *testing.T) {
	valuation, key := seedTwoLots(t)

	result, err := valuation.Valuate(context.Background(), key, inventory.ValuationSpecific, nil)
	if err != nil {
		t.Fatalf("Valuate: %v", err)
	}
	// Specific identification values every lot at its own cost regardless of
	// the level's on-hand figure: 10*5 + 10*7.
	if !result.TotalValue.Equal(dec(t, "120")) {
		t.Errorf("total value = %s, want 120", result.TotalValue)
	}
	if !result.Quantity.Equal(dec(t, "20")) {
		t.Errorf("quantity = %s, want 20", result.Quantity)
	}
}

func TestValuateAverage(t *testing.T) {
	store := memstore.New()
	coord := inventory.NewCoordinator(store, nil, nil, nil)
	key := testKey("loc-1")
	registerLevel(t, coord, key)
	stock(t, coord, key, "10", "5")
	stock(t, coord, key, "5", "7")

	result, err := inventory.NewValuation(store, nil, nil).Valuate(context.Background(), key, inventory.ValuationAverage, nil)
	if err != nil {
		t.Fatalf("Valuate: %v", err)
	}
	// (10*5 + 5*7) / 15 = 5.6667 rounded to four places.
	if !result.UnitCost.Equal(dec(t, "5.6667")) {
		t.Errorf("unit cost = %s, want 5.6667", result.UnitCost)
	}
	if !result.Quantity.Equal(dec(t, "15")) {
		t.Errorf("quantity = %s, want 15", result.Quantity)
	}
}

func TestValuateEdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("zero stock has no valuation", func(t *testing.T) {
		store := memstore.New()
		coord := inventory.NewCoordinator(store, nil, nil, nil)
		key := testKey("loc-1")
		registerLevel(t, coord, key)

		result, err := inventory.NewValuation(store, nil, nil).Valuate(ctx, key, inventory.ValuationFIFO, nil)
		if err != nil {
			t.Fatalf("Valuate: %v", err)
		}
		if result != nil {
			t.Errorf("result = %+v, want nil", result)
		}
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		store := memstore.New()
		_, err := inventory.NewValuation(store, nil, nil).Valuate(ctx, testKey("loc-1"), inventory.ValuationMethod("psychic"), nil)
		if !inventory.IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})

	t.Run("as-of excludes later receipts", func(t *testing.T) {
		valuation, key := seedTwoLots(t)

		// Between the two receipts only LOT-A existed; ten units at cost 5.
		asOf := time.Now().Add(-36 * time.Hour)
		result, err := valuation.Valuate(ctx, key, inventory.ValuationFIFO, &asOf)
		if err != nil {
			t.Fatalf("Valuate: %v", err)
		}
		if !result.TotalValue.Equal(dec(t, "50")) {
			t.Errorf("total value = %s, want 50", result.TotalValue)
		}
		if !result.Quantity.Equal(dec(t, "10")) {
			t.Errorf("valued quantity = %s, want 10", result.Quantity)
		}
	})
}

func TestSummarizeLocation(t *testing.T) {
	store := memstore.New()
	coord := inventory.NewCoordinator(store, nil, nil, nil)

	first := testKey("loc-1")
	second := first
	second.ProductID = "prod-2"

	registerLevel(t, coord, first)
	registerLevel(t, coord, second)
	stock(t, coord, first, "10", "5")
	stock(t, coord, second, "4", "3")

	now := time.Now()
	seedBatch(t, store, first, "LOT-A", "10", "5", now.Add(-time.Hour), nil)
	seedBatch(t, store, second, "LOT-B", "4", "3", now.Add(-time.Hour), nil)

	summary, err := inventory.NewValuation(store, nil, nil).SummarizeLocation(context.Background(), first.TenantID, first.LocationID)
	if err != nil {
		t.Fatalf("SummarizeLocation: %v", err)
	}
	if len(summary.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(summary.Lines))
	}
	if !summary.TotalValue.Equal(dec(t, "62")) {
		t.Errorf("total value = %s, want 62", summary.TotalValue)
	}
}
