package inventory_test

import (
	"context"
	"testing"
	"time"

	"stockcore-system/internal/inventory"
	"stockcore-system/internal/inventory/memstore"
)

func TestBatchOrderings(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	key := testKey("loc-1")
	now := time.Now()

	soon := now.Add(24 * time.Hour)
	later := now.Add(48 * time.Hour)
	// Received oldest first; expiry deliberately out of receipt order, with
	// one non-perishable lot.
	seedBatch(t, store, key, "LOT-1", "10", "5", now.Add(-72*time.Hour), &later)
	seedBatch(t, store, key, "LOT-2", "10", "6", now.Add(-48*time.Hour), nil)
	seedBatch(t, store, key, "LOT-3", "10", "7", now.Add(-24*time.Hour), &soon)

	batches := inventory.NewBatches(store, nil, nil, nil)

	tests := []struct {
		order inventory.BatchOrder
		want  []string
	}{
		{inventory.OrderFIFO, []string{"LOT-1", "LOT-2", "LOT-3"}},
		{inventory.OrderLIFO, []string{"LOT-3", "LOT-2", "LOT-1"}},
		// FEFO: soonest expiry first, lots without expiry last.
		{inventory.OrderFEFO, []string{"LOT-3", "LOT-1", "LOT-2"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			got, err := batches.ListOrdered(ctx, key, tt.order)
			if err != nil {
				t.Fatalf("ListOrdered: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, number := range tt.want {
				if got[i].BatchNumber != number {
					t.Errorf("position %d = %s, want %s", i, got[i].BatchNumber, number)
				}
			}
		})
	}

	t.Run("unknown order rejected", func(t *testing.T) {
		_, err := batches.ListOrdered(ctx, key, inventory.BatchOrder("random"))
		if !inventory.IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})
}

func TestBatchConsume(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*inventory.Batches, *inventory.Batch) {
		store := memstore.New()
		batch := seedBatch(t, store, testKey("loc-1"), "LOT-1", "10", "5", time.Now(), nil)
		return inventory.NewBatches(store, nil, nil, nil), batch
	}

	t.Run("partial consume keeps the batch active", func(t *testing.T) {
		batches, batch := setup(t)

		got, err := batches.Consume(ctx, batch.TenantID, batch.ID, dec(t, "4"), "production")
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if !got.CurrentQuantity.Equal(dec(t, "6")) {
			t.Errorf("current quantity = %s, want 6", got.CurrentQuantity)
		}
		if got.Status != inventory.BatchActive {
			t.Errorf("status = %s, want active", got.Status)
		}
		if !got.OriginalQuantity.Equal(dec(t, "10")) {
			t.Errorf("original quantity changed: %s", got.OriginalQuantity)
		}
	})

	t.Run("full consume transitions to consumed", func(t *testing.T) {
		batches, batch := setup(t)

		got, err := batches.Consume(ctx, batch.TenantID, batch.ID, dec(t, "10"), "production")
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if got.Status != inventory.BatchConsumed {
			t.Errorf("status = %s, want consumed", got.Status)
		}

		_, err = batches.Consume(ctx, batch.TenantID, batch.ID, dec(t, "1"), "production")
		if !inventory.IsInvalidState(err) {
			t.Fatalf("consuming a consumed batch: want invalid_state, got %v", err)
		}
	})

	t.Run("over-consume rejected", func(t *testing.T) {
		batches, batch := setup(t)

		_, err := batches.Consume(ctx, batch.TenantID, batch.ID, dec(t, "11"), "production")
		if !inventory.IsInsufficient(err) {
			t.Fatalf("want insufficient, got %v", err)
		}
	})

	t.Run("non-positive quantity rejected", func(t *testing.T) {
		batches, batch := setup(t)

		_, err := batches.Consume(ctx, batch.TenantID, batch.ID, dec(t, "0"), "production")
		if !inventory.IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})
}

func TestBatchNumberConflict(t *testing.T) {
	store := memstore.New()
	key := testKey("loc-1")
	seedBatch(t, store, key, "LOT-1", "10", "5", time.Now(), nil)

	dup := &inventory.Batch{
		ID:          "other-id",
		TenantID:    key.TenantID,
		ProductID:   key.ProductID,
		Variant:     key.Variant,
		LocationID:  key.LocationID,
		BatchNumber: "LOT-1",
		Status:      inventory.BatchActive,
	}
	if err := store.Batches().Create(context.Background(), dup); !inventory.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}

	// The same number at another location is a different lot.
	other := testKey("loc-2")
	seedBatch(t, store, other, "LOT-1", "4", "5", time.Now(), nil)
}

func TestBatchRecall(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	events := &recordingNotifier{}
	batches := inventory.NewBatches(store, events, nil, nil)

	key := testKey("loc-1")
	other := testKey("loc-2")
	seedBatch(t, store, key, "LOT-BAD", "10", "5", time.Now(), nil)
	seedBatch(t, store, other, "LOT-BAD", "6", "5", time.Now(), nil)
	seedBatch(t, store, key, "LOT-OK", "10", "5", time.Now(), nil)

	recalled, err := batches.Recall(ctx, key.TenantID, "LOT-BAD", "qa")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if recalled != 2 {
		t.Errorf("recalled = %d, want 2 (both locations)", recalled)
	}
	if events.count(inventory.EventBatchRecalled) != 2 {
		t.Errorf("recall events = %d, want 2", events.count(inventory.EventBatchRecalled))
	}

	t.Run("recall is idempotent", func(t *testing.T) {
		again, err := batches.Recall(ctx, key.TenantID, "LOT-BAD", "qa")
		if err != nil {
			t.Fatalf("second recall: %v", err)
		}
		if again != 0 {
			t.Errorf("second recall touched %d batches, want 0", again)
		}
	})

	t.Run("recalled batch cannot be consumed", func(t *testing.T) {
		active, err := batches.ListOrdered(ctx, key, inventory.OrderFIFO)
		if err != nil {
			t.Fatalf("ListOrdered: %v", err)
		}
		if len(active) != 1 || active[0].BatchNumber != "LOT-OK" {
			t.Fatalf("active batches = %v, want only LOT-OK", active)
		}
	})
}

func TestExpireBatches(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	events := &recordingNotifier{}
	batches := inventory.NewBatches(store, events, nil, nil)

	key := testKey("loc-1")
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(48 * time.Hour)
	seedBatch(t, store, key, "LOT-OLD", "10", "5", now.Add(-96*time.Hour), &past)
	seedBatch(t, store, key, "LOT-FRESH", "10", "5", now.Add(-24*time.Hour), &future)
	seedBatch(t, store, key, "LOT-FOREVER", "10", "5", now.Add(-24*time.Hour), nil)

	expired, err := batches.ExpireBatches(ctx, key.TenantID, now)
	if err != nil {
		t.Fatalf("ExpireBatches: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	if events.count(inventory.EventBatchExpired) != 1 {
		t.Errorf("expiry events = %d, want 1", events.count(inventory.EventBatchExpired))
	}

	active, err := batches.ListOrdered(ctx, key, inventory.OrderFIFO)
	if err != nil {
		t.Fatalf("ListOrdered: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active batches = %d, want 2", len(active))
	}

	// Sweep again: nothing newly expired.
	expired, err = batches.ExpireBatches(ctx, key.TenantID, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if expired != 0 {
		t.Errorf("second sweep expired = %d, want 0", expired)
	}
}

func TestBatchWritesInvalidateCache(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	rc := &recordingCache{}
	batches := inventory.NewBatches(store, nil, rc, nil)

	key := testKey("loc-1")
	batch := seedBatch(t, store, key, "LOT-1", "10", "5", time.Now(), nil)

	if _, err := batches.Consume(ctx, key.TenantID, batch.ID, dec(t, "4"), "production"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := rc.count(key.TenantID + "/valuation"); got != 1 {
		t.Fatalf("valuation invalidations after consume = %d, want 1", got)
	}

	if _, err := batches.Recall(ctx, key.TenantID, "LOT-1", "tester"); err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if got := rc.count(key.TenantID + "/valuation"); got != 2 {
		t.Errorf("valuation invalidations after recall = %d, want 2", got)
	}
}
