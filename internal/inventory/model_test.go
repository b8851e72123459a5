package inventory

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestVariantID(t *testing.T) {
	t.Run("none round-trips as NULL", func(t *testing.T) {
		v := NoVariant()
		val, err := v.Value()
		if err != nil {
			t.Fatalf("Value: %v", err)
		}
		if val != nil {
			t.Errorf("Value() = %v, want nil", val)
		}

		var scanned VariantID
		if err := scanned.Scan(nil); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if scanned.IsSome() {
			t.Errorf("scanned NULL should be none")
		}
	})

	t.Run("some round-trips through sql and json", func(t *testing.T) {
		v := SomeVariant("red")
		val, err := v.Value()
		if err != nil {
			t.Fatalf("Value: %v", err)
		}
		if val != "red" {
			t.Errorf("Value() = %v, want red", val)
		}

		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var back VariantID
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if !back.Equal(v) {
			t.Errorf("round-tripped %v != %v", back, v)
		}
	})

	t.Run("empty string is none", func(t *testing.T) {
		if SomeVariant("").IsSome() {
			t.Errorf("SomeVariant of empty string should be none")
		}
	})

	t.Run("none and some never compare equal", func(t *testing.T) {
		if NoVariant().Equal(SomeVariant("x")) {
			t.Errorf("none == some(x)")
		}
	})
}

func TestMovementTypeDirection(t *testing.T) {
	tests := []struct {
		movementType MovementType
		want         int
	}{
		{MovementSale, -1},
		{MovementTransferOut, -1},
		{MovementDamage, -1},
		{MovementTheft, -1},
		{MovementExpired, -1},
		{MovementConsumption, -1},
		{MovementPurchase, 1},
		{MovementTransferIn, 1},
		{MovementReturn, 1},
		{MovementProduction, 1},
		{MovementAdjustment, 0},
		{MovementRecount, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.movementType), func(t *testing.T) {
			if got := tt.movementType.Direction(); got != tt.want {
				t.Errorf("Direction() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidateMovement(t *testing.T) {
	base := func() *InventoryMovement {
		return &InventoryMovement{
			ID:            "m-1",
			TenantID:      "tenant-1",
			ProductID:     "prod-1",
			LocationID:    "loc-1",
			MovementType:  MovementSale,
			Quantity:      decimal.NewFromInt(-4),
			PreviousLevel: decimal.NewFromInt(10),
			NewLevel:      decimal.NewFromInt(6),
			Status:        MovementApplied,
		}
	}

	t.Run("valid movement passes", func(t *testing.T) {
		if err := ValidateMovement(base()); err != nil {
			t.Fatalf("ValidateMovement: %v", err)
		}
	})

	t.Run("outbound with positive quantity rejected", func(t *testing.T) {
		m := base()
		m.Quantity = decimal.NewFromInt(4)
		m.NewLevel = decimal.NewFromInt(14)
		if err := ValidateMovement(m); !IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})

	t.Run("level arithmetic must hold", func(t *testing.T) {
		m := base()
		m.NewLevel = decimal.NewFromInt(7)
		if err := ValidateMovement(m); !IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})

	t.Run("zero quantity rejected", func(t *testing.T) {
		m := base()
		m.Quantity = decimal.Zero
		m.NewLevel = m.PreviousLevel
		if err := ValidateMovement(m); !IsInvalidState(err) {
			t.Fatalf("want invalid_state, got %v", err)
		}
	})
}
