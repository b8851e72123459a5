package inventory

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// VariantID is the optional variant dimension of an inventory key. A product
// either has a concrete variant or none at all; lookups must treat the two
// cases explicitly rather than coalescing empty strings.
type VariantID struct {
	id    string
	valid bool
}

func SomeVariant(id string) VariantID {
	return VariantID{id: id, valid: id != ""}
}

func NoVariant() VariantID {
	return VariantID{}
}

func (v VariantID) Value() (driver.Value, error) {
	if !v.valid {
		return nil, nil
	}
	return v.id, nil
}

func (v *VariantID) Scan(value interface{}) error {
	if value == nil {
		*v = VariantID{}
		return nil
	}
	switch s := value.(type) {
	case string:
		*v = SomeVariant(s)
	case []byte:
		*v = SomeVariant(string(s))
	default:
		return fmt.Errorf("failed to scan VariantID: %v", value)
	}
	return nil
}

func (v VariantID) Get() (string, bool) {
	return v.id, v.valid
}

func (v VariantID) IsSome() bool {
	return v.valid
}

func (v VariantID) Equal(other VariantID) bool {
	return v.valid == other.valid && v.id == other.id
}

func (v VariantID) String() string {
	if !v.valid {
		return "-"
	}
	return v.id
}

func (v VariantID) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.id)
}

func (v *VariantID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = VariantID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = SomeVariant(s)
	return nil
}

// LevelKey identifies one inventory row: (tenant, product, variant-or-none,
// location). All mutating operations are serialized per key.
type LevelKey struct {
	TenantID   string
	ProductID  string
	Variant    VariantID
	LocationID string
}

func (k LevelKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.TenantID, k.ProductID, k.Variant, k.LocationID)
}

type ValuationMethod string

const (
	ValuationFIFO     ValuationMethod = "fifo"
	ValuationLIFO     ValuationMethod = "lifo"
	ValuationAverage  ValuationMethod = "average"
	ValuationSpecific ValuationMethod = "specific"
)

func (m ValuationMethod) Valid() bool {
	switch m {
	case ValuationFIFO, ValuationLIFO, ValuationAverage, ValuationSpecific:
		return true
	}
	return false
}

type MovementType string

const (
	MovementSale        MovementType = "sale"
	MovementPurchase    MovementType = "purchase"
	MovementAdjustment  MovementType = "adjustment"
	MovementTransferIn  MovementType = "transfer_in"
	MovementTransferOut MovementType = "transfer_out"
	MovementReturn      MovementType = "return"
	MovementDamage      MovementType = "damage"
	MovementTheft       MovementType = "theft"
	MovementExpired     MovementType = "expired"
	MovementRecount     MovementType = "recount"
	MovementProduction  MovementType = "production"
	MovementConsumption MovementType = "consumption"
)

// Direction returns -1 for outbound types, +1 for inbound types and 0 for
// types that apply their signed quantity directly (adjustment, recount).
func (t MovementType) Direction() int {
	switch t {
	case MovementSale, MovementTransferOut, MovementDamage, MovementTheft,
		MovementExpired, MovementConsumption:
		return -1
	case MovementPurchase, MovementTransferIn, MovementReturn, MovementProduction:
		return 1
	case MovementAdjustment, MovementRecount:
		return 0
	}
	return 0
}

func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementPurchase, MovementAdjustment, MovementTransferIn,
		MovementTransferOut, MovementReturn, MovementDamage, MovementTheft,
		MovementExpired, MovementRecount, MovementProduction, MovementConsumption:
		return true
	}
	return false
}

// MovementStatus tracks whether a recorded movement has been applied to the
// level store. Rejected movements stay in the ledger as audit entries.
type MovementStatus string

const (
	MovementApplied         MovementStatus = "applied"
	MovementPendingApproval MovementStatus = "pending_approval"
	MovementRejected        MovementStatus = "rejected"
)

type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchConsumed BatchStatus = "consumed"
	BatchExpired  BatchStatus = "expired"
	BatchRecalled BatchStatus = "recalled"
)

type QualityStatus string

const (
	QualityApproved   QualityStatus = "approved"
	QualityRejected   QualityStatus = "rejected"
	QualityQuarantine QualityStatus = "quarantine"
	QualityTesting    QualityStatus = "testing"
)

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationReleased ReservationStatus = "released"
	ReservationConsumed ReservationStatus = "consumed"
)

// BatchOrder selects the consumption ordering over active batches.
type BatchOrder string

const (
	OrderFIFO BatchOrder = "fifo"
	OrderLIFO BatchOrder = "lifo"
	OrderFEFO BatchOrder = "fefo"
)

func (o BatchOrder) Valid() bool {
	switch o {
	case OrderFIFO, OrderLIFO, OrderFEFO:
		return true
	}
	return false
}

// InventoryLevel is the current quantity triple for one key. AvailableLevel
// is always CurrentLevel - ReservedLevel; it is stored for query speed but
// recomputed on every write.
type InventoryLevel struct {
	// Key uniqueness is enforced by idx_level_key, an expression index
	// created during migration: a plain unique index over the nullable
	// variant column never fires for no-variant rows because the database
	// treats NULLs as distinct.
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string    `gorm:"size:36;index:idx_level_lookup;not null" json:"tenant_id"`
	ProductID  string    `gorm:"size:36;index:idx_level_lookup;not null" json:"product_id"`
	Variant    VariantID `gorm:"type:varchar(36)" json:"variant_id"`
	LocationID string    `gorm:"size:36;index:idx_level_lookup;not null" json:"location_id"`

	CurrentLevel   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_level"`
	AvailableLevel decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_level"`
	ReservedLevel  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reserved_level"`

	MinStockLevel   decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"min_stock_level"`
	MaxStockLevel   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"max_stock_level"`
	ReorderPoint    decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	ReorderQuantity decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"reorder_quantity"`

	ValuationMethod ValuationMethod `gorm:"size:20;default:fifo" json:"valuation_method"`
	AverageCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"average_cost"`
	TotalValue      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_value"`

	Version   int64     `gorm:"not null;default:0" json:"version"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *InventoryLevel) Key() LevelKey {
	return LevelKey{
		TenantID:   l.TenantID,
		ProductID:  l.ProductID,
		Variant:    l.Variant,
		LocationID: l.LocationID,
	}
}

// Recompute restores the available-level invariant after current or reserved
// quantities changed.
func (l *InventoryLevel) Recompute() {
	l.AvailableLevel = l.CurrentLevel.Sub(l.ReservedLevel)
}

// InventoryMovement is one append-only ledger row. PreviousLevel and NewLevel
// are captured at write time and never change; the approval stamp is the only
// permitted post-write mutation.
type InventoryMovement struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string    `gorm:"size:36;index;not null" json:"tenant_id"`
	ProductID  string    `gorm:"size:36;index;not null" json:"product_id"`
	Variant    VariantID `gorm:"type:varchar(36)" json:"variant_id"`
	LocationID string    `gorm:"size:36;index;not null" json:"location_id"`

	MovementType  MovementType        `gorm:"size:20;index;not null" json:"movement_type"`
	Quantity      decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost      decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"unit_cost"`
	TotalCost     decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"total_cost"`
	PreviousLevel decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"previous_level"`
	NewLevel      decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"new_level"`

	ReferenceType *string `gorm:"size:50" json:"reference_type,omitempty"`
	ReferenceID   *string `gorm:"size:100" json:"reference_id,omitempty"`
	BatchNumber   *string `gorm:"size:100" json:"batch_number,omitempty"`
	Reason        string  `gorm:"size:255" json:"reason"`

	RequiresApproval bool           `gorm:"default:false" json:"requires_approval"`
	Status           MovementStatus `gorm:"size:20;index;not null" json:"status"`
	ApprovedBy       *string        `gorm:"size:36" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`

	CreatedBy string    `gorm:"size:36;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (m *InventoryMovement) Key() LevelKey {
	return LevelKey{
		TenantID:   m.TenantID,
		ProductID:  m.ProductID,
		Variant:    m.Variant,
		LocationID: m.LocationID,
	}
}

// Batch is a receipt lot carrying its own unit cost. CurrentQuantity only
// decreases until a new receipt under the same number replenishes it.
type Batch struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string    `gorm:"size:36;index:idx_batch_number,unique;not null" json:"tenant_id"`
	ProductID  string    `gorm:"size:36;index;not null" json:"product_id"`
	Variant    VariantID `gorm:"type:varchar(36)" json:"variant_id"`
	LocationID string    `gorm:"size:36;index:idx_batch_number,unique;not null" json:"location_id"`

	BatchNumber      string          `gorm:"size:100;index:idx_batch_number,unique;not null" json:"batch_number"`
	OriginalQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"original_quantity"`
	CurrentQuantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"current_quantity"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`

	ReceivedDate  time.Time     `gorm:"not null;index" json:"received_date"`
	ExpiryDate    *time.Time    `gorm:"index" json:"expiry_date,omitempty"`
	QualityStatus QualityStatus `gorm:"size:20;default:approved" json:"quality_status"`
	Status        BatchStatus   `gorm:"size:20;index;default:active" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Batch) IsExpired(asOf time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(asOf)
}

// Reservation holds back available quantity without touching CurrentLevel.
type Reservation struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string    `gorm:"size:36;index;not null" json:"tenant_id"`
	ProductID  string    `gorm:"size:36;index;not null" json:"product_id"`
	Variant    VariantID `gorm:"type:varchar(36)" json:"variant_id"`
	LocationID string    `gorm:"size:36;index;not null" json:"location_id"`

	Quantity    decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"quantity"`
	ReservedFor string            `gorm:"size:100" json:"reserved_for"`
	ReferenceID *string           `gorm:"size:100" json:"reference_id,omitempty"`
	Status      ReservationStatus `gorm:"size:20;index;default:active" json:"status"`

	CreatedBy string    `gorm:"size:36;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Reservation) Key() LevelKey {
	return LevelKey{
		TenantID:   r.TenantID,
		ProductID:  r.ProductID,
		Variant:    r.Variant,
		LocationID: r.LocationID,
	}
}
