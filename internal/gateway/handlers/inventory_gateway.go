package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stockcore-system/internal/gateway/middleware"
	"stockcore-system/internal/inventory"
)

// InventoryHTTPHandler exposes the engine's operations over JSON. Responses
// use the {"success": ..., "data"/"error": ...} envelope throughout.
type InventoryHTTPHandler struct {
	coordinator  *inventory.Coordinator
	levels       *inventory.Levels
	ledger       *inventory.Ledger
	batches      *inventory.Batches
	reservations *inventory.Reservations
	valuation    *inventory.Valuation
}

func NewInventoryHTTPHandler(
	coordinator *inventory.Coordinator,
	levels *inventory.Levels,
	ledger *inventory.Ledger,
	batches *inventory.Batches,
	reservations *inventory.Reservations,
	valuation *inventory.Valuation,
) *InventoryHTTPHandler {
	return &InventoryHTTPHandler{
		coordinator:  coordinator,
		levels:       levels,
		ledger:       ledger,
		batches:      batches,
		reservations: reservations,
		valuation:    valuation,
	}
}

// Helper functions
func (s *InventoryHTTPHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *InventoryHTTPHandler) created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *InventoryHTTPHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

// fail maps engine error kinds to HTTP status codes.
func (s *InventoryHTTPHandler) fail(c *gin.Context, err error) {
	switch {
	case inventory.IsNotFound(err):
		s.error(c, http.StatusNotFound, err.Error())
	case inventory.IsInvalidState(err):
		s.error(c, http.StatusUnprocessableEntity, err.Error())
	case inventory.IsConflict(err):
		s.error(c, http.StatusConflict, err.Error())
	case inventory.IsInsufficient(err):
		s.error(c, http.StatusConflict, err.Error())
	default:
		s.error(c, http.StatusInternalServerError, err.Error())
	}
}

func parseStringQuery(c *gin.Context, param string) *string {
	str := c.Query(param)
	if str == "" {
		return nil
	}
	return &str
}

func parseTimeQuery(c *gin.Context, param string) (*time.Time, error) {
	str := c.Query(param)
	if str == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseVariantQuery(c *gin.Context) inventory.VariantID {
	return inventory.SomeVariant(c.Query("variant_id"))
}

func buildPage(c *gin.Context) inventory.Page {
	pageSize := c.DefaultQuery("page_size", "20")
	size, _ := strconv.Atoi(pageSize)
	return inventory.Page{
		Size:  size,
		Token: c.Query("page_token"),
	}
}

func levelKeyFromQuery(c *gin.Context) (inventory.LevelKey, bool) {
	identity := middleware.IdentityFrom(c)
	key := inventory.LevelKey{
		TenantID:   identity.TenantID,
		ProductID:  c.Query("product_id"),
		Variant:    parseVariantQuery(c),
		LocationID: c.Query("location_id"),
	}
	return key, key.ProductID != "" && key.LocationID != ""
}

// --- Levels ---

type registerLevelRequest struct {
	ProductID       string              `json:"product_id" binding:"required"`
	VariantID       inventory.VariantID `json:"variant_id"`
	LocationID      string              `json:"location_id" binding:"required"`
	MinStockLevel   decimal.Decimal     `json:"min_stock_level"`
	MaxStockLevel   decimal.NullDecimal `json:"max_stock_level"`
	ReorderPoint    decimal.Decimal     `json:"reorder_point"`
	ReorderQuantity decimal.Decimal     `json:"reorder_quantity"`
	ValuationMethod string              `json:"valuation_method"`
}

func (s *InventoryHTTPHandler) RegisterLevel(c *gin.Context) {
	var req registerLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	identity := middleware.IdentityFrom(c)
	level, err := s.coordinator.RegisterLevel(c.Request.Context(), inventory.RegisterLevelRequest{
		Key: inventory.LevelKey{
			TenantID:   identity.TenantID,
			ProductID:  req.ProductID,
			Variant:    req.VariantID,
			LocationID: req.LocationID,
		},
		MinStockLevel:   req.MinStockLevel,
		MaxStockLevel:   req.MaxStockLevel,
		ReorderPoint:    req.ReorderPoint,
		ReorderQuantity: req.ReorderQuantity,
		ValuationMethod: inventory.ValuationMethod(req.ValuationMethod),
		ActorID:         identity.UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.created(c, level)
}

func (s *InventoryHTTPHandler) GetLevel(c *gin.Context) {
	key, ok := levelKeyFromQuery(c)
	if !ok {
		s.error(c, http.StatusBadRequest, "product_id and location_id are required")
		return
	}

	level, err := s.levels.Get(c.Request.Context(), key)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, level)
}

func (s *InventoryHTTPHandler) ListLevelsByLocation(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	locationID := c.Param("location_id")

	levels, err := s.levels.ListByLocation(c.Request.Context(), identity.TenantID, locationID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, levels)
}

func (s *InventoryHTTPHandler) ListBelowReorderPoint(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	levels, total, err := s.levels.ListBelowReorderPoint(
		c.Request.Context(),
		identity.TenantID,
		parseStringQuery(c, "location_id"),
		buildPage(c),
	)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, gin.H{"levels": levels, "total": total})
}

// --- Movements ---

type movementRequest struct {
	ProductID        string                 `json:"product_id" binding:"required"`
	VariantID        inventory.VariantID    `json:"variant_id"`
	LocationID       string                 `json:"location_id" binding:"required"`
	MovementType     string                 `json:"movement_type" binding:"required"`
	Quantity         decimal.Decimal        `json:"quantity" binding:"required"`
	UnitCost         decimal.NullDecimal    `json:"unit_cost"`
	ReferenceType    *string                `json:"reference_type"`
	ReferenceID      *string                `json:"reference_id"`
	BatchNumber      *string                `json:"batch_number"`
	NewBatch         *inventory.BatchInput  `json:"new_batch"`
	Reason           string                 `json:"reason"`
	RequiresApproval bool                   `json:"requires_approval"`
}

func (s *InventoryHTTPHandler) RecordMovement(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	identity := middleware.IdentityFrom(c)
	movement, level, err := s.coordinator.UpdatePerpetualInventory(c.Request.Context(), inventory.ChangeRequest{
		Key: inventory.LevelKey{
			TenantID:   identity.TenantID,
			ProductID:  req.ProductID,
			Variant:    req.VariantID,
			LocationID: req.LocationID,
		},
		MovementType:     inventory.MovementType(req.MovementType),
		Quantity:         req.Quantity,
		UnitCost:         req.UnitCost,
		ReferenceType:    req.ReferenceType,
		ReferenceID:      req.ReferenceID,
		BatchNumber:      req.BatchNumber,
		NewBatch:         req.NewBatch,
		Reason:           req.Reason,
		RequiresApproval: req.RequiresApproval,
		ActorID:          identity.UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.created(c, gin.H{"movement": movement, "level": level})
}

func (s *InventoryHTTPHandler) GetMovement(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	movement, err := s.ledger.Get(c.Request.Context(), identity.TenantID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, movement)
}

func (s *InventoryHTTPHandler) QueryMovements(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	filter := inventory.MovementFilter{
		ProductID:  parseStringQuery(c, "product_id"),
		LocationID: parseStringQuery(c, "location_id"),
	}
	if v := c.Query("variant_id"); v != "" {
		variant := inventory.SomeVariant(v)
		filter.Variant = &variant
	}
	if t := c.Query("movement_type"); t != "" {
		mt := inventory.MovementType(t)
		filter.MovementType = &mt
	}
	if st := c.Query("status"); st != "" {
		status := inventory.MovementStatus(st)
		filter.Status = &status
	}
	var err error
	if filter.From, err = parseTimeQuery(c, "from"); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid from timestamp")
		return
	}
	if filter.To, err = parseTimeQuery(c, "to"); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid to timestamp")
		return
	}

	movements, total, err := s.ledger.Query(c.Request.Context(), identity.TenantID, filter, buildPage(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, gin.H{"movements": movements, "total": total})
}

func (s *InventoryHTTPHandler) ListPendingApproval(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	movements, err := s.ledger.FindPendingApproval(c.Request.Context(), identity.TenantID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, movements)
}

func (s *InventoryHTTPHandler) ApproveMovement(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	movement, level, err := s.coordinator.ApproveMovement(c.Request.Context(), identity.TenantID, c.Param("id"), identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, gin.H{"movement": movement, "level": level})
}

func (s *InventoryHTTPHandler) RejectMovement(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	movement, err := s.coordinator.RejectMovement(c.Request.Context(), identity.TenantID, c.Param("id"), identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, movement)
}

// --- Transfers ---

type transferRequest struct {
	ProductID      string              `json:"product_id" binding:"required"`
	VariantID      inventory.VariantID `json:"variant_id"`
	FromLocationID string              `json:"from_location_id" binding:"required"`
	ToLocationID   string              `json:"to_location_id" binding:"required"`
	Quantity       decimal.Decimal     `json:"quantity" binding:"required"`
	BatchNumber    *string             `json:"batch_number"`
	Reason         string              `json:"reason"`
}

func (s *InventoryHTTPHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	identity := middleware.IdentityFrom(c)
	result, err := s.coordinator.Transfer(c.Request.Context(), inventory.TransferRequest{
		TenantID:       identity.TenantID,
		ProductID:      req.ProductID,
		Variant:        req.VariantID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Quantity:       req.Quantity,
		BatchNumber:    req.BatchNumber,
		Reason:         req.Reason,
		ActorID:        identity.UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.created(c, result)
}

// --- Reconciliation ---

type reconciliationRequest struct {
	LocationID  string                         `json:"location_id" binding:"required"`
	Items       []inventory.ReconciliationItem `json:"items" binding:"required"`
	ReferenceID *string                        `json:"reference_id"`
}

func (s *InventoryHTTPHandler) Reconcile(c *gin.Context) {
	var req reconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	identity := middleware.IdentityFrom(c)
	result, err := s.coordinator.PerformInventoryReconciliation(c.Request.Context(), inventory.ReconciliationRequest{
		TenantID:    identity.TenantID,
		LocationID:  req.LocationID,
		Items:       req.Items,
		ReferenceID: req.ReferenceID,
		ActorID:     identity.UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, result)
}

// --- Reservations ---

type reserveRequest struct {
	ProductID   string              `json:"product_id" binding:"required"`
	VariantID   inventory.VariantID `json:"variant_id"`
	LocationID  string              `json:"location_id" binding:"required"`
	Quantity    decimal.Decimal     `json:"quantity" binding:"required"`
	ReservedFor string              `json:"reserved_for" binding:"required"`
	ReferenceID *string             `json:"reference_id"`
}

func (s *InventoryHTTPHandler) Reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	identity := middleware.IdentityFrom(c)
	reservation, err := s.reservations.Reserve(c.Request.Context(), inventory.ReserveRequest{
		Key: inventory.LevelKey{
			TenantID:   identity.TenantID,
			ProductID:  req.ProductID,
			Variant:    req.VariantID,
			LocationID: req.LocationID,
		},
		Quantity:    req.Quantity,
		ReservedFor: req.ReservedFor,
		ReferenceID: req.ReferenceID,
		ActorID:     identity.UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.created(c, reservation)
}

func (s *InventoryHTTPHandler) ReleaseReservation(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	reservation, err := s.reservations.Release(c.Request.Context(), identity.TenantID, c.Param("id"), identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, reservation)
}

func (s *InventoryHTTPHandler) ConsumeReservation(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	movement, err := s.reservations.Consume(c.Request.Context(), identity.TenantID, c.Param("id"), identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, movement)
}

// --- Batches ---

func (s *InventoryHTTPHandler) ListBatches(c *gin.Context) {
	key, ok := levelKeyFromQuery(c)
	if !ok {
		s.error(c, http.StatusBadRequest, "product_id and location_id are required")
		return
	}

	order := inventory.BatchOrder(c.DefaultQuery("order", string(inventory.OrderFIFO)))
	batches, err := s.batches.ListOrdered(c.Request.Context(), key, order)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, batches)
}

type consumeBatchRequest struct {
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Reason   string          `json:"reason"`
}

func (s *InventoryHTTPHandler) ConsumeBatch(c *gin.Context) {
	var req consumeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	identity := middleware.IdentityFrom(c)
	batch, err := s.batches.Consume(c.Request.Context(), identity.TenantID, c.Param("id"), req.Quantity, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, batch)
}

func (s *InventoryHTTPHandler) RecallBatch(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	recalled, err := s.batches.Recall(c.Request.Context(), identity.TenantID, c.Param("number"), identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, gin.H{"batch_number": c.Param("number"), "recalled": recalled})
}

func (s *InventoryHTTPHandler) ExpireBatches(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	asOf := time.Now()
	if t, err := parseTimeQuery(c, "as_of"); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid as_of timestamp")
		return
	} else if t != nil {
		asOf = *t
	}

	expired, err := s.batches.ExpireBatches(c.Request.Context(), identity.TenantID, asOf)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, gin.H{"expired": expired})
}

// --- Valuation ---

func (s *InventoryHTTPHandler) Valuate(c *gin.Context) {
	key, ok := levelKeyFromQuery(c)
	if !ok {
		s.error(c, http.StatusBadRequest, "product_id and location_id are required")
		return
	}

	method := inventory.ValuationMethod(c.DefaultQuery("method", string(inventory.ValuationFIFO)))
	asOf, err := parseTimeQuery(c, "as_of")
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid as_of timestamp")
		return
	}

	result, err := s.valuation.Valuate(c.Request.Context(), key, method, asOf)
	if err != nil {
		s.fail(c, err)
		return
	}
	if result == nil {
		s.success(c, gin.H{"message": "no stock on hand"})
		return
	}

	s.success(c, result)
}

func (s *InventoryHTTPHandler) ValuationSummary(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	summary, err := s.valuation.SummarizeLocation(c.Request.Context(), identity.TenantID, c.Param("location_id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	s.success(c, summary)
}
