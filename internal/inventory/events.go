package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	EventLevelChanged            = "inventory.level_changed"
	EventLowStock                = "inventory.low_stock"
	EventVarianceDetected        = "inventory.variance_detected"
	EventReconciliationCompleted = "inventory.reconciliation_completed"
	EventBatchRecalled           = "inventory.batch_recalled"
	EventBatchExpired            = "inventory.batch_expired"
)

// Notifier is the outbound event sink. Emit is fire-and-forget: mutation
// success never depends on it, implementations swallow their own failures.
type Notifier interface {
	Emit(ctx context.Context, event string, payload interface{})
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Emit(context.Context, string, interface{}) {}

// LogNotifier writes events to the structured log, for deployments without
// a message broker.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Emit(_ context.Context, event string, payload interface{}) {
	n.logger.Info("event emitted", zap.String("event", event), zap.Any("payload", payload))
}

// RedisNotifier publishes events on redis pub/sub channels, one channel per
// event name under the given prefix. Publish failures are logged and
// dropped.
type RedisNotifier struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{rdb: rdb, prefix: prefix, logger: logger}
}

func (n *RedisNotifier) Emit(ctx context.Context, event string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("event payload not serializable", zap.String("event", event), zap.Error(err))
		return
	}
	channel := fmt.Sprintf("%s:%s", n.prefix, event)
	if err := n.rdb.Publish(ctx, channel, body).Err(); err != nil {
		n.logger.Warn("event publish failed", zap.String("event", event), zap.Error(err))
	}
}

// LevelChangedPayload accompanies EventLevelChanged and EventLowStock.
type LevelChangedPayload struct {
	TenantID     string `json:"tenant_id"`
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id,omitempty"`
	LocationID   string `json:"location_id"`
	MovementID   string `json:"movement_id,omitempty"`
	MovementType string `json:"movement_type,omitempty"`
	Previous     string `json:"previous_level"`
	Current      string `json:"current_level"`
	ReorderPoint string `json:"reorder_point,omitempty"`
}

// VariancePayload accompanies EventVarianceDetected.
type VariancePayload struct {
	TenantID      string `json:"tenant_id"`
	ProductID     string `json:"product_id"`
	LocationID    string `json:"location_id"`
	Expected      string `json:"expected_quantity"`
	System        string `json:"system_quantity"`
	Variance      string `json:"variance"`
	VarianceValue string `json:"variance_value"`
}
