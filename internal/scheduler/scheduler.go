package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"stockcore-system/config"
	"stockcore-system/internal/inventory"
)

// Scheduler runs the periodic sweeps: expiring batches overnight and a
// low-stock scan during the day. Both iterate over the configured tenants.
type Scheduler struct {
	cron    *cron.Cron
	batches *inventory.Batches
	levels  *inventory.Levels
	events  inventory.Notifier
	cfg     config.SchedulerConfig
	logger  *zap.Logger
}

func NewScheduler(cfg config.SchedulerConfig, batches *inventory.Batches, levels *inventory.Levels, events inventory.Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = inventory.NopNotifier{}
	}

	return &Scheduler{
		cron:    cron.New(),
		batches: batches,
		levels:  levels,
		events:  events,
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler")

	if s.cfg.ExpirySweepSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ExpirySweepSpec, s.sweepExpiredBatches); err != nil {
			s.logger.Error("failed to schedule expiry sweep", zap.Error(err))
		}
	}
	if s.cfg.LowStockScanSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.LowStockScanSpec, s.scanLowStock); err != nil {
			s.logger.Error("failed to schedule low-stock scan", zap.Error(err))
		}
	}

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) sweepExpiredBatches() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now()
	for _, tenantID := range s.cfg.Tenants {
		expired, err := s.batches.ExpireBatches(ctx, tenantID, now)
		if err != nil {
			s.logger.Error("expiry sweep failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			continue
		}
		if expired > 0 {
			s.logger.Info("expiry sweep completed",
				zap.String("tenant_id", tenantID),
				zap.Int("expired", expired),
			)
		}
	}
}

func (s *Scheduler) scanLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, tenantID := range s.cfg.Tenants {
		levels, _, err := s.levels.ListBelowReorderPoint(ctx, tenantID, nil, inventory.Page{})
		if err != nil {
			s.logger.Error("low-stock scan failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			continue
		}

		for i := range levels {
			level := &levels[i]
			payload := inventory.LevelChangedPayload{
				TenantID:     level.TenantID,
				ProductID:    level.ProductID,
				LocationID:   level.LocationID,
				Current:      level.CurrentLevel.String(),
				ReorderPoint: level.ReorderPoint.String(),
			}
			if id, ok := level.Variant.Get(); ok {
				payload.VariantID = id
			}
			s.events.Emit(ctx, inventory.EventLowStock, payload)
		}

		if len(levels) > 0 {
			s.logger.Info("low-stock scan completed",
				zap.String("tenant_id", tenantID),
				zap.Int("below_reorder", len(levels)),
			)
		}
	}
}
