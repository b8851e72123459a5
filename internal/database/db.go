package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"stockcore-system/internal/inventory"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		log.Fatal("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&inventory.InventoryLevel{},
		&inventory.InventoryMovement{},
		&inventory.Batch{},
		&inventory.Reservation{},
	); err != nil {
		return err
	}

	// Postgres treats NULLs as distinct, so a unique index over the nullable
	// variant column would admit duplicate no-variant keys. Coalescing the
	// variant makes (tenant, product, none, location) collide like any other
	// key, which is what levelRepo.Create's conflict mapping relies on.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_level_key
		ON inventory_levels (tenant_id, product_id, COALESCE(variant, ''), location_id)`).Error
}
