package db

import (
	"fmt"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SchemaMigration records an applied migration version.
type SchemaMigration struct {
	Version   int       `gorm:"primarykey;autoIncrement:false"`
	Name      string    `gorm:"type:varchar(120);not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

type migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

// migrations is append-only; never edit an entry once it has shipped.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create permit engine tables",
		Up: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(
				&model.BusinessType{},
				&model.Permit{},
				&model.PermitHistory{},
			)
		},
	},
	{
		Version: 2,
		Name:    "index permits by status and expiry",
		Up: func(tx *gorm.DB) error {
			return tx.Exec("CREATE INDEX IF NOT EXISTS idx_permits_status_expiry ON permits (status, expiry_date)").Error
		},
	},
	{
		Version: 3,
		Name:    "fee and renewal check constraints",
		Up: func(tx *gorm.DB) error {
			// sqlite cannot add constraints to an existing table
			if tx.Dialector.Name() != "postgres" {
				return nil
			}
			return tx.Exec(`ALTER TABLE permits ADD CONSTRAINT chk_permits_amounts CHECK (
				permit_fee >= 0 AND sanitary_fee >= 0 AND garbage_fee >= 0 AND
				total_fee >= 0 AND amount_paid >= 0 AND renewal_count >= 0)`).Error
		},
	},
	{
		Version: 4,
		Name:    "create notifications",
		Up: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&model.Notification{})
		},
	},
	{
		Version: 5,
		Name:    "seed business type catalog",
		Up:      seedBusinessTypes,
	},
}

// Migrate runs pending migrations against the global connection.
func Migrate() error {
	return RunMigrations(DB)
}

// RunMigrations applies every migration newer than the recorded schema
// version, each in its own transaction.
func RunMigrations(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		logger.Error("Failed to create schema_migrations table", err)
		return err
	}

	var applied []int
	if err := db.Model(&SchemaMigration{}).Pluck("version", &applied).Error; err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	count := 0
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			logger.Error("Migration failed", err, map[string]interface{}{
				"version": m.Version,
				"name":    m.Name,
			})
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		logger.Info("Migration applied", map[string]interface{}{
			"version": m.Version,
			"name":    m.Name,
		})
		count++
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"applied": count,
		"latest":  migrations[len(migrations)-1].Version,
	})
	return nil
}

// DefaultBusinessTypes is the catalog seeded on a fresh database.
var DefaultBusinessTypes = []model.BusinessType{
	{Name: "Retail", Description: "Sari-sari stores, general merchandise", BaseFee: decimal.RequireFromString("500.00")},
	{Name: "Food Service", Description: "Restaurants, carinderias, food stalls", BaseFee: decimal.RequireFromString("750.00")},
	{Name: "Services", Description: "Salons, repair shops, laundries", BaseFee: decimal.RequireFromString("600.00")},
	{Name: "Manufacturing", Description: "Small-scale production and processing", BaseFee: decimal.RequireFromString("1500.00")},
	{Name: "Wholesale", Description: "Distributors and dealers", BaseFee: decimal.RequireFromString("1200.00")},
}

func seedBusinessTypes(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&model.BusinessType{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Info("Business types already seeded, skipping...", map[string]interface{}{
			"existing_count": count,
		})
		return nil
	}

	types := make([]model.BusinessType, len(DefaultBusinessTypes))
	copy(types, DefaultBusinessTypes)
	if err := tx.Create(&types).Error; err != nil {
		return err
	}

	logger.Info("Business types seeded successfully", map[string]interface{}{
		"total": len(types),
	})
	return nil
}
