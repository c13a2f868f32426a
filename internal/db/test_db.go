package db

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing. The pool is
// pinned to one connection so every goroutine sees the same in-memory
// database and transactions serialize on it.
func SetupTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get test database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	// The resident directory is external in production.
	if err := db.AutoMigrate(&model.Resident{}); err != nil {
		return nil, fmt.Errorf("failed to migrate residents: %w", err)
	}

	return db, nil
}

// CleanupTestDB cleans up the test database
func CleanupTestDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get DB instance: %v", err)
		return
	}
	sqlDB.Close()
}

// TruncateAllTables removes all mutable data, keeping the catalog.
func TruncateAllTables(db *gorm.DB) error {
	tables := []string{"notifications", "permit_history", "permits", "residents"}
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return err
		}
	}
	return nil
}
