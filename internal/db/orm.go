package db

import (
	"context"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"edge-logger/internal/model"
)

const insertChunk = 500

// openORM opens SQLite through the pure-Go modernc driver.
func openORM(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.New(sqlite.Config{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// migrateORM ensures the telemetry table and its lookup index exist.
func migrateORM(db *gorm.DB) error {
	return db.AutoMigrate(&model.TelemetryRow{})
}

// closeORM closes the underlying SQL DB associated with the GORM connection.
func closeORM(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// insertRows writes rows in one transaction.
func insertRows(ctx context.Context, db *gorm.DB, rows []model.TelemetryRow) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, insertChunk).Error
	})
}
