package db

import (
	"tradesmart/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Opportunity{},
		&models.ScanUsage{},
		&models.LinkedAccount{},
		&models.AlertSubscription{},
		&models.AccountSnapshot{},
		&models.AccountTrade{},
	)
}
