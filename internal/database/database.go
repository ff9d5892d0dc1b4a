package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"growvia-service/internal/config"
	"growvia-service/internal/models"
)

var DB *gorm.DB

// Connect opens the configured database and applies pool settings.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql", "":
		dialector = mysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	DB = db
	logrus.WithField("driver", cfg.Driver).Info("Database connection established")
	return db, nil
}

// Models lists every table this service reads or writes.
func Models() []interface{} {
	return []interface{}{
		&models.Campaign{},
		&models.OrganizationMember{},
		&models.PointsWallet{},
		&models.CampaignAffiliate{},
		&models.CommissionLedgerEntry{},
		&models.GrowviaWallet{},
		&models.GrowviaWalletTransaction{},
		&models.PayoutMethod{},
		&models.PayoutOTP{},
		&models.PayoutRequest{},
		&models.KYCRecord{},
	}
}

// Migrate runs gorm AutoMigrate; production schemas go through cmd/migrate.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logrus.Info("Database migration completed")
	return nil
}

// ForUpdate locks the selected rows until the surrounding transaction ends.
// SQLite has no row locks; its writers are already serialized.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
