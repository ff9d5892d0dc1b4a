package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"growvia-service/internal/models"
)

func TestForUpdateAddsLockingClauseOnMySQL(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)

	var wallet models.GrowviaWallet
	stmt := ForUpdate(db.Session(&gorm.Session{DryRun: true})).Where("user_id = ?", "u-1").First(&wallet).Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")
}

func TestForUpdateIsNoopOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	var wallet models.GrowviaWallet
	stmt := ForUpdate(db.Session(&gorm.Session{DryRun: true})).Where("user_id = ?", "u-1").First(&wallet).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))

	for _, m := range Models() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasIndex(&models.CampaignAffiliate{}, "idx_campaign_affiliate"))
	assert.True(t, db.Migrator().HasIndex(&models.PayoutOTP{}, "idx_payout_otp_pair"))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres"} {
		entries, err := migrationFS.ReadDir("migrations/" + driver)
		require.NoError(t, err)
		assert.Len(t, entries, 2, driver)
	}
}
