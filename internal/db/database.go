package db

import (
	"github.com/sirgawain0x/metoken-orchestrator/internal/config"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to Postgres and migrates the schema.
func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		logrus.Fatal("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logrus.Fatalf("Failed to connect database: %v", err)
	}

	logrus.Info("✅ Database connected successfully")

	if err := DB.AutoMigrate(
		&models.PendingOperation{}, // recoverable creation-attempt ledger
		&models.MeTokenRecord{},    // denormalized sync target for confirmed MeTokens
	); err != nil {
		logrus.Fatalf("AutoMigrate failed: %v", err)
	}

	logrus.Info("✅ Database schema migrated successfully")
}
