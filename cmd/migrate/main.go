package main

import (
	"github.com/sirupsen/logrus"

	"growvia-service/internal/config"
	"growvia-service/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg.ConfigureLogging()

	// Run Migrations
	logrus.Info("Running database migrations...")
	if err := database.RunMigrations(cfg.Database.Driver, cfg.Database.MigrateURL()); err != nil {
		logrus.Fatalf("Migrations failed: %v", err)
	}

	logrus.Info("Migrations completed successfully!")
}
