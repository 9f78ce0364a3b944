// cmd/server/migrate.go
package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/javajoker/wildlife-licensing/internal/database"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Apply database migrations",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.Initialize(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logrus.Info("Migrations applied")
		return nil
	},
}

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Seed default groups and standard requirements",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.Initialize(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return database.SeedInitialData(db)
	},
}
