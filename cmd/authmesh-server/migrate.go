package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/internal/storage/postgres"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply PostgreSQL schema migrations",
		Subcommands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Flags:  configFlags(),
				Action: migrateAction("up"),
			},
			{
				Name:   "down",
				Usage:  "Revert all migrations",
				Flags:  configFlags(),
				Action: migrateAction("down"),
			},
		},
	}
}

func migrateAction(direction string) cli.ActionFunc {
	return func(c *cli.Context) error {
		// only postgres has a schema to migrate
		if err := c.Set("storage-backend", storage.BackendPostgres); err != nil {
			return err
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := postgres.Migrate(cfg.Storage.PostgresDSN, direction); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Migrations applied (%s)\n", direction)
		return nil
	}
}
