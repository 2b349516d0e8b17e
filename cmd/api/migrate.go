package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/telehealth-api/internal/config"
	"github.com/jwalitptl/telehealth-api/internal/repository/postgres"
)

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(*configPath, func(m *postgres.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrator(*configPath, func(m *postgres.Migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(*configPath, func(m *postgres.Migrator) error {
				return printVersion(cmd, m)
			})
		},
	})

	return cmd
}

func withMigrator(configPath string, fn func(*postgres.Migrator) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer func(db *sqlx.DB) { _ = db.Close() }(db)

	m, err := postgres.NewMigrator(db)
	if err != nil {
		return err
	}
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *postgres.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		cmd.Printf("schema version %d (dirty)\n", v)
		return nil
	}
	cmd.Printf("schema version %d\n", v)
	return nil
}
