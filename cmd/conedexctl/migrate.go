package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conedex/conedex/internal/app/storage/postgres"
	"github.com/conedex/conedex/internal/platform/migrations"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(db *sql.DB) error {
				if err := migrations.Up(db); err != nil {
					return err
				}
				return opts.reportVersion(db)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			return opts.withDB(func(db *sql.DB) error {
				if err := migrations.Down(db, steps); err != nil {
					return err
				}
				return opts.reportVersion(db)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(opts.reportVersion)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func (o *rootOptions) withDB(fn func(db *sql.DB) error) error {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.UsePostgres() {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := postgres.Open(cfg.DatabaseURL, 2, 1, 0)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func (o *rootOptions) reportVersion(db *sql.DB) error {
	version, dirty, err := migrations.Version(db)
	if err != nil {
		return err
	}
	if dirty {
		o.out.Warning("schema version %d (dirty)", version)
		return nil
	}
	o.out.Success("schema version %d", version)
	return nil
}
