package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/statusexport/statusexport/internal/migrations"
)

const migrateTimeout = 30 * time.Second

func newMigrateCmd(opts Options) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the catalog database schema",
	}
	cmd.PersistentFlags().IntVar(&steps, "steps", 0, "number of migration steps; 0 means all for up, 1 for down")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), opts, func(ctx context.Context, m *migrationSession) error {
				applied, err := m.runner.Up(ctx, m.db, steps)
				printSteps(cmd.OutOrStdout(), "applied", applied)
				if err != nil {
					return fmt.Errorf("migration up failed: %w", err)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), opts, func(ctx context.Context, m *migrationSession) error {
				rolledBack, err := m.runner.Down(ctx, m.db, steps)
				printSteps(cmd.OutOrStdout(), "rolled back", rolledBack)
				if err != nil {
					return fmt.Errorf("migration down failed: %w", err)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), opts, func(ctx context.Context, m *migrationSession) error {
				status, err := m.runner.Status(ctx, m.db)
				if err != nil {
					return fmt.Errorf("migration status failed: %w", err)
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "catalog schema: %d applied, %d pending\n", len(status.Applied), len(status.Pending))
				for _, step := range status.Applied {
					_, _ = fmt.Fprintf(out, "  applied  %s\n", step)
				}
				for _, step := range status.Pending {
					_, _ = fmt.Fprintf(out, "  pending  %s\n", step)
				}
				for _, version := range status.Unknown {
					_, _ = fmt.Fprintf(out, "  unknown  %06d (not shipped with this binary)\n", version)
				}
				return nil
			})
		},
	})
	return cmd
}

func printSteps(out io.Writer, verb string, steps []migrations.Step) {
	_, _ = fmt.Fprintf(out, "catalog schema: %s %d step(s)\n", verb, len(steps))
	for _, step := range steps {
		_, _ = fmt.Fprintf(out, "  %s\n", step)
	}
}

type migrationSession struct {
	runner *migrations.Runner
	db     *sql.DB
}

func withMigrations(ctx context.Context, opts Options, fn func(ctx context.Context, m *migrationSession) error) error {
	cfg, err := loadConfig(opts, "")
	if err != nil {
		return err
	}
	if cfg.Catalog.DSN == "" {
		return fmt.Errorf("STATUSEXPORT_CATALOG_DSN is required")
	}

	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	db, err := opts.OpenDB(ctx, cfg.Catalog)
	if err != nil {
		return fmt.Errorf("database open error: %w", err)
	}
	defer func() { _ = db.Close() }()

	return fn(ctx, &migrationSession{runner: migrations.NewRunner(), db: db})
}
