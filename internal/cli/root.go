// Package cli implements the statusexport command line.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/statusexport/statusexport/internal/config"
)

const serviceName = "statusexport"

type Options struct {
	Lookup config.LookupFunc
	Stdout io.Writer
	Stderr io.Writer
	// Wire builds the stage implementations for a run.
	Wire WireFunc
	// OpenDB opens the catalog database for migrations.
	OpenDB func(ctx context.Context, cfg config.CatalogConfig) (*sql.DB, error)
}

func (o Options) withDefaults() Options {
	if o.Lookup == nil {
		o.Lookup = os.LookupEnv
	}
	if o.Stdout == nil {
		o.Stdout = io.Discard
	}
	if o.Stderr == nil {
		o.Stderr = io.Discard
	}
	if o.Wire == nil {
		o.Wire = Wire
	}
	if o.OpenDB == nil {
		o.OpenDB = openCatalogDB
	}
	return o
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	opts = opts.withDefaults()
	rootCmd := newRootCmd(opts)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(opts.Stdout)
	rootCmd.SetErr(opts.Stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(opts Options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Export the catalog rows matching a status as Parquet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	return rootCmd
}

// loadConfig reads configuration, letting a --config flag take the place of
// the job file environment variable.
func loadConfig(opts Options, jobFile string) (config.Config, error) {
	lookup := opts.Lookup
	if jobFile != "" {
		lookup = func(key string) (string, bool) {
			if key == config.JobFileKey {
				return jobFile, true
			}
			return opts.Lookup(key)
		}
	}
	cfg, err := config.Load(serviceName, lookup)
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
