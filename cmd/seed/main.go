// Command seed loads users and systems from a YAML fixture into the database
// configured by the DB_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/bcnelson/labgroups/internal/config"
	"github.com/bcnelson/labgroups/internal/logger"
	"github.com/bcnelson/labgroups/internal/seed"
	"github.com/bcnelson/labgroups/internal/storage/sql"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Load users and systems from a YAML fixture",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "fixture file to load")
	return cmd
}

func run(cmd *cobra.Command, file string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	fh, err := os.Open(file)
	if err != nil {
		return err
	}
	defer fh.Close()

	fixture, err := seed.Decode(fh)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()

	res, err := seed.Apply(cmd.Context(), store, fixture, log)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "users: %d created, %d skipped\nsystems: %d created, %d skipped\n",
		res.UsersCreated, res.UsersSkipped, res.SystemsCreated, res.SystemsSkipped)
	return nil
}
