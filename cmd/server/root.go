package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"metarest/internal/config"
	"metarest/internal/logging"
	"metarest/internal/pg"
	"metarest/internal/store"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "metarest",
	Short: "Descriptor-driven REST backend",
	Long: `metarest serves generic CRUD endpoints for every registered module.

  metarest serve     # start the HTTP server
  metarest migrate   # create tables and indexes for all modules
  metarest seed      # run *.sql files from the seed directory
  metarest token     # issue a bearer token for local testing`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())
}

func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	return cfg, log, nil
}

// openStore connects to PostgreSQL, or falls back to the in-memory store
// when no database URL is configured. db is nil for the memory store.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, *sql.DB, error) {
	if cfg.DBURL == "" {
		log.Warn().Msg("no database configured, using in-memory store")
		return store.NewMemory(), nil, nil
	}
	db, err := pg.Open(ctx, cfg.DBURL)
	if err != nil {
		return nil, nil, err
	}
	return pg.NewStore(db), db, nil
}

func requireDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.DBURL == "" {
		return nil, fmt.Errorf("a database URL is required (--db or METAREST_DB_URL)")
	}
	return pg.Open(ctx, cfg.DBURL)
}
