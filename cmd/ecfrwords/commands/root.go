// Package commands wires the CLI: ingest, build-path-map, plan, process and
// aggregate, sharing one configuration and database handle.
package commands

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ecfr-wordstats/internal/config"
	"ecfr-wordstats/internal/logging"
	"ecfr-wordstats/internal/store"
)

var (
	// Version and Commit are set at build time via ldflags.
	Version = "dev"
	Commit  = "none"

	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ecfrwords",
	Short: "eCFR word statistics pipeline",
	Long: `Ingests the eCFR catalog, plans per-version processing jobs, runs the
extraction and word-count workers, and aggregates the results per year and
agency.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load()
		if err != nil {
			logging.Init(verbose, "")
			log.Fatal().Err(err).Msg("could not load configuration")
		}
		logging.Init(verbose, cfg.LogDir())
		log.Debug().Str("version", Version).Str("commit", Commit).Msg("starting")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// openStore connects to Postgres and ensures the schema exists. The caller
// owns the returned handle.
func openStore(ctx context.Context) (*sqlx.DB, *store.Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	st := store.New(db)
	if err := st.InitSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return db, st, nil
}
