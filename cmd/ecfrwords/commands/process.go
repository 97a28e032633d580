package commands

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecfr-wordstats/internal/dispatch"
	"ecfr-wordstats/internal/ecfr"
	"ecfr-wordstats/internal/normalize"
	"ecfr-wordstats/internal/pathmap"
)

var (
	processWorkers   int
	processBatchSize int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the workers: claim jobs, extract subdivisions, persist word counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		paths, err := pathmap.LoadPathMap(cfg.PathMapPath())
		if err != nil {
			return err
		}

		transforms := normalize.NewTransformStore()
		if err := transforms.LoadFile(cfg.TransformMapPath()); err != nil {
			return err
		}

		// full-title XML responses run to hundreds of megabytes
		client := ecfr.NewClient(cfg.ECFRBaseURL, 15*time.Minute)

		d := dispatch.New(st, client, paths, transforms, dispatch.Config{
			Workers:          processWorkers,
			BatchSize:        processBatchSize,
			LockTTL:          cfg.LockTTL,
			TransformMapPath: cfg.TransformMapPath(),
		})
		log.Info().Int("workers", processWorkers).Int("batch_size", processBatchSize).Msg("processing started")
		return d.Run(ctx)
	},
}

func init() {
	processCmd.Flags().IntVar(&processWorkers, "workers", 3, "concurrent workers")
	processCmd.Flags().IntVar(&processBatchSize, "batch-size", 10, "jobs claimed per round")
	rootCmd.AddCommand(processCmd)
}
