package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecfr-wordstats/internal/aggregate"
	"ecfr-wordstats/internal/normalize"
	"ecfr-wordstats/internal/pathmap"
	"ecfr-wordstats/internal/store"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Roll completed word counts up per year and agency and write the report artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		owners, err := pathmap.LoadAgencyMap(cfg.AgencyMapPath())
		if err != nil {
			return err
		}
		transforms := normalize.NewTransformStore()
		if err := transforms.LoadFile(cfg.TransformMapPath()); err != nil {
			return err
		}

		agg := aggregate.New(owners, transforms)
		records := 0
		err = st.StreamWordCounts(ctx, func(rec store.WordCountRecord) error {
			agg.Add(rec)
			records++
			return nil
		})
		if err != nil {
			return err
		}

		if err := aggregate.WriteArtifacts(cfg.ArtifactsDir(), agg.Finalize()); err != nil {
			return err
		}
		log.Info().Int("records", records).Str("dir", cfg.ArtifactsDir()).Msg("artifacts written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}
