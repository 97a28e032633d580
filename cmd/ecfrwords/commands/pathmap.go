package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecfr-wordstats/internal/pathmap"
)

var pathMapCmd = &cobra.Command{
	Use:   "build-path-map",
	Short: "Derive the title path and agency ownership maps from ingested agencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		agencies, err := st.ListAgencies(ctx)
		if err != nil {
			return err
		}

		paths, owners := pathmap.Build(agencies)
		if err := paths.Save(cfg.PathMapPath()); err != nil {
			return err
		}
		if err := owners.Save(cfg.AgencyMapPath()); err != nil {
			return err
		}
		log.Info().Int("agencies", len(agencies)).Int("titles", len(paths)).
			Str("path_map", cfg.PathMapPath()).Str("agency_map", cfg.AgencyMapPath()).
			Msg("path maps written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pathMapCmd)
}
