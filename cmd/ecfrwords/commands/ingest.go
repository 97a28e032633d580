package commands

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecfr-wordstats/internal/ecfr"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch agencies, titles and title versions into the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		client := ecfr.NewClient(cfg.ECFRBaseURL, 30*time.Second)

		agencies, err := client.GetAgencies(ctx)
		if err != nil {
			return err
		}
		flat := ecfr.FlattenAgencies(agencies)
		if err := st.UpsertAgencies(ctx, flat); err != nil {
			return err
		}
		log.Info().Int("top_level", len(agencies)).Int("total", len(flat)).Msg("agencies ingested")

		titles, err := client.GetTitles(ctx)
		if err != nil {
			return err
		}
		if err := st.UpsertTitles(ctx, titles); err != nil {
			return err
		}
		log.Info().Int("titles", len(titles)).Msg("titles ingested")

		for _, t := range titles {
			if t.Reserved {
				continue
			}
			versions, err := client.GetTitleVersions(ctx, t.Number)
			if err != nil {
				return err
			}
			if err := st.UpsertTitleVersions(ctx, t.Number, versions); err != nil {
				return err
			}
			log.Info().Int("title", t.Number).Int("versions", len(versions)).Msg("title versions ingested")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
