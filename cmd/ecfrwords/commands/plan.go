package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecfr-wordstats/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Enqueue a processing job per (title, version date) of the interest titles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		created, err := planner.New(st, cfg.InterestTitles).Plan(ctx)
		if err != nil {
			return err
		}
		log.Info().Int64("created", created).Ints("interest_titles", cfg.InterestTitles).Msg("plan complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
