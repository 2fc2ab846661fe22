package cli

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"raidwatch/internal/app"
	"raidwatch/internal/watcher"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [source-id...]",
		Short: "Run one tick of the given sources (all enabled sources when none)",
		Long: "Fetch each source once, announce what changed and update stored state. " +
			"No gateway connection is opened. With --dry-run messages are printed instead of posted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dry, _ := cmd.Flags().GetBool("dry-run")
			cfg, err := app.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			results, err := app.Check(ctx, cfg, app.CheckOptions{IDs: args, DryRun: dry, Out: cmd.OutOrStdout()})
			printResults(cmd, results)
			return err
		},
	}
	cmd.Flags().Bool("dry-run", false, "print messages instead of posting them")
	return cmd
}

func printResults(cmd *cobra.Command, results []watcher.Result) {
	if len(results) == 0 {
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		rows = append(rows, []string{
			r.Source,
			string(r.Policy),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Announced),
			strconv.FormatBool(r.Changed),
			r.Took.Round(time.Millisecond).String(),
			status,
		})
	}
	table(cmd.OutOrStdout(), []string{"SOURCE", "POLICY", "FETCHED", "ANNOUNCED", "CHANGED", "TOOK", "STATUS"}, rows)
}
