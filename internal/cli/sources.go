package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"raidwatch/internal/app"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured sources",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			srcs, err := app.Sources(cfg)
			if err != nil {
				return err
			}
			disabled := map[string]bool{}
			for _, d := range cfg.Sources {
				disabled[d.ID] = d.Disabled
			}
			rows := make([][]string, 0, len(srcs))
			for _, s := range srcs {
				state := "enabled"
				if disabled[s.ID] {
					state = "disabled"
				}
				rows = append(rows, []string{s.ID, string(s.Kind), string(s.Policy), s.Schedule, strings.Join(s.Channels, ","), state})
			}
			table(cmd.OutOrStdout(), []string{"ID", "KIND", "POLICY", "SCHEDULE", "CHANNELS", "STATE"}, rows)
			return nil
		},
	})
	return cmd
}
