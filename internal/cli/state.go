package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"raidwatch/internal/app"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or clear stored source state",
		Long:  "Operates on the store directly. Stop the running bot first when using the file driver.",
	}
	cmd.AddCommand(newStateShowCmd(), newStateResetCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <source-id>",
		Short: "Print the stored records of a source as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			pipe, err := app.OpenState(cfg)
			if err != nil {
				return err
			}
			defer pipe.Close()

			recs, err := pipe.State.Dump(context.Background(), args[0])
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no stored state for %q\n", args[0])
				return nil
			}
			keys := make([]string, 0, len(recs))
			for k := range recs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, k := range keys {
				if err := enc.Encode(map[string]json.RawMessage{k: recs[k]}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newStateResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <source-id>",
		Short: "Delete every stored record of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			pipe, err := app.OpenState(cfg)
			if err != nil {
				return err
			}
			defer pipe.Close()

			n, err := pipe.State.Reset(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d stored keys cleared\n", args[0], n)
			return nil
		},
	}
}
