package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vk/reportbundle/internal/config"
	"github.com/vk/reportbundle/internal/results"
	"github.com/vk/reportbundle/internal/workspace"
)

func newCheckCommand(opts *globalOptions) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "check [CSV]",
		Short: "Check that a results CSV has the required columns",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("root") {
					cfg.Workspace.Root = root
				}
			})
			if err != nil {
				return err
			}

			layout := workspace.DefaultLayout(cfg.Workspace.Root)
			layout.Results = cfg.Workspace.Results
			path := layout.ResultsPath()
			if len(args) == 1 {
				path = args[0]
			}

			table, err := results.ReadFile(path)
			if err != nil {
				return failure(err)
			}
			if missing := table.MissingColumns(results.RequiredColumns...); len(missing) > 0 {
				return failure(&workspace.MissingColumnsError{Path: path, Columns: missing})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ CSV schema test passed!")
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Working directory holding the result files.")
	return cmd
}
