package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vk/reportbundle/internal/app"
	"github.com/vk/reportbundle/internal/config"
)

func newBundleCommand(opts *globalOptions) *cobra.Command {
	var (
		root    string
		noScore bool
	)

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Validate the working directory and write report.zip",
		Long: `Validate the working directory, score and rewrite results.csv, and package
results.csv, config.json, README.txt and every file under grids/ into
report.zip. The existing config.json is archived as-is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("root") {
					cfg.Workspace.Root = root
				}
				if noScore {
					cfg.Scoring.Enabled = false
				}
			})
			if err != nil {
				return err
			}

			a, err := app.NewApp(cmd.Context(), cmd.ErrOrStderr(), cfg)
			if err != nil {
				return failure(err)
			}
			defer a.Close()

			res, err := a.Bundle(cmd.Context())
			if err != nil {
				return failure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s created successfully!\n", filepath.Base(res.Archive.Path))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Working directory holding the result files.")
	cmd.Flags().BoolVar(&noScore, "no-score", false, "Skip scoring and archive results.csv unchanged.")
	return cmd
}
