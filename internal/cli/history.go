package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vk/reportbundle/internal/app"
	"github.com/vk/reportbundle/internal/config"
)

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		root   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently generated reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return usageError(fmt.Errorf("invalid limit %d: must be positive", limit))
			}
			cfg, err := opts.loadConfig(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("root") {
					cfg.Workspace.Root = root
				}
				cfg.Scoring.Enabled = false
			})
			if err != nil {
				return err
			}

			a, err := app.NewApp(cmd.Context(), cmd.ErrOrStderr(), cfg)
			if err != nil {
				return failure(err)
			}
			defer a.Close()

			reports, err := a.Reports(cmd.Context(), limit)
			if err != nil {
				return failure(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tROWS\tDETAIL")
			for _, r := range reports {
				detail := r.SHA256
				if r.Error != "" {
					detail = r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Status, r.Rows, detail)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports to list.")
	cmd.Flags().StringVar(&root, "root", ".", "Working directory holding the result files.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reports as JSON.")
	return cmd
}
