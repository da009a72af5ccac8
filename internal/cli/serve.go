package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vk/reportbundle/internal/app"
	"github.com/vk/reportbundle/internal/config"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		listen string
		root   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the report API over HTTP",
		Long: `Serve the report API. POST /generate_report with a JSON object of run
settings writes config.json, runs the bundle pipeline and returns report.zip.
The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("listen") {
					cfg.Server.Listen = listen
				}
				if cmd.Flags().Changed("root") {
					cfg.Workspace.Root = root
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.NewApp(ctx, cmd.ErrOrStderr(), cfg)
			if err != nil {
				return failure(err)
			}
			defer a.Close()

			if err := a.Serve(ctx); err != nil {
				return failure(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8000", "Address to listen on.")
	cmd.Flags().StringVar(&root, "root", ".", "Working directory holding the result files.")
	return cmd
}
