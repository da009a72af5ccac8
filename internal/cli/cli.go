package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/reportbundle/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

func failure(err error) error {
	return &ExitError{Code: 1, Message: err.Error()}
}

// DefaultConfigFile is read when --config is not given; it may be absent.
const DefaultConfigFile = "report.hcl"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the command line in args. Command output goes to outW and
// logs to errW. Every returned error is an *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if strings.HasPrefix(err.Error(), "unknown command") || strings.HasPrefix(err.Error(), "unknown flag") {
		return usageError(err)
	}
	return failure(err)
}

// NewRootCommand builds the command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "reportbundle",
		Short: "Validate, score and package evaluation results",
		Long: `reportbundle validates a working directory of evaluation results
(results.csv, config.json, README.txt and grids/), scores every generated image
against its prompt and optional reference image, and packages everything into
report.zip.

Example:
  reportbundle bundle --root ./run-42
  reportbundle serve --listen :8000`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", DefaultConfigFile, "Path to the HCL configuration file.")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")

	root.AddCommand(
		newBundleCommand(opts),
		newServeCommand(opts),
		newHistoryCommand(opts),
		newCheckCommand(opts),
	)
	return root
}

// loadConfig reads the HCL file, applies flag overrides and validates the
// result. override is called with the command's own flags already parsed.
func (o *globalOptions) loadConfig(cmd *cobra.Command, override func(cfg *config.Config)) (*config.Config, error) {
	optional := !cmd.Flags().Changed("config")
	cfg, err := config.NewLoader().Load(cmd.Context(), o.configPath, optional)
	if err != nil {
		return nil, usageError(err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = strings.ToLower(o.logLevel)
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = strings.ToLower(o.logFormat)
	}
	if override != nil {
		override(&cfg)
	}

	validated, err := config.New(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return validated, nil
}
