package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/blendkit/internal/api"
	"github.com/roach88/blendkit/internal/config"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Serve formula compilation, compositing and the preset store over HTTP.
Logs are JSON lines on stderr. Stops on SIGINT or SIGTERM.

Example:
  blendkit serve --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := config.NewLogger(cmd.ErrOrStderr(), level)

	store, err := openPresets(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open preset store", err)
	}
	defer closeStore(store, logger)

	srv := api.NewServer(cfg.Server.Addr, store, logger,
		api.WithWorkers(cfg.Composite.Workers),
		api.WithMaxUploadMB(cfg.Server.MaxUploadMB),
	)
	if err := srv.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
