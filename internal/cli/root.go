package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/blendkit/internal/config"
	"github.com/roach88/blendkit/internal/preset"
	"github.com/roach88/blendkit/internal/retry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string // empty uses config.DefaultPath
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the blendkit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "blendkit",
		Short: "blendkit - formula blend modes for layered images",
		Long: `Compile per-pixel blend formulas into sandboxed evaluators and composite
layers with them, from image files, layered documents or over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $XDG_CONFIG_HOME/blendkit/config.yaml)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewBlendCommand(opts))
	cmd.AddCommand(NewLayersCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewPresetsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns the output formatter bound to cmd's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// env loads the configuration and builds the stderr logger. The log level
// is debug with --verbose and the configured level otherwise.
func (o *RootOptions) env(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
	return cfg, logger, nil
}

// openPresets opens the configured preset store with the configured write
// backoff.
func openPresets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (preset.Store, error) {
	base, limit := cfg.WriteBackoff()
	policy := retry.PersistentWrite(base, limit)
	return preset.Open(ctx, cfg.Store.Backend, cfg.StorePath(),
		preset.WithLogger(logger),
		preset.WithWritePolicy(policy),
	)
}

// resolveFormula returns the formula text given directly or stored under
// the preset name.
func resolveFormula(ctx context.Context, cfg *config.Config, logger *slog.Logger, text, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return text, nil
	}
	store, err := openPresets(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("error closing preset store", "error", closeErr)
		}
	}()

	items, err := store.Load(ctx)
	if err != nil {
		return "", err
	}
	item, ok := preset.Find(items, name)
	if !ok {
		return "", fmt.Errorf("preset %q: %w", name, preset.ErrNotFound)
	}
	logger.Debug("preset resolved", "name", item.Name, "formula", item.Formula.Expr)
	return item.Formula.Expr, nil
}

// addFormulaFlags registers the mutually exclusive --formula and --preset
// flags; exactly one is required.
func addFormulaFlags(cmd *cobra.Command, text, name *string) {
	cmd.Flags().StringVarP(text, "formula", "f", "", "blend formula")
	cmd.Flags().StringVarP(name, "preset", "p", "", "name of a saved formula")
	cmd.MarkFlagsMutuallyExclusive("formula", "preset")
	cmd.MarkFlagsOneRequired("formula", "preset")
}
