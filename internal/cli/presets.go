package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/blendkit/internal/formula"
	"github.com/roach88/blendkit/internal/preset"
)

// NewPresetsCommand creates the presets command group.
func NewPresetsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage saved formulas",
		Long: `List, save, delete, export and import saved formulas.

The store backend and location come from the configuration file.`,
	}

	cmd.AddCommand(newPresetsListCommand(rootOpts))
	cmd.AddCommand(newPresetsSaveCommand(rootOpts))
	cmd.AddCommand(newPresetsDeleteCommand(rootOpts))
	cmd.AddCommand(newPresetsExportCommand(rootOpts))
	cmd.AddCommand(newPresetsImportCommand(rootOpts))

	return cmd
}

// withPresets opens the configured store, runs fn and closes the store.
func withPresets(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, store preset.Store, f *OutputFormatter) error) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	cfg, logger, err := opts.env(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err, nil)
	}
	store, err := openPresets(ctx, cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePresets, "failed to open preset store", err, nil)
	}
	defer closeStore(store, logger)

	return fn(ctx, store, formatter)
}

func closeStore(store preset.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Error("error closing preset store", "error", err)
	}
}

func presetFailure(f *OutputFormatter, message string, err error) error {
	exit := ExitFailure
	if errors.Is(err, preset.ErrNotFound) || errors.Is(err, preset.ErrInvalidFile) ||
		errors.Is(err, preset.ErrEmptyName) || errors.Is(err, preset.ErrEmptyExpr) {
		exit = ExitCommandError
	}
	return f.Fail(exit, ErrCodePresets, message, err, nil)
}

func printPresets(f *OutputFormatter, items []preset.Item) error {
	if f.Format == "json" {
		return f.Success(items)
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFORMULA")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.Name, it.Formula.Expr)
	}
	return tw.Flush()
}

func newPresetsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List saved formulas",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(rootOpts, cmd, func(ctx context.Context, store preset.Store, f *OutputFormatter) error {
				items, err := store.Load(ctx)
				if err != nil {
					return presetFailure(f, "failed to load presets", err)
				}
				return printPresets(f, items)
			})
		},
	}
}

func newPresetsSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <name> <formula>",
		Short: "Save a formula under a name",
		Long: `Validate a formula and save it under a name.

Example:
  blendkit presets save Darken '[min(rb,rs), min(gb,gs), min(bb,bs)]'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(rootOpts, cmd, func(ctx context.Context, store preset.Store, f *OutputFormatter) error {
				if _, err := formula.Compile(args[1]); err != nil {
					return compileFailure(f, err)
				}
				item, err := store.Save(ctx, args[0], args[1])
				if err != nil {
					return presetFailure(f, "failed to save preset", err)
				}
				if f.Format == "json" {
					return f.Success(item)
				}
				fmt.Fprintf(f.Writer, "✓ Saved %q (%s)\n", item.Name, item.ID)
				return nil
			})
		},
	}
}

func newPresetsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a saved formula",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(rootOpts, cmd, func(ctx context.Context, store preset.Store, f *OutputFormatter) error {
				if err := store.Delete(ctx, args[0]); err != nil {
					return presetFailure(f, "failed to delete preset", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(f.Writer, "✓ Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newPresetsExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved formulas as JSON",
		Long: `Export every saved formula as a versioned JSON file, to stdout or a file.

Example:
  blendkit presets export -o formulas.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(rootOpts, cmd, func(ctx context.Context, store preset.Store, f *OutputFormatter) error {
				data, err := store.Export(ctx)
				if err != nil {
					return presetFailure(f, "failed to export presets", err)
				}
				if output == "" {
					_, err := f.Writer.Write(append(data, '\n'))
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to write export", err, nil)
				}
				if f.Format == "json" {
					return f.Success(map[string]string{"output": output})
				}
				fmt.Fprintf(f.Writer, "✓ Exported to %s\n", output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func newPresetsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge formulas from an exported JSON file",
		Long: `Merge formulas from an exported JSON file into the store. Entries with the
same name and formula as an existing one replace it in place.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(rootOpts, cmd, func(ctx context.Context, store preset.Store, f *OutputFormatter) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to read import file", err, nil)
				}
				items, err := store.Import(ctx, data)
				if err != nil {
					return presetFailure(f, "failed to import presets", err)
				}
				if f.Format == "json" {
					return f.Success(items)
				}
				fmt.Fprintf(f.Writer, "✓ Imported; %d formula(s) saved\n", len(items))
				return nil
			})
		},
	}
}
