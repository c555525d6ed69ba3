package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/blendkit/internal/apply"
	"github.com/roach88/blendkit/internal/composite"
	"github.com/roach88/blendkit/internal/document"
	"github.com/roach88/blendkit/internal/formula"
	"github.com/roach88/blendkit/internal/retry"
)

// LayerInfo is one row of the layers listing.
type LayerInfo struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Bounds composite.Rect `json:"bounds"`
}

// NewLayersCommand creates the layers command.
func NewLayersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "layers <document.yaml>",
		Short: "List the layers of a document",
		Long: `List the layers of a document with their absolute bounds.

Example:
  blendkit layers ./poster/document.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayers(rootOpts, args[0], cmd)
		},
	}
}

func runLayers(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	doc, err := document.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "failed to open document", err, nil)
	}
	layers, err := doc.Layers()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDocument, "failed to read layers", err, nil)
	}

	infos := make([]LayerInfo, 0, len(layers))
	for _, l := range layers {
		infos = append(infos, LayerInfo{ID: l.ID, Name: l.Name, Bounds: l.Bounds})
	}
	if formatter.Format == "json" {
		return formatter.Success(infos)
	}

	canvas := doc.Canvas()
	fmt.Fprintf(formatter.Writer, "Canvas %dx%d, %d layer(s)\n\n", canvas.Width(), canvas.Height(), len(infos))
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBOUNDS")
	for _, l := range infos {
		bounds := l.Bounds.String()
		if l.Bounds.Empty() {
			bounds = "(empty)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.ID, l.Name, bounds)
	}
	return tw.Flush()
}

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Base    string
	Blend   string
	Name    string
	Formula string
	Preset  string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <document.yaml>",
		Short: "Blend two layers of a document into a new layer",
		Long: `Blend two layers of a document with a formula and write the result to a
new layer covering the union of both layers.

Example:
  blendkit apply ./poster/document.yaml --base 1 --blend 2 --preset Multiply
  blendkit apply ./poster/document.yaml --base 1 --blend 1 -f '[1-rb, 1-gb, 1-bb]' --name Inverted`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "base layer id (required)")
	cmd.Flags().StringVar(&opts.Blend, "blend", "", "blend layer id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", apply.DefaultResultName, "result layer name")
	addFormulaFlags(cmd, &opts.Formula, &opts.Preset)
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("blend")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	cfg, logger, err := opts.env(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err, nil)
	}

	text, err := resolveFormula(ctx, cfg, logger, opts.Formula, opts.Preset)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePresets, "failed to resolve preset", err, nil)
	}

	doc, err := document.Open(path,
		document.WithLogger(logger),
		document.WithOutputFormat(cfg.Document.OutputFormat),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "failed to open document", err, nil)
	}

	runner := apply.NewRunner(
		apply.WithConflictPolicy(retry.HostConflict(cfg.Retry.ConflictAttempts, cfg.ConflictBackoff(), document.IsConflict)),
		apply.WithWorkers(cfg.Composite.Workers),
		apply.WithLogger(logger),
	)
	out, err := runner.Run(ctx, doc, apply.Request{
		BaseID:     opts.Base,
		BlendID:    opts.Blend,
		Formula:    text,
		ResultName: opts.Name,
	})
	if err != nil {
		return applyFailure(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	fmt.Fprintf(formatter.Writer, "✓ Created layer %s (%dx%d at %d,%d)\n",
		out.LayerID, out.Rect.Width(), out.Rect.Height(), out.Rect.Left, out.Rect.Top)
	return nil
}

// applyFailure maps a failed pass to an error code.
func applyFailure(formatter *OutputFormatter, err error) error {
	var ce *formula.CompileError
	switch {
	case errors.As(err, &ce):
		return formatter.Fail(ExitFailure, ErrCodeCompile, "invalid formula", err, compileErrorDetails(ce))
	case errors.Is(err, composite.ErrEmptyIntersection):
		return formatter.Fail(ExitFailure, ErrCodeComposite, "nothing to blend", err, nil)
	case errors.Is(err, document.ErrLayerNotFound), errors.Is(err, apply.ErrMissingLayer):
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "invalid layers", err, nil)
	case document.IsConflict(err):
		return formatter.Fail(ExitFailure, ErrCodeDocument, "document is busy", err, nil)
	default:
		return formatter.Fail(ExitFailure, ErrCodeDocument, "apply failed", err, nil)
	}
}
