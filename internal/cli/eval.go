package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/blendkit/internal/formula"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Base  string
	Blend string
}

// EvalResult is one evaluated pixel. A is nil when the formula leaves alpha
// to the compositor.
type EvalResult struct {
	R float64  `json:"r"`
	G float64  `json:"g"`
	B float64  `json:"b"`
	A *float64 `json:"a,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <formula>",
		Short: "Evaluate a formula for one pixel",
		Long: `Evaluate a blend formula for a single base/blend pixel pair.

Channel values are in [0,1]; colors are premultiplied by their alpha.

Example:
  blendkit eval '[rb*rs, gb*gs, bb*bs]' --base 0.5,0.5,0.5,1 --blend 1,0,0,1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "0,0,0,1", "base pixel r,g,b,a")
	cmd.Flags().StringVar(&opts.Blend, "blend", "0,0,0,1", "blend pixel r,g,b,a")

	return cmd
}

func runEval(opts *EvalOptions, text string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	base, err := parsePixel(opts.Base)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --base", err, nil)
	}
	blend, err := parsePixel(opts.Blend)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --blend", err, nil)
	}

	eng, err := formula.Compile(text)
	if err != nil {
		return compileFailure(formatter, err)
	}

	out := eng.Eval(formula.Channels{
		RB: base[0], GB: base[1], BB: base[2], AB: base[3],
		RS: blend[0], GS: blend[1], BS: blend[2], AS: blend[3],
	})
	result := EvalResult{R: out.R, G: out.G, B: out.B}
	if out.HasAlpha {
		a := out.A
		result.A = &a
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	alpha := "default"
	if result.A != nil {
		alpha = strconv.FormatFloat(*result.A, 'f', 4, 64)
	}
	fmt.Fprintf(formatter.Writer, "r=%.4f g=%.4f b=%.4f a=%s\n", result.R, result.G, result.B, alpha)
	return nil
}

// parsePixel parses "r,g,b,a" with every channel in [0,1].
func parsePixel(s string) ([4]float64, error) {
	var px [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return px, fmt.Errorf("want r,g,b,a, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return px, fmt.Errorf("channel %d: %w", i, err)
		}
		if v < 0 || v > 1 {
			return px, fmt.Errorf("channel %d: %g is outside [0,1]", i, v)
		}
		px[i] = v
	}
	return px, nil
}
