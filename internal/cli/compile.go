package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/blendkit/internal/formula"
)

// CompileResult describes a formula that compiled.
type CompileResult struct {
	Formula   string `json:"formula"`
	Canonical string `json:"canonical"`
	Arity     int    `json:"arity"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <formula>",
		Short: "Validate a blend formula",
		Long: `Validate a blend formula and print its canonical form.

Example:
  blendkit compile '[rb*rs, gb*gs, bb*bs]'
  blendkit compile --format json 'B*T'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], cmd)
		},
	}
}

func runCompile(opts *RootOptions, text string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	eng, err := formula.Compile(text)
	if err != nil {
		return compileFailure(formatter, err)
	}
	formatter.VerboseLog("compiled %q", eng.Source())

	result := CompileResult{
		Formula:   eng.Source(),
		Canonical: eng.String(),
		Arity:     eng.Arity(),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Valid formula (%d channels)\n", result.Arity)
	fmt.Fprintf(formatter.Writer, "  %s\n", result.Canonical)
	return nil
}

// compileFailure reports a formula that did not compile.
func compileFailure(formatter *OutputFormatter, err error) error {
	var details any
	var ce *formula.CompileError
	if errors.As(err, &ce) {
		details = compileErrorDetails(ce)
	}
	return formatter.Fail(ExitFailure, ErrCodeCompile, "invalid formula", err, details)
}

func compileErrorDetails(ce *formula.CompileError) map[string]any {
	d := map[string]any{"code": string(ce.Code)}
	if ce.Pos >= 0 {
		d["position"] = ce.Pos
	}
	if ce.Token != "" {
		d["token"] = ce.Token
	}
	return d
}
