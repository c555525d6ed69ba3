package cli

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/blendkit/internal/composite"
	"github.com/roach88/blendkit/internal/document"
	"github.com/roach88/blendkit/internal/formula"
)

// BlendOptions holds flags for the blend command.
type BlendOptions struct {
	*RootOptions
	Base    string
	Blend   string
	BaseAt  string
	BlendAt string
	Canvas  string
	Output  string
	Formula string
	Preset  string
}

// BlendResult describes a written composite.
type BlendResult struct {
	Output  string         `json:"output"`
	Rect    composite.Rect `json:"rect"`
	Formula string         `json:"formula"`
}

// NewBlendCommand creates the blend command.
func NewBlendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BlendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "blend",
		Short: "Composite two image files with a formula",
		Long: `Composite a blend image over a base image with a formula and write the
union of both placements to an image file. The output format follows the
file extension (.png, .bmp, .tif, .tiff).

Example:
  blendkit blend --base bg.png --blend fx.png --blend-at 40,20 -f '[rb*rs, gb*gs, bb*bs]' -o out.png
  blendkit blend --base bg.png --blend fx.png --preset Screen --canvas 800x600 -o out.tiff`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "base image file (required)")
	cmd.Flags().StringVar(&opts.Blend, "blend", "", "blend image file (required)")
	cmd.Flags().StringVar(&opts.BaseAt, "base-at", "0,0", "base image offset x,y")
	cmd.Flags().StringVar(&opts.BlendAt, "blend-at", "0,0", "blend image offset x,y")
	cmd.Flags().StringVar(&opts.Canvas, "canvas", "", "canvas size WxH (default: extent of both images)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output image file (required)")
	addFormulaFlags(cmd, &opts.Formula, &opts.Preset)
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("blend")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runBlend(opts *BlendOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	format, err := formatForPath(opts.Output)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --output", err, nil)
	}

	cfg, logger, err := opts.env(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err, nil)
	}

	text, err := resolveFormula(ctx, cfg, logger, opts.Formula, opts.Preset)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePresets, "failed to resolve preset", err, nil)
	}
	eng, err := formula.Compile(text)
	if err != nil {
		return compileFailure(formatter, err)
	}

	base, err := loadSource(opts.Base, opts.BaseAt)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load base image", err, nil)
	}
	blend, err := loadSource(opts.Blend, opts.BlendAt)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load blend image", err, nil)
	}

	extent := base.Rect.Union(blend.Rect)
	canvas := composite.Canvas(extent.Right, extent.Bottom)
	if opts.Canvas != "" {
		if canvas, err = parseCanvas(opts.Canvas); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --canvas", err, nil)
		}
	}
	logger.Debug("compositing",
		"base", base.Rect.String(),
		"blend", blend.Rect.String(),
		"canvas", canvas.String(),
		"workers", cfg.Composite.Workers,
	)

	res, err := composite.Composite(base, blend, canvas, eng, composite.WithWorkers(cfg.Composite.Workers))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeComposite, "composite failed", err, nil)
	}

	if err := writeResult(opts.Output, res, format); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to write output", err, nil)
	}
	logger.Info("blend written", "output", opts.Output, "union", res.Rect.String(), "formula", eng.Source())

	result := BlendResult{Output: opts.Output, Rect: res.Rect, Formula: eng.Source()}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Wrote %s (%dx%d at %d,%d)\n",
		result.Output, res.Rect.Width(), res.Rect.Height(), res.Rect.Left, res.Rect.Top)
	return nil
}

// loadSource decodes an image file and places it at the "x,y" offset.
func loadSource(path, at string) (composite.PixelSource, error) {
	pt, err := parsePoint(at)
	if err != nil {
		return composite.PixelSource{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return composite.PixelSource{}, err
	}
	defer f.Close()

	img, _, err := document.Decode(f)
	if err != nil {
		return composite.PixelSource{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return composite.FromImage(img, pt), nil
}

// writeResult encodes res at the origin of a new file.
func writeResult(path string, res *composite.Result, format string) (err error) {
	img := res.NRGBA()
	img.Rect = img.Rect.Sub(img.Rect.Min)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return document.Encode(f, img, format)
}

// formatForPath maps an output file extension to an encoder format.
func formatForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return document.FormatPNG, nil
	case ".bmp":
		return document.FormatBMP, nil
	case ".tif", ".tiff":
		return document.FormatTIFF, nil
	case "":
		return "", errors.New("output file needs an extension")
	default:
		return "", fmt.Errorf("unsupported output extension %q", filepath.Ext(path))
	}
}

func parsePoint(s string) (image.Point, error) {
	x, y, ok := strings.Cut(s, ",")
	if !ok {
		return image.Point{}, fmt.Errorf("want x,y, got %q", s)
	}
	px, err := strconv.Atoi(strings.TrimSpace(x))
	if err != nil {
		return image.Point{}, fmt.Errorf("offset x: %w", err)
	}
	py, err := strconv.Atoi(strings.TrimSpace(y))
	if err != nil {
		return image.Point{}, fmt.Errorf("offset y: %w", err)
	}
	return image.Pt(px, py), nil
}

func parseCanvas(s string) (composite.Rect, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return composite.Rect{}, fmt.Errorf("want WxH, got %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return composite.Rect{}, fmt.Errorf("invalid width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return composite.Rect{}, fmt.Errorf("invalid height %q", h)
	}
	return composite.Canvas(width, height), nil
}
