package composite

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/blendkit/internal/formula"
)

// ErrEmptyIntersection is returned when a source, or the union of both
// sources, covers no pixels of the canvas.
var ErrEmptyIntersection = errors.New("composite: empty intersection")

// ErrNilEvaluator is returned when Composite is called without a formula.
var ErrNilEvaluator = errors.New("composite: nil evaluator")

// Result is the composited straight-alpha RGBA buffer and the absolute
// rectangle it must be written back to. Rows are tightly packed.
type Result struct {
	Rect Rect
	Pix  []byte
}

// Stride returns the row pitch of Pix in bytes.
func (r *Result) Stride() int { return r.Rect.Width() * 4 }

// NRGBA returns the result as an image whose bounds are the placement
// rectangle. The pixel buffer is shared.
func (r *Result) NRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: r.Pix, Stride: r.Stride(), Rect: r.Rect.Image()}
}

// Option configures a compositing pass.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers splits the pass into row bands processed by up to n goroutines.
// n <= 1 runs sequentially. The evaluator must then be safe for concurrent
// use; compiled formula Engines are.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Composite blends blend over base inside canvas using eng.
//
// Both source rectangles are clamped to the canvas; if either ends up empty
// the pass fails with ErrEmptyIntersection and no buffer is produced. The
// output covers the union of the clamped rectangles. Where a source does not
// cover a union pixel it contributes transparent black.
func Composite(base, blend PixelSource, canvas Rect, eng formula.Evaluator, opts ...Option) (*Result, error) {
	if eng == nil {
		return nil, ErrNilEvaluator
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	baseRect := base.Rect.Clamp(canvas)
	blendRect := blend.Rect.Clamp(canvas)
	if baseRect.Empty() || blendRect.Empty() {
		return nil, fmt.Errorf("%w: base %s, blend %s, canvas %s", ErrEmptyIntersection, baseRect, blendRect, canvas)
	}
	union := baseRect.Union(blendRect).Clamp(canvas)
	if union.Empty() {
		return nil, fmt.Errorf("%w: union %s", ErrEmptyIntersection, union)
	}

	bs, ss := base.sampler(), blend.sampler()
	width, height := union.Width(), union.Height()
	out := make([]byte, width*height*4)

	row := func(y int) {
		ay := union.Top + y
		p := y * width * 4
		for x := 0; x < width; x++ {
			ax := union.Left + x
			px := shade(eng, bs.at(ax, ay), ss.at(ax, ay))
			out[p] = to8(px.r)
			out[p+1] = to8(px.g)
			out[p+2] = to8(px.b)
			out[p+3] = to8(px.a)
			p += 4
		}
	}

	if o.workers <= 1 || height < 2 {
		for y := 0; y < height; y++ {
			row(y)
		}
		return &Result{Rect: union, Pix: out}, nil
	}

	bands := min(o.workers, height)
	per := (height + bands - 1) / bands
	var g errgroup.Group
	g.SetLimit(o.workers)
	for start := 0; start < height; start += per {
		start, end := start, min(start+per, height)
		g.Go(func() error {
			for y := start; y < end; y++ {
				row(y)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Result{Rect: union, Pix: out}, nil
}

// shade computes one output pixel from straight-alpha samples.
//
// Color channels reach the formula premultiplied by their own alpha; the
// alphas are passed straight. Without a fourth formula output the alpha is
// the alpha-over of both sources. Formula colors are premultiplied by the
// output alpha and are clipped to it before unpremultiplying.
func shade(eng formula.Evaluator, base, blend rgba) rgba {
	res := eng.Eval(formula.Channels{
		RB: base.r * base.a, GB: base.g * base.a, BB: base.b * base.a, AB: base.a,
		RS: blend.r * blend.a, GS: blend.g * blend.a, BS: blend.b * blend.a, AS: blend.a,
	})

	aOut := blend.a + base.a - blend.a*base.a
	if res.HasAlpha {
		aOut = res.A
	}
	aOut = formula.Clamp01(aOut)

	return rgba{
		r: unpremultiply(res.R, aOut),
		g: unpremultiply(res.G, aOut),
		b: unpremultiply(res.B, aOut),
		a: aOut,
	}
}

func unpremultiply(c, a float64) float64 {
	if a <= 0 {
		return 0
	}
	// TODO: add a strict mode that reports formulas returning color above their alpha instead of clipping.
	return math.Min(formula.Clamp01(c), a) / a
}

// to8 scales a [0,1] value to a byte, rounding half up.
func to8(v float64) uint8 {
	return uint8(math.Floor(formula.Clamp01(v)*255 + 0.5))
}
