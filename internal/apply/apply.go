// Package apply runs one blend pass against a document host: compile the
// formula, create the result layer, read both source layers, composite them
// and write the result back.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/blendkit/internal/composite"
	"github.com/roach88/blendkit/internal/document"
	"github.com/roach88/blendkit/internal/formula"
	"github.com/roach88/blendkit/internal/retry"
)

// DefaultResultName names the result layer when a request leaves it blank.
const DefaultResultName = "Custom Blend Result"

// ErrMissingLayer is returned when a request does not name both layers.
var ErrMissingLayer = errors.New("base and blend layers are required")

// Host is the document surface a pass needs. *document.Document
// implements it.
type Host interface {
	Canvas() composite.Rect
	Layer(id string) (document.Layer, error)
	CreateLayer(ctx context.Context, name string) (document.Layer, error)
	Modal(ctx context.Context, name string, fn func(ctx context.Context) error) error
	ReadPixels(ctx context.Context, id string, bounds composite.Rect) (composite.PixelSource, error)
	WritePixels(ctx context.Context, id string, res *composite.Result) error
}

// Request describes one pass. Base and blend may be the same layer.
type Request struct {
	BaseID     string
	BlendID    string
	Formula    string
	ResultName string
}

// Outcome describes a completed pass.
type Outcome struct {
	LayerID string         `json:"layer_id"`
	Rect    composite.Rect `json:"rect"`
	Formula string         `json:"formula"`
}

// Runner executes passes.
type Runner struct {
	conflict retry.Policy
	workers  int
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConflictPolicy sets the retry policy for result layer creation. Only
// *document.ConflictError failures are retried whatever the policy says.
func WithConflictPolicy(p retry.Policy) Option {
	return func(r *Runner) { r.conflict = p }
}

// WithWorkers sets compositor parallelism.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner returns a Runner that retries layer creation three times,
// 600ms apart.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		conflict: retry.HostConflict(3, 600*time.Millisecond, document.IsConflict),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.conflict.Retryable = document.IsConflict
	if r.conflict.Logger == nil {
		r.conflict.Logger = r.logger
	}
	return r
}

// Run executes req with a default Runner.
func Run(ctx context.Context, host Host, req Request) (*Outcome, error) {
	return NewRunner().Run(ctx, host, req)
}

// Run executes one pass. A failure before the modal scope leaves the
// document untouched except for an already created, empty result layer;
// a failure inside it writes nothing.
func (r *Runner) Run(ctx context.Context, host Host, req Request) (*Outcome, error) {
	if req.BaseID == "" || req.BlendID == "" {
		return nil, ErrMissingLayer
	}
	for _, id := range []string{req.BaseID, req.BlendID} {
		if _, err := host.Layer(id); err != nil {
			return nil, fmt.Errorf("apply: %w", err)
		}
	}

	eng, err := formula.Compile(req.Formula)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	name := strings.TrimSpace(req.ResultName)
	if name == "" {
		name = DefaultResultName
	}
	result, err := retry.Value(ctx, r.conflict, func(ctx context.Context) (document.Layer, error) {
		return host.CreateLayer(ctx, name)
	})
	if err != nil {
		return nil, fmt.Errorf("create result layer: %w", err)
	}
	r.logger.Debug("result layer created", "layer_id", result.ID, "name", name)

	var rect composite.Rect
	err = host.Modal(ctx, "apply blend", func(ctx context.Context) error {
		res, err := r.blend(ctx, host, eng, req)
		if err != nil {
			return err
		}
		if err := host.WritePixels(ctx, result.ID, res); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		rect = res.Rect
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	r.logger.Info("blend applied",
		"base", req.BaseID,
		"blend", req.BlendID,
		"result", result.ID,
		"union", rect.String(),
		"formula", eng.Source(),
	)
	return &Outcome{LayerID: result.ID, Rect: rect, Formula: eng.Source()}, nil
}

// blend reads both layers clamped to the canvas and composites them.
func (r *Runner) blend(ctx context.Context, host Host, eng *formula.Engine, req Request) (*composite.Result, error) {
	canvas := host.Canvas()
	base, err := host.Layer(req.BaseID)
	if err != nil {
		return nil, err
	}
	blend, err := host.Layer(req.BlendID)
	if err != nil {
		return nil, err
	}
	baseRect, blendRect := base.Bounds.Clamp(canvas), blend.Bounds.Clamp(canvas)
	if baseRect.Empty() || blendRect.Empty() {
		return nil, fmt.Errorf("%w: base %s, blend %s", composite.ErrEmptyIntersection, baseRect, blendRect)
	}

	baseSrc, err := host.ReadPixels(ctx, req.BaseID, baseRect)
	if err != nil {
		return nil, fmt.Errorf("read base layer: %w", err)
	}
	blendSrc, err := host.ReadPixels(ctx, req.BlendID, blendRect)
	if err != nil {
		return nil, fmt.Errorf("read blend layer: %w", err)
	}

	start := time.Now()
	res, err := composite.Composite(baseSrc, blendSrc, canvas, eng, composite.WithWorkers(r.workers))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("composited",
		"union", res.Rect.String(),
		"pixels", res.Rect.Width()*res.Rect.Height(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
