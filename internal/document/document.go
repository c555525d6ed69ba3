package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/roach88/blendkit/internal/composite"
)

// Layer is a document layer with its absolute bounds.
type Layer struct {
	ID     string
	Name   string
	Bounds composite.Rect
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithOutputFormat sets the encoding of written layers (png, bmp or tiff).
func WithOutputFormat(format string) Option {
	return func(d *Document) { d.format = format }
}

// Document is an open manifest. Methods are safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	path     string
	dir      string
	manifest *Manifest
	format   string
	logger   *slog.Logger
}

// Open loads the manifest at path.
func Open(path string, opts ...Option) (*Document, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return newDocument(path, m, opts), nil
}

// Create writes a new empty manifest of the given size and opens it. An
// existing file is not overwritten.
func Create(path string, width, height int, opts ...Option) (*Document, error) {
	m := &Manifest{Width: width, Height: height, Layers: []LayerEntry{}}
	if err := m.validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create document: %s already exists", path)
	}
	if err := m.save(path); err != nil {
		return nil, err
	}
	return newDocument(path, m, opts), nil
}

func newDocument(path string, m *Manifest, opts []Option) *Document {
	d := &Document{
		path:     path,
		dir:      filepath.Dir(path),
		manifest: m,
		format:   FormatPNG,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Path returns the manifest path.
func (d *Document) Path() string { return d.path }

// Canvas returns the document rectangle.
func (d *Document) Canvas() composite.Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return composite.Canvas(d.manifest.Width, d.manifest.Height)
}

// Layers returns every layer in manifest order.
func (d *Document) Layers() ([]Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Layer, 0, len(d.manifest.Layers))
	for _, e := range d.manifest.Layers {
		l, err := d.layer(e)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Layer returns the layer with the given ID.
func (d *Document) Layer(id string) (Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.manifest.find(id)
	if !ok {
		return Layer{}, fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
	}
	return d.layer(d.manifest.Layers[i])
}

// layer resolves the bounds of e. A layer without a file has empty bounds
// at its offset.
func (d *Document) layer(e LayerEntry) (Layer, error) {
	l := Layer{ID: e.ID, Name: e.Name, Bounds: composite.XYWH(e.Left, e.Top, 0, 0)}
	if e.File == "" {
		return l, nil
	}
	w, h, err := decodeSize(d.resolve(e.File))
	if err != nil {
		return Layer{}, fmt.Errorf("layer %q: %w", e.ID, err)
	}
	l.Bounds = composite.XYWH(e.Left, e.Top, w, h)
	return l, nil
}

func (d *Document) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(d.dir, file)
}

// CreateLayer appends an empty layer named name. It fails with a
// *ConflictError while any modal scope holds the document.
func (d *Document) CreateLayer(ctx context.Context, name string) (Layer, error) {
	if err := ctx.Err(); err != nil {
		return Layer{}, err
	}
	if holder, held := d.lockHolder(); held {
		return Layer{}, &ConflictError{Op: "create layer", Holder: holder}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e := LayerEntry{ID: d.nextID(), Name: name}
	d.manifest.Layers = append(d.manifest.Layers, e)
	if err := d.manifest.save(d.path); err != nil {
		d.manifest.Layers = d.manifest.Layers[:len(d.manifest.Layers)-1]
		return Layer{}, fmt.Errorf("create layer: %w", err)
	}
	d.logger.Debug("layer created", "layer_id", e.ID, "name", name)
	return Layer{ID: e.ID, Name: e.Name, Bounds: composite.XYWH(0, 0, 0, 0)}, nil
}

// nextID returns one more than the largest numeric layer ID.
func (d *Document) nextID() string {
	next := 1
	for _, l := range d.manifest.Layers {
		if n, err := strconv.Atoi(l.ID); err == nil && n >= next {
			next = n + 1
		}
	}
	return strconv.Itoa(next)
}

// ReadPixels returns the straight-alpha pixels of layer id inside bounds.
// The returned source covers the part of bounds the layer actually has
// pixels for, which may be empty.
func (d *Document) ReadPixels(ctx context.Context, id string, bounds composite.Rect) (composite.PixelSource, error) {
	if err := ctx.Err(); err != nil {
		return composite.PixelSource{}, err
	}

	d.mu.Lock()
	i, ok := d.manifest.find(id)
	var e LayerEntry
	if ok {
		e = d.manifest.Layers[i]
	}
	d.mu.Unlock()

	if !ok {
		return composite.PixelSource{}, fmt.Errorf("read pixels %q: %w", id, ErrLayerNotFound)
	}
	if e.File == "" {
		return composite.PixelSource{}, fmt.Errorf("read pixels %q: %w", id, ErrEmptyLayer)
	}
	img, err := decodeFile(d.resolve(e.File))
	if err != nil {
		return composite.PixelSource{}, fmt.Errorf("read pixels %q: %w", id, err)
	}
	return composite.FromImage(img, image.Pt(e.Left, e.Top)).Crop(bounds), nil
}

// WritePixels stores res as the pixels of layer id, placed at res.Rect. The
// layer's previous image is replaced.
func (d *Document) WritePixels(ctx context.Context, id string, res *composite.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res == nil {
		return errors.New("write pixels: nil result")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.manifest.find(id)
	if !ok {
		return fmt.Errorf("write pixels %q: %w", id, ErrLayerNotFound)
	}

	file := fmt.Sprintf("layer-%s.%s", id, d.format)
	img := res.NRGBA()
	// Encoders write from the image origin; the offset lives in the manifest.
	img.Rect = img.Rect.Sub(img.Rect.Min)
	if err := writeImage(d.resolve(file), img, d.format); err != nil {
		return fmt.Errorf("write pixels %q: %w", id, err)
	}

	prev := d.manifest.Layers[i]
	d.manifest.Layers[i].File = file
	d.manifest.Layers[i].Left = res.Rect.Left
	d.manifest.Layers[i].Top = res.Rect.Top
	if err := d.manifest.save(d.path); err != nil {
		d.manifest.Layers[i] = prev
		return fmt.Errorf("write pixels %q: %w", id, err)
	}
	d.logger.Debug("pixels written", "layer_id", id, "rect", res.Rect.String(), "file", file)
	return nil
}

func writeImage(path string, img image.Image, format string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := Encode(tmp, img, format); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
