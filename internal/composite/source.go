package composite

import (
	"image"

	"golang.org/x/image/draw"
)

// PixelSource is a read-only 8-bit RGBA buffer with straight alpha, placed at
// an absolute rectangle in document space.
//
// Width and Height are the producer's actual sample dimensions and default to
// the rectangle's size. Stride is the row pitch in bytes; values smaller than
// Width*4 are ignored. Reads past the end of Pix yield zero bytes.
type PixelSource struct {
	Rect   Rect
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewPixelSource wraps a tightly packed buffer covering r.
func NewPixelSource(r Rect, pix []byte) PixelSource {
	return PixelSource{Rect: r, Width: r.Width(), Height: r.Height(), Stride: r.Width() * 4, Pix: pix}
}

// FromImage converts img to straight-alpha RGBA placed with its top-left
// corner at the given document position. *image.NRGBA is used without
// copying.
func FromImage(img image.Image, at image.Point) PixelSource {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return PixelSource{
		Rect:   XYWH(at.X, at.Y, b.Dx(), b.Dy()),
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: nrgba.Stride,
		Pix:    nrgba.Pix,
	}
}

// Crop returns the part of p inside r (in document space) without copying.
// The result may be empty.
func (p PixelSource) Crop(r Rect) PixelSource {
	s := p.sampler()
	want := Rect{
		Left:   max(r.Left, s.left),
		Top:    max(r.Top, s.top),
		Right:  min(r.Right, s.left+s.w),
		Bottom: min(r.Bottom, s.top+s.h),
	}
	if want.Empty() {
		return PixelSource{Rect: Rect{Left: want.Left, Top: want.Top, Right: want.Left, Bottom: want.Top}}
	}
	off := (want.Top-s.top)*s.stride + (want.Left-s.left)*4
	var pix []byte
	if off < len(p.Pix) {
		pix = p.Pix[off:]
	}
	return PixelSource{Rect: want, Width: want.Width(), Height: want.Height(), Stride: s.stride, Pix: pix}
}

// rgba is one straight-alpha pixel normalised to [0,1].
type rgba struct {
	r, g, b, a float64
}

// sampler resolves document coordinates into a source buffer.
type sampler struct {
	pix       []byte
	left, top int
	w, h      int
	stride    int
}

func (p PixelSource) sampler() sampler {
	w, h := p.Width, p.Height
	if w <= 0 {
		w = p.Rect.Width()
	}
	if h <= 0 {
		h = p.Rect.Height()
	}
	stride := p.Stride
	if stride < w*4 {
		stride = w * 4
	}
	return sampler{pix: p.Pix, left: p.Rect.Left, top: p.Rect.Top, w: w, h: h, stride: stride}
}

// at returns the pixel at document position (x, y), or transparent black
// when the source does not cover it.
func (s sampler) at(x, y int) rgba {
	lx, ly := x-s.left, y-s.top
	if lx < 0 || ly < 0 || lx >= s.w || ly >= s.h {
		return rgba{}
	}
	i := ly*s.stride + lx*4
	return rgba{
		r: float64(s.byteAt(i)) / 255,
		g: float64(s.byteAt(i+1)) / 255,
		b: float64(s.byteAt(i+2)) / 255,
		a: float64(s.byteAt(i+3)) / 255,
	}
}

func (s sampler) byteAt(i int) byte {
	if i < 0 || i >= len(s.pix) {
		return 0
	}
	return s.pix[i]
}
