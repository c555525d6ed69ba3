package composite

import (
	"fmt"
	"image"
)

// Rect is an absolute document-space rectangle. Right and Bottom are
// exclusive. A Rect with zero width or height is valid but empty.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Canvas returns the rectangle [0,width]×[0,height].
func Canvas(width, height int) Rect {
	return Rect{Right: max(0, width), Bottom: max(0, height)}
}

// XYWH builds a Rect from an origin and a size.
func XYWH(x, y, w, h int) Rect {
	return Rect{Left: x, Top: y, Right: x + max(0, w), Bottom: y + max(0, h)}
}

// Width returns the horizontal extent, never negative.
func (r Rect) Width() int { return max(0, r.Right-r.Left) }

// Height returns the vertical extent, never negative.
func (r Rect) Height() int { return max(0, r.Bottom-r.Top) }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.Width() == 0 || r.Height() == 0 }

// Union returns the bounding box of r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Left:   min(r.Left, o.Left),
		Top:    min(r.Top, o.Top),
		Right:  max(r.Right, o.Right),
		Bottom: max(r.Bottom, o.Bottom),
	}
}

// Clamp clamps every coordinate of r into the canvas extents. The result may
// be empty when r lies outside the canvas.
func (r Rect) Clamp(canvas Rect) Rect {
	return Rect{
		Left:   clampInt(r.Left, canvas.Left, canvas.Right),
		Top:    clampInt(r.Top, canvas.Top, canvas.Bottom),
		Right:  clampInt(r.Right, canvas.Left, canvas.Right),
		Bottom: clampInt(r.Bottom, canvas.Top, canvas.Bottom),
	}
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// FromImageRect converts an image.Rectangle to a Rect.
func FromImageRect(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{Left: r.Min.X, Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y}
}

// String formats r as "left,top,right,bottom".
func (r Rect) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.Left, r.Top, r.Right, r.Bottom)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
