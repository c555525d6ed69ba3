// Package composite blends two positioned RGBA pixel sources with a formula.
//
// Both sources carry an absolute rectangle in document space. The output
// covers the union of the two rectangles clamped to the canvas; pixels a
// source does not cover read as transparent black. Color channels are handed
// to the formula premultiplied by their own alpha, and the formula's color
// output is read back as premultiplied by the output alpha.
//
// The package knows nothing about documents or layers: it consumes and
// produces byte buffers and rectangles only.
package composite
