// Package document is a file-backed host for layered documents.
//
// A document is a YAML manifest listing the canvas size and an ordered set
// of layers, each an image file placed at an offset:
//
//	width: 800
//	height: 600
//	layers:
//	  - id: "1"
//	    name: Background
//	    file: background.png
//	    left: 0
//	    top: 0
//
// Layer files are resolved relative to the manifest and decoded as PNG,
// JPEG, BMP, TIFF or WebP. Written layers are encoded as PNG unless another
// output format is configured.
//
// Pixel reads and writes belong inside a modal scope (see Document.Modal).
// While any scope holds the document's lock file, CreateLayer fails with a
// *ConflictError so callers can retry once the scope ends.
package document
