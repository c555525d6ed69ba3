package api

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/roach88/blendkit/internal/composite"
	"github.com/roach88/blendkit/internal/document"
)

// rectHeader carries the placement rectangle of a composite response.
const rectHeader = "X-Blend-Rect"

func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.maxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	eng, err := compile(r.FormValue("formula"))
	if err != nil {
		s.writeCompileError(w, err)
		return
	}

	base, err := formImage(r, "base", "base_x", "base_y")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	blend, err := formImage(r, "blend", "blend_x", "blend_y")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The default canvas reaches the far edges of both images.
	extent := base.Rect.Union(blend.Rect)
	canvasW, err := formInt(r, "canvas_w", extent.Right)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	canvasH, err := formInt(r, "canvas_h", extent.Bottom)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	res, err := composite.Composite(base, blend, composite.Canvas(canvasW, canvasH), eng, composite.WithWorkers(s.workers))
	compositeDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, composite.ErrEmptyIntersection) {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "EMPTY_INTERSECTION"})
		return
	}
	if err != nil {
		s.logger.Error("composite", "error", err)
		s.writeError(w, http.StatusInternalServerError, "composite failed")
		return
	}

	img := res.NRGBA()
	img.Rect = img.Rect.Sub(img.Rect.Min)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.logger.Error("encode composite", "error", err)
		s.writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set(rectHeader, res.Rect.String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error("write composite", "error", err)
	}
}

// formImage decodes the uploaded file field and places it at the offsets
// given by the xKey and yKey form values.
func formImage(r *http.Request, field, xKey, yKey string) (composite.PixelSource, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return composite.PixelSource{}, fmt.Errorf("%s image is required", field)
	}
	defer f.Close()

	img, _, err := document.Decode(f)
	if err != nil {
		return composite.PixelSource{}, fmt.Errorf("decode %s image: %v", field, err)
	}
	x, err := formInt(r, xKey, 0)
	if err != nil {
		return composite.PixelSource{}, err
	}
	y, err := formInt(r, yKey, 0)
	if err != nil {
		return composite.PixelSource{}, err
	}
	return composite.FromImage(img, image.Pt(x, y)), nil
}

func formInt(r *http.Request, key string, def int) (int, error) {
	v := r.FormValue(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
