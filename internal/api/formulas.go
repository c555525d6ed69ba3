package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/blendkit/internal/preset"
)

type saveFormulaRequest struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

type formulasResponse struct {
	Items []preset.Item `json:"items"`
}

func (s *Server) handleListFormulas(w http.ResponseWriter, r *http.Request) {
	items, err := s.presets.Load(r.Context())
	if err != nil {
		s.presetError(w, "load presets", err)
		return
	}
	s.writeJSON(w, http.StatusOK, formulasResponse{Items: items})
}

func (s *Server) handleSaveFormula(w http.ResponseWriter, r *http.Request) {
	var req saveFormulaRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := compile(req.Expr); err != nil {
		s.writeCompileError(w, err)
		return
	}

	item, err := s.presets.Save(r.Context(), req.Name, req.Expr)
	if err != nil {
		s.presetError(w, "save preset", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleDeleteFormula(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.presets.Delete(r.Context(), id); err != nil {
		s.presetError(w, "delete preset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportFormulas(w http.ResponseWriter, r *http.Request) {
	data, err := s.presets.Export(r.Context())
	if err != nil {
		s.presetError(w, "export presets", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+preset.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write export", "error", err)
	}
}

func (s *Server) handleImportFormulas(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "body too large")
		return
	}
	items, err := s.presets.Import(r.Context(), data)
	if err != nil {
		s.presetError(w, "import presets", err)
		return
	}
	s.writeJSON(w, http.StatusOK, formulasResponse{Items: items})
}

// presetError maps store failures to HTTP statuses.
func (s *Server) presetError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, preset.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "preset not found")
	case errors.Is(err, preset.ErrInvalidFile):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "INVALID_PRESET_FILE"})
	case errors.Is(err, preset.ErrEmptyName), errors.Is(err, preset.ErrEmptyExpr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case preset.IsWriteError(err):
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "preset storage unavailable")
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, op+" failed")
	}
}
