package api

import (
	"encoding/json"
	"net/http"
)

type compileRequest struct {
	Formula string `json:"formula"`
}

type compileResponse struct {
	Canonical string `json:"canonical"`
	Arity     int    `json:"arity"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	eng, err := compile(req.Formula)
	if err != nil {
		s.writeCompileError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, compileResponse{Canonical: eng.String(), Arity: eng.Arity()})
}
