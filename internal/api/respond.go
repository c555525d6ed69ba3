package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/blendkit/internal/formula"
)

const maxBodySize = 1 << 20 // 1 MB

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Position *int   `json:"position,omitempty"`
	Token    string `json:"token,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeCompileError reports a formula compile failure as 422 with its code.
// Other errors become 400.
func (s *Server) writeCompileError(w http.ResponseWriter, err error) {
	var ce *formula.CompileError
	if !errors.As(err, &ce) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := errorResponse{Error: ce.Message, Code: string(ce.Code), Token: ce.Token}
	if ce.Pos >= 0 {
		pos := ce.Pos
		resp.Position = &pos
	}
	s.writeJSON(w, http.StatusUnprocessableEntity, resp)
}

// compile compiles text and counts the outcome.
func compile(text string) (*formula.Engine, error) {
	eng, err := formula.Compile(text)
	if err != nil {
		result := "error"
		if code := formula.CodeOf(err); code != "" {
			result = string(code)
		}
		compileTotal.WithLabelValues(result).Inc()
		return nil, err
	}
	compileTotal.WithLabelValues("ok").Inc()
	return eng, nil
}
