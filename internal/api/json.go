package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleetopt/internal/model"
	"fleetopt/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors to problem responses: bad input is the
// caller's fault, missing records are 404, everything else is on us.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, title, err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}
