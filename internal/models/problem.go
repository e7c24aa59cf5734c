package models

import (
	"encoding/json"
	"net/http"
)

// Problem — machine-readable error body shared by every handler.
type Problem struct {
	Status int      `json:"status"`
	Title  string   `json:"title"`
	Detail string   `json:"detail,omitempty"`
	Kind   string   `json:"kind,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// WriteProblem renders a JSON problem response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteProblemKind — shorthand for the common case: an error kind, a detail
// line and (for validation) the full list of violated rules.
func WriteProblemKind(w http.ResponseWriter, status int, kind, detail string, errs []string) {
	WriteProblem(w, Problem{Status: status, Kind: kind, Detail: detail, Errors: errs})
}
