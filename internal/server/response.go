package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	language "github.com/hanpama/stitchgraph/internal/language"
)

type location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type responseError struct {
	Message    string         `json:"message"`
	Locations  []location     `json:"locations,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// errorsOnly is the response of a request or document that never executed.
// It has no data entry at all.
type errorsOnly struct {
	Errors []responseError `json:"errors"`
}

func messageResponse(message string) errorsOnly {
	return errorsOnly{Errors: []responseError{{Message: message}}}
}

func validationResponse(errs language.ErrorList) errorsOnly {
	out := errorsOnly{Errors: make([]responseError, len(errs))}
	for i, e := range errs {
		re := responseError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			re.Locations = append(re.Locations, location{Line: loc.Line, Column: loc.Column})
		}
		out.Errors[i] = re
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

// allowOrigin sets the CORS headers when the request's Origin is allowed.
func allowOrigin(w http.ResponseWriter, r *http.Request, allowed []string) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return
	}
	switch {
	case slices.Contains(allowed, "*"):
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case slices.Contains(allowed, origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	default:
		return
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func acceptsHTML(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if mt == "text/html" || mt == "*/*" {
			return true
		}
	}
	return false
}
