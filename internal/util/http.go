package util

import (
	"encoding/json"
	"net/http"

	"ecotrack/api-gateway/internal/apperr"
)

// JSON writes a 200 JSON response with content-type
func JSON(w http.ResponseWriter, v any) {
	JSONStatus(w, http.StatusOK, v)
}

// JSONStatus writes v as JSON with the given status code.
func JSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error": kind, "message": msg, ...details}.
// Errors outside the apperr taxonomy become a generic 500 and their text is
// never written.
func WriteError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	body := make(map[string]any, len(e.Details)+2)
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = string(e.Kind)
	body["message"] = e.Message
	JSONStatus(w, e.Status, body)
}
