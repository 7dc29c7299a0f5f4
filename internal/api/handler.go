// Package api provides HTTP handlers for the chat relay.
package api

import (
	"encoding/json"
	"net/http"
)

// Error messages surfaced to clients. Internal detail never leaks.
const (
	msgMissingInput  = "Missing 'msg' in request"
	msgInternalError = "Internal server error"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
