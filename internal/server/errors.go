package server

import (
	"encoding/json"
	"net/http"
)

// Error bodies of the JSON API.
const (
	errNotAuthenticated = "Not authenticated"
	errContentRequired  = "Email content is required"
	errClassifyFailed   = "Failed to classify email"
	errFetchMessage     = "Failed to fetch message"
	errListMessages     = "Failed to list messages"
	errRateLimited      = "Too many requests"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// notAuthenticated is the denied handler of the JSON API.
var notAuthenticated = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	writeJSONError(w, http.StatusUnauthorized, errNotAuthenticated, "")
})
