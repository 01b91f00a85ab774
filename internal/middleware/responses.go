package middleware

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes v as a JSON body with code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body carrying the request id.
func WriteError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	rid, _ := RequestID(r.Context())
	WriteJSON(w, code, errorResponse{Error: msg, RequestID: rid})
}
