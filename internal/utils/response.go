package utils

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the envelope every endpoint returns: {status, data} on
// success, {status, errors} on failure.
type APIResponse struct {
	Status bool        `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Errors string      `json:"errors,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: true, Data: data})
}

func WriteError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: false, Errors: message})
}
