package api

import (
	"encoding/json"
	"net/http"

	"github.com/maksimkurb/keen-dns/src/internal/log"
)

// Handler serves all API endpoints.
type Handler struct {
	deps   Dependencies
	logger log.Logger
}

// NewHandler creates a new API handler for the given components.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, logger: log.Tag("api")}
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeJSONData writes a successful JSON response with data.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// decodeJSON decodes JSON from the request body.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
