package api

import (
	"net/http"
)

var (
	// Version information set via ldflags at build time
	Version = "dev"
	Date    = "n/a"
	Commit  = "n/a"
)

// GetStatus returns build information and the proxy state.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version: VersionInfo{
			Version: Version,
			Date:    Date,
			Commit:  Commit,
		},
	}

	if h.deps.Proxy != nil {
		stats := h.deps.Proxy.GetStats()
		response.Proxy = &stats
	}

	writeJSONData(w, response)
}
