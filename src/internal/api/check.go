package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/dnsproxy"
)

const checkKeepAliveInterval = 15 * time.Second

// CheckDNS streams the names of DNS check queries via SSE. A client resolves
// a random subdomain of dnsproxy.CheckDomain and waits for it here to verify
// that its DNS traffic reaches the proxy.
// GET /api/v1/check/dns
func (h *Handler) CheckDNS(w http.ResponseWriter, r *http.Request) {
	if h.deps.Checks == nil {
		WriteNotFound(w, "DNS check stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternalError(w, "Streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	ch := h.deps.Checks.Subscribe()
	defer h.deps.Checks.Unsubscribe(ch)

	h.sendCheckEvent(w, flusher, "ready", dnsproxy.CheckDomain)

	ticker := time.NewTicker(checkKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case domain, ok := <-ch:
			if !ok {
				return
			}
			h.sendCheckEvent(w, flusher, "query", domain)
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// sendCheckEvent sends a JSON check event via SSE.
func (h *Handler) sendCheckEvent(w http.ResponseWriter, flusher http.Flusher, event, domain string) {
	jsonData, err := json.Marshal(map[string]string{
		"event":  event,
		"domain": domain,
	})
	if err != nil {
		h.logger.Errorf("Failed to marshal check event: %v", err)
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
