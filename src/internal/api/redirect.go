package api

import (
	"context"
	"net/http"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/redirect"
)

const (
	redirectActionBegin = "begin"
	redirectActionEnd   = "end"

	// redirectTimeout bounds the rule changes of one API request.
	redirectTimeout = 30 * time.Second
)

// GetRedirect returns the traffic redirection state.
// GET /api/v1/redirect
func (h *Handler) GetRedirect(w http.ResponseWriter, r *http.Request) {
	if h.deps.Redirect == nil {
		writeJSONData(w, RedirectResponse{Mode: redirect.ModeDisabled})
		return
	}
	writeJSONData(w, h.redirectResponse(h.deps.Redirect.State()))
}

// ControlRedirect begins or ends traffic redirection.
// POST /api/v1/redirect {"action": "begin"|"end"}
func (h *Handler) ControlRedirect(w http.ResponseWriter, r *http.Request) {
	if h.deps.Redirect == nil {
		WriteRedirectError(w, "Traffic redirection is disabled in configuration")
		return
	}

	var req RedirectControlRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteInvalidRequest(w, "Invalid JSON: "+err.Error())
		return
	}

	if req.Action != redirectActionBegin && req.Action != redirectActionEnd {
		WriteError(w, http.StatusBadRequest, NewAPIError(ErrCodeInvalidRequest, "Unknown action: "+req.Action).
			WithDetails(map[string]interface{}{"allowed": []string{redirectActionBegin, redirectActionEnd}}))
		return
	}

	// A client disconnecting must not abort the rule changes halfway.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), redirectTimeout)
	defer cancel()

	var mode redirect.Mode
	if req.Action == redirectActionBegin {
		mode = h.deps.Redirect.BeginForward(ctx)
	} else {
		mode = h.deps.Redirect.EndForward(ctx)
	}

	h.logger.Infof("Redirect %s requested via API, mode is now %s", req.Action, mode)
	writeJSONData(w, h.redirectResponse(mode))
}

func (h *Handler) redirectResponse(mode redirect.Mode) RedirectResponse {
	cfg := h.deps.Redirect.Config()
	return RedirectResponse{
		Mode:        mode,
		IPv4Address: cfg.IPv4Address,
		IPv6Address: cfg.IPv6Address,
		Port:        cfg.Port,
	}
}
