package api

import (
	"net/http"

	"github.com/maksimkurb/keen-dns/src/internal/redirect"
)

// CheckHealth reports the health of the running components.
// GET /api/v1/health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Healthy: true,
		Checks:  make(map[string]CheckResult),
	}

	fail := func(name, message string) {
		response.Healthy = false
		response.Checks[name] = CheckResult{Passed: false, Message: message}
	}
	pass := func(name, message string) {
		response.Checks[name] = CheckResult{Passed: true, Message: message}
	}

	if h.deps.Proxy != nil {
		pass("dns_proxy", "DNS proxy listening on "+h.deps.Proxy.GetStats().ListenAddress)
	} else {
		fail("dns_proxy", "DNS proxy is not running")
	}

	if h.deps.Queries != nil {
		if _, err := h.deps.Queries.Count(); err != nil {
			fail("query_store", "Query store is not readable: "+err.Error())
		} else {
			pass("query_store", "Query store is readable")
		}
	} else {
		pass("query_store", "Query persistence disabled")
	}

	if h.deps.Redirect != nil {
		switch mode := h.deps.Redirect.State(); mode {
		case redirect.ModeFailed:
			fail("redirect", "Traffic redirection failed")
		case redirect.ModeSucceededNoIPv6:
			pass("redirect", "Traffic redirected for IPv4 only")
		default:
			pass("redirect", "Traffic redirection "+mode.String())
		}
	} else {
		pass("redirect", "Traffic redirection disabled")
	}

	writeJSONData(w, response)
}
