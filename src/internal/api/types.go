package api

import (
	"github.com/maksimkurb/keen-dns/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/maksimkurb/keen-dns/src/internal/redirect"
)

// DataResponse wraps successful responses with a "data" field.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// HealthCheckResponse returns health check results.
type HealthCheckResponse struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult contains the result of a single health check.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// QueriesResponse returns recent persisted queries, newest first.
type QueriesResponse struct {
	Queries []*models.QueryRecord `json:"queries"`
}

// QueryStatsResponse returns query tracker and store counters.
type QueryStatsResponse struct {
	InFlight     int           `json:"in_flight"`
	Answered     int           `json:"answered"`
	Stored       *int          `json:"stored"` // null when persistence is disabled
	LastResponse *LastResponse `json:"last_response,omitempty"`
}

// LastResponse summarizes the most recent response delivered to a device.
type LastResponse struct {
	TransactionID models.TransactionID `json:"transaction_id"`
	Question      string               `json:"question,omitempty"`
	Rcode         string               `json:"rcode"`
	Answers       []models.Answer      `json:"answers"`
}

// RedirectResponse returns the traffic redirection state.
type RedirectResponse struct {
	Mode        redirect.Mode `json:"mode"`
	IPv4Address string        `json:"ipv4_address"`
	IPv6Address string        `json:"ipv6_address,omitempty"`
	Port        uint16        `json:"port"`
}

// RedirectControlRequest begins or ends traffic redirection.
type RedirectControlRequest struct {
	Action string `json:"action"` // "begin" or "end"
}

// StatusResponse returns build and proxy information.
type StatusResponse struct {
	Version VersionInfo     `json:"version"`
	Proxy   *dnsproxy.Stats `json:"proxy,omitempty"`
}

// VersionInfo contains build version information.
type VersionInfo struct {
	Version string `json:"version"`
	Date    string `json:"date"`
	Commit  string `json:"commit"`
}
