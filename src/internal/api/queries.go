package api

import (
	"net/http"
	"strconv"

	"github.com/miekg/dns"

	keenerrors "github.com/maksimkurb/keen-dns/src/internal/errors"
	"github.com/maksimkurb/keen-dns/src/internal/models"
)

const (
	defaultQueriesLimit = 100
	maxQueriesLimit     = 1000
)

// GetQueries returns the most recent persisted queries.
// GET /api/v1/queries?limit=100
func (h *Handler) GetQueries(w http.ResponseWriter, r *http.Request) {
	if h.deps.Queries == nil {
		WriteNotFound(w, "Query log")
		return
	}

	limit := defaultQueriesLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			WriteInvalidRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxQueriesLimit)
	}

	records, err := h.deps.Queries.Recent(limit)
	if err != nil {
		h.logger.Errorf("Failed to read queries: %v", err)
		WriteError(w, http.StatusInternalServerError, NewAPIError(ErrCodeInternalError, "Failed to read queries").
			WithDetails(map[string]interface{}{"cause": keenerrors.CodeOf(err), "error": err.Error()}))
		return
	}
	if records == nil {
		records = []*models.QueryRecord{}
	}

	writeJSONData(w, QueriesResponse{Queries: records})
}

// GetQueryStats returns tracker and store counters.
// GET /api/v1/queries/stats
func (h *Handler) GetQueryStats(w http.ResponseWriter, r *http.Request) {
	var response QueryStatsResponse

	if h.deps.Tracker != nil {
		stats := h.deps.Tracker.Stats()
		response.InFlight = stats.InFlight
		response.Answered = stats.Answered
		if msg := h.deps.Tracker.LastResponse(); msg != nil {
			response.LastResponse = summarizeResponse(msg)
		}
	}

	if h.deps.Queries != nil {
		count, err := h.deps.Queries.Count()
		if err != nil {
			WriteInternalError(w, "Failed to count queries: "+err.Error())
			return
		}
		response.Stored = &count
	}

	writeJSONData(w, response)
}

func summarizeResponse(msg *dns.Msg) *LastResponse {
	last := &LastResponse{
		TransactionID: models.TransactionID(msg.Id),
		Rcode:         dns.RcodeToString[msg.Rcode],
		Answers:       make([]models.Answer, 0, len(msg.Answer)),
	}
	if len(msg.Question) > 0 {
		last.Question = msg.Question[0].Name
	}
	for _, rr := range msg.Answer {
		last.Answers = append(last.Answers, models.AnswerFromRR(rr))
	}
	return last
}
