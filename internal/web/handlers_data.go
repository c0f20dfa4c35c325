package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/JonMunkholm/salesload/internal/store"
	"github.com/go-chi/chi/v5"
)

// handleRecentRejections lists the newest dead letters.
func (s *Server) handleRecentRejections(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultRejectionsLimit)

	rows, err := s.deps.Queries.RecentRejections(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []store.RejectedRow{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rejections": rows,
		"count":      len(rows),
	})
}

// handleRejectionSummary returns the dead-letter reason histogram.
func (s *Server) handleRejectionSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Queries.RejectionHistogram(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if counts == nil {
		counts = []store.ReasonCount{}
	}

	var total int64
	for _, c := range counts {
		total += c.Count
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reasons": counts,
		"total":   total,
	})
}

// handleGetTransaction returns one loaded transaction. Ids are matched the
// way the transformer normalizes them.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "id")))
	if id == "" {
		respondBadRequest(w, r, "missing transaction id")
		return
	}

	t, err := s.deps.Queries.GetTransaction(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   http.StatusText(http.StatusNotFound),
			Message: "No transaction with id " + id,
			Action:  "Check the id; rejected rows are listed under /api/rejections",
			Code:    "NF001",
		})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			msg := core.MapError(err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unavailable",
				"database": msg.Message,
				"code":     msg.Code,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"runs":   s.limiter.Status(),
	})
}
