package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/entsoeprices/dayahead/pkg/log"
)

// handleAdminFetch triggers an immediate fetch cycle covering today and
// tomorrow for every active zone, and returns 202 Accepted; the fetch
// itself runs in the background since a full zone fanout can take longer
// than a reasonable HTTP timeout.
func (s *Server) handleAdminFetch(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx := context.Background()
		summary, err := s.orchestrator.FetchAllPrices(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "admin-triggered fetch failed", "error", err)
			return
		}
		log.Ctx(ctx).InfoContext(ctx, "admin-triggered fetch completed",
			"success", summary.SuccessCount, "nodata", summary.NoDataCount, "errors", summary.ErrorCount)
	}()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "accepted"})
}

// backfillRequest is the JSON body accepted by POST /api/v1/admin/backfill.
// Start and End use YYYY-MM-DD and are inclusive; Zones is optional and
// defaults to every active zone when empty.
type backfillRequest struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Zones []string `json:"zones,omitempty"`
}

// handleAdminBackfill triggers an immediate gap scan and refetch over the
// requested inclusive date range, returning 202 Accepted and running the
// backfill in the background.
func (s *Server) handleAdminBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, r, "invalid JSON body, expected {start, end, zones?}", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.DateOnly, req.Start)
	if err != nil {
		writeJSONError(w, r, "invalid start date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.DateOnly, req.End)
	if err != nil {
		writeJSONError(w, r, "invalid end date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if end.Before(start) {
		writeJSONError(w, r, "end date must not be before start date", http.StatusBadRequest)
		return
	}

	go func() {
		ctx := context.Background()
		result, err := s.backfill.Run(ctx, start, end, req.Zones)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "admin-triggered backfill failed", "error", err)
			return
		}
		log.Ctx(ctx).InfoContext(ctx, "admin-triggered backfill completed",
			"dates_checked", result.DatesChecked, "dates_with_gaps", result.DatesWithGaps,
			"prices_fetched", result.PricesFetched, "prices_stored", result.PricesStored)
	}()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{
		"status": "accepted",
		"start":  start.Format(time.DateOnly),
		"end":    end.Format(time.DateOnly),
	})
}
