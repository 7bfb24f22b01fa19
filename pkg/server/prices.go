package server

import (
	"net/http"
	"strconv"
	"time"
)

// defaultLatestMaxAgeHours bounds /api/v1/prices/latest to recent rows
// when the caller does not supply its own max_age_hours.
const defaultLatestMaxAgeHours = 24

// parseRange extracts the "start"/"end" RFC3339 query parameters,
// defaulting to [today, tomorrow) in UTC when absent.
func parseRange(r *http.Request) (start, end time.Time, err error) {
	now := time.Now().UTC()
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 0, 1)

	if v := r.URL.Query().Get("start"); v != "" {
		start, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		end, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

func (s *Server) handlePricesByZone(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	start, end, err := parseRange(r)
	if err != nil {
		writeJSONError(w, r, "invalid start/end query parameter", http.StatusBadRequest)
		return
	}

	prices, err := s.repo.GetPricesByZone(r.Context(), zone, start, end)
	if err != nil {
		writeJSONError(w, r, err.Error(), classifyRepoError(err))
		return
	}
	writeJSON(w, prices)
}

func (s *Server) handlePricesByCountry(w http.ResponseWriter, r *http.Request) {
	country := r.PathValue("country")
	start, end, err := parseRange(r)
	if err != nil {
		writeJSONError(w, r, "invalid start/end query parameter", http.StatusBadRequest)
		return
	}

	prices, err := s.repo.GetPricesByCountry(r.Context(), country, start, end)
	if err != nil {
		writeJSONError(w, r, err.Error(), classifyRepoError(err))
		return
	}
	writeJSON(w, prices)
}

func (s *Server) handleLatestPrices(w http.ResponseWriter, r *http.Request) {
	maxAgeHours := defaultLatestMaxAgeHours
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, r, "invalid max_age_hours query parameter, expected an integer", http.StatusBadRequest)
			return
		}
		maxAgeHours = parsed
	}

	prices, err := s.repo.GetLatestPrices(r.Context(), &maxAgeHours)
	if err != nil {
		writeJSONError(w, r, err.Error(), classifyRepoError(err))
		return
	}
	writeJSON(w, prices)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.repo.LoadZones(r.Context())
	if err != nil {
		writeJSONError(w, r, err.Error(), classifyRepoError(err))
		return
	}
	writeJSON(w, zones)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.repo.GetCountries(r.Context())
	if err != nil {
		writeJSONError(w, r, err.Error(), classifyRepoError(err))
		return
	}
	writeJSON(w, countries)
}
