package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/calder-health/biosense/internal/logger"
	"github.com/calder-health/biosense/internal/models"
)

type samplePayload struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ingestRequest struct {
	Biomarker string          `json:"biomarker"`
	Samples   []samplePayload `json:"samples"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleIngestSamples(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Biomarker == "" {
		writeError(w, http.StatusBadRequest, "biomarker is required")
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "samples must not be empty")
		return
	}

	samples := make([]models.Sample, 0, len(req.Samples))
	for _, p := range req.Samples {
		if p.Timestamp.IsZero() {
			writeError(w, http.StatusBadRequest, "sample timestamp is required")
			return
		}
		samples = append(samples, models.Sample{
			Timestamp: p.Timestamp.UTC(),
			Value:     p.Value,
			Valid:     true,
		})
	}

	if err := s.store.AddSamples(r.Context(), userID, req.Biomarker, samples); err != nil {
		logger.Error("Failed to ingest %d samples for user %s: %v", len(samples), userID, err)
		writeError(w, http.StatusInternalServerError, "failed to store samples")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"user_id":   userID,
		"biomarker": req.Biomarker,
		"count":     len(samples),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	status := models.AlertStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown alert status")
		return
	}

	alerts, err := s.store.AlertsByUser(r.Context(), userID, status)
	if err != nil {
		logger.Error("Failed to list alerts for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleAlertTransition serves acknowledge, resolve, and dismiss; the action
// is the last path segment.
func (s *Server) handleAlertTransition(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]

	var next models.AlertStatus
	switch action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]; action {
	case "acknowledge":
		next = models.AlertAcknowledged
	case "resolve":
		next = models.AlertResolved
	case "dismiss":
		next = models.AlertDismissed
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	ok, err := s.store.TransitionAlert(r.Context(), alertID, next)
	if err != nil {
		logger.Error("Failed to transition alert %s to %s: %v", alertID, next, err)
		writeError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	if !ok {
		alert, err := s.store.GetAlert(r.Context(), alertID)
		if err == nil && alert == nil {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusConflict, "transition not allowed from current status")
		return
	}

	alert, err := s.store.GetAlert(r.Context(), alertID)
	if err != nil || alert == nil {
		writeError(w, http.StatusInternalServerError, "failed to load updated alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}
	dateStr := date.Format("2006-01-02")

	if s.reports != nil {
		cached, err := s.reports.GetReport(r.Context(), userID, dateStr)
		if err != nil {
			logger.Warn("Report cache lookup failed for user %s: %v", userID, err)
		} else if cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	svc, err := s.newService(userID)
	if err != nil {
		logger.Error("Failed to build analysis service for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to run analysis")
		return
	}

	report := svc.RunDailyAnalysis(r.Context(), date)
	for i := range report.Alerts {
		if err := s.store.SaveAlert(r.Context(), &report.Alerts[i]); err != nil {
			logger.Error("Failed to persist alert %s: %v", report.Alerts[i].ID, err)
		}
	}

	if s.reports != nil {
		if err := s.reports.SetReport(r.Context(), report); err != nil {
			logger.Warn("Failed to cache report for user %s: %v", userID, err)
		}
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	svc, err := s.newService(userID)
	if err != nil {
		logger.Error("Failed to build analysis service for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to compute score")
		return
	}

	// Score the week ending at the end of the requested day.
	score := svc.HealthScore(r.Context(), date.Add(24*time.Hour-time.Second))
	writeJSON(w, http.StatusOK, score)
}

// parseDateParam reads the optional date query parameter (YYYY-MM-DD),
// defaulting to today in UTC. Writes a 400 and returns false on bad input.
func parseDateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return date, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
