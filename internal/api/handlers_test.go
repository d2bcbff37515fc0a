package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/calder-health/biosense/internal/analytics"
	"github.com/calder-health/biosense/internal/correlation"
	"github.com/calder-health/biosense/internal/detector"
	"github.com/calder-health/biosense/internal/models"
	"github.com/calder-health/biosense/internal/storage"
	"github.com/calder-health/biosense/internal/trend"
)

func testServer(t *testing.T) (*Server, *storage.Storage) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "api-test.db"))
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	factory := func(userID string) (*analytics.Service, error) {
		det, err := detector.New(detector.DefaultConfig(), nil)
		if err != nil {
			return nil, err
		}
		tr, err := trend.NewAnalyzer(0.05)
		if err != nil {
			return nil, err
		}
		corr, err := correlation.NewEngine(userID, store, correlation.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return analytics.NewService(userID, store, det, tr, corr, analytics.DefaultConfig()), nil
	}

	return NewServer(store, nil, factory), store
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	rec := doRequest(t, srv, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %q", resp["status"])
	}
}

func TestIngestSamples(t *testing.T) {
	srv, store := testServer(t)
	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)

	body := map[string]any{
		"biomarker": models.BiomarkerHeartRate,
		"samples": []map[string]any{
			{"timestamp": now.Format(time.RFC3339), "value": 72},
			{"timestamp": now.Add(time.Hour).Format(time.RFC3339), "value": 75},
		},
	}
	rec := doRequest(t, srv, "POST", "/api/v1/users/u1/samples", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	series, err := store.LoadSeries(context.Background(), "u1", models.BiomarkerHeartRate, now, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("LoadSeries failed: %v", err)
	}
	if len(series) != 2 {
		t.Errorf("Expected 2 stored samples, got %d", len(series))
	}
}

func TestIngestSamplesRejectsBadInput(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("POST", "/api/v1/users/u1/samples", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", rec.Code)
	}

	rec = doRequest(t, srv, "POST", "/api/v1/users/u1/samples", map[string]any{"biomarker": "", "samples": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing biomarker, got %d", rec.Code)
	}

	rec = doRequest(t, srv, "POST", "/api/v1/users/u1/samples", map[string]any{
		"biomarker": models.BiomarkerGlucose,
		"samples":   []any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty samples, got %d", rec.Code)
	}
}

func TestListAlerts(t *testing.T) {
	srv, store := testServer(t)
	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)

	rec := doRequest(t, srv, "GET", "/api/v1/users/u1/alerts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var empty []models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("Expected JSON array, got %s: %v", rec.Body.String(), err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected empty alert list, got %d", len(empty))
	}

	saveTestAlert(t, store, "a1", "u1", models.AlertActive, now)
	saveTestAlert(t, store, "a2", "u1", models.AlertResolved, now.Add(time.Minute))

	rec = doRequest(t, srv, "GET", "/api/v1/users/u1/alerts", nil)
	var all []models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("Failed to decode alerts: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 alerts, got %d", len(all))
	}

	rec = doRequest(t, srv, "GET", "/api/v1/users/u1/alerts?status=active", nil)
	var active []models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &active); err != nil {
		t.Fatalf("Failed to decode alerts: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a1" {
		t.Errorf("Expected only the active alert, got %+v", active)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/users/u1/alerts?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestAlertTransitions(t *testing.T) {
	srv, store := testServer(t)
	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	saveTestAlert(t, store, "a1", "u1", models.AlertActive, now)

	rec := doRequest(t, srv, "POST", "/api/v1/alerts/a1/acknowledge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var alert models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatalf("Failed to decode alert: %v", err)
	}
	if alert.Status != models.AlertAcknowledged || alert.AcknowledgedAt == nil {
		t.Errorf("Expected acknowledged alert, got %+v", alert)
	}

	// Acknowledging twice is a conflict.
	rec = doRequest(t, srv, "POST", "/api/v1/alerts/a1/acknowledge", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for repeated acknowledge, got %d", rec.Code)
	}

	rec = doRequest(t, srv, "POST", "/api/v1/alerts/a1/resolve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for resolve, got %d", rec.Code)
	}

	rec = doRequest(t, srv, "POST", "/api/v1/alerts/a1/dismiss", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for dismissing a resolved alert, got %d", rec.Code)
	}

	rec = doRequest(t, srv, "POST", "/api/v1/alerts/missing/resolve", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown alert, got %d", rec.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	srv, store := testServer(t)
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	if err := store.AddSamples(context.Background(), "u1", models.BiomarkerGlucose, []models.Sample{
		{Timestamp: day.Add(8 * time.Hour), Value: 50, Valid: true},
	}); err != nil {
		t.Fatalf("AddSamples failed: %v", err)
	}

	rec := doRequest(t, srv, "GET", "/api/v1/users/u1/report?date=2026-03-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report models.DailyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if report.UserID != "u1" || report.Date != "2026-03-15" {
		t.Errorf("Unexpected report header: %s %s", report.UserID, report.Date)
	}
	if len(report.Alerts) != 1 {
		t.Fatalf("Expected 1 alert from the critical reading, got %d", len(report.Alerts))
	}

	// The report run persists its alerts.
	saved, err := store.AlertsByUser(context.Background(), "u1", models.AlertActive)
	if err != nil {
		t.Fatalf("AlertsByUser failed: %v", err)
	}
	if len(saved) != 1 {
		t.Errorf("Expected persisted alert, got %d", len(saved))
	}

	rec = doRequest(t, srv, "GET", "/api/v1/users/u1/report?date=15-03-2026", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestScoreEndpoint(t *testing.T) {
	srv, store := testServer(t)
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	start := date.AddDate(0, 0, -6)

	samples := make([]models.Sample, 7)
	for i := range samples {
		samples[i] = models.Sample{Timestamp: start.AddDate(0, 0, i).Add(8 * time.Hour), Value: 60, Valid: true}
	}
	if err := store.AddSamples(context.Background(), "u1", models.BiomarkerHRVRMSSD, samples); err != nil {
		t.Fatalf("AddSamples failed: %v", err)
	}

	rec := doRequest(t, srv, "GET", "/api/v1/users/u1/score?date=2026-03-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var score models.HealthScore
	if err := json.Unmarshal(rec.Body.Bytes(), &score); err != nil {
		t.Fatalf("Failed to decode score: %v", err)
	}
	if score.Score == nil || *score.Score != 100 {
		t.Errorf("Expected score 100 from high RMSSD, got %+v", score.Score)
	}
}

func saveTestAlert(t *testing.T, store *storage.Storage, id, userID string, status models.AlertStatus, createdAt time.Time) {
	t.Helper()
	alert := &models.Alert{
		ID:        id,
		UserID:    userID,
		CreatedAt: createdAt,
		Status:    status,
		Title:     fmt.Sprintf("⚠️ High glucose: %s", id),
		Message:   "Current value: 190.0",
		Anomaly: models.Anomaly{
			Timestamp:      createdAt,
			Biomarker:      models.BiomarkerGlucose,
			Type:           models.AnomalyPoint,
			Priority:       models.PriorityHigh,
			Value:          190,
			ExpectedRange:  models.Range{Low: 70, High: 180},
			DeviationScore: 0.056,
			Description:    "High glucose: 190",
		},
	}
	if err := store.SaveAlert(context.Background(), alert); err != nil {
		t.Fatalf("SaveAlert failed: %v", err)
	}
}
