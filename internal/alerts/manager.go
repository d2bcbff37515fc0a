// Package alerts converts anomalies into user-facing alerts, deduplicating
// against a bounded window of recent anomalies and tracking each alert's
// lifecycle through a strict state machine.
package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calder-health/biosense/internal/logger"
	"github.com/calder-health/biosense/internal/models"
)

const (
	// dedupRingSize bounds how many recent anomalies are compared for
	// duplicates; older ones age out.
	dedupRingSize = 50
	// dedupWindow is the timestamp proximity that makes two anomalies of
	// the same biomarker and type duplicates.
	dedupWindow = time.Hour
)

// Manager owns one user's alerts for one analysis run. Not safe for
// concurrent use; construct one per user per run or guard externally.
type Manager struct {
	userID string
	alerts map[string]*models.Alert
	recent []models.Anomaly // bounded dedup ring, newest last
}

// NewManager creates an alert manager scoped to one user.
func NewManager(userID string) *Manager {
	return &Manager{
		userID: userID,
		alerts: make(map[string]*models.Alert),
	}
}

// CreateAlert turns an anomaly into an alert, or returns nil when the
// anomaly duplicates one seen recently (same biomarker, same type, within
// an hour).
func (m *Manager) CreateAlert(anomaly models.Anomaly) *models.Alert {
	if m.isDuplicate(anomaly) {
		return nil
	}

	alert := &models.Alert{
		ID:             uuid.New().String(),
		UserID:         m.userID,
		CreatedAt:      time.Now().UTC(),
		Anomaly:        anomaly,
		Status:         models.AlertActive,
		Title:          buildTitle(anomaly),
		Message:        buildMessage(anomaly),
		Recommendation: recommendationFor(anomaly),
	}

	m.alerts[alert.ID] = alert
	m.recent = append(m.recent, anomaly)
	if len(m.recent) > dedupRingSize {
		m.recent = m.recent[len(m.recent)-dedupRingSize:]
	}

	logger.Info("Created alert %s for user %s: %s", alert.ID, m.userID, alert.Title)
	return alert
}

// Acknowledge marks an active alert as acknowledged.
func (m *Manager) Acknowledge(alertID string) bool {
	return m.transition(alertID, models.AlertAcknowledged)
}

// Resolve marks an active or acknowledged alert as resolved.
func (m *Manager) Resolve(alertID string) bool {
	return m.transition(alertID, models.AlertResolved)
}

// Dismiss marks an active or acknowledged alert as dismissed.
func (m *Manager) Dismiss(alertID string) bool {
	return m.transition(alertID, models.AlertDismissed)
}

// transition applies the state machine. Rejected transitions return false
// and leave the alert untouched.
func (m *Manager) transition(alertID string, next models.AlertStatus) bool {
	alert, ok := m.alerts[alertID]
	if !ok || !alert.Status.CanTransition(next) {
		return false
	}

	now := time.Now().UTC()
	alert.Status = next
	switch next {
	case models.AlertAcknowledged:
		alert.AcknowledgedAt = &now
	case models.AlertResolved:
		alert.ResolvedAt = &now
	}
	return true
}

// ActiveAlerts returns all alerts still in the active state.
func (m *Manager) ActiveAlerts() []models.Alert {
	var out []models.Alert
	for _, a := range m.alerts {
		if a.Status == models.AlertActive {
			out = append(out, *a)
		}
	}
	return out
}

// AlertsByPriority returns active alerts of the given priority.
func (m *Manager) AlertsByPriority(p models.Priority) []models.Alert {
	var out []models.Alert
	for _, a := range m.alerts {
		if a.Status == models.AlertActive && a.Anomaly.Priority == p {
			out = append(out, *a)
		}
	}
	return out
}

// Get returns a copy of the alert with the given ID.
func (m *Manager) Get(alertID string) (models.Alert, bool) {
	a, ok := m.alerts[alertID]
	if !ok {
		return models.Alert{}, false
	}
	return *a, true
}

func (m *Manager) isDuplicate(anomaly models.Anomaly) bool {
	for _, recent := range m.recent {
		if recent.Biomarker == anomaly.Biomarker &&
			recent.Type == anomaly.Type &&
			absDuration(recent.Timestamp.Sub(anomaly.Timestamp)) < dedupWindow {
			return true
		}
	}
	return false
}

var priorityMarkers = map[models.Priority]string{
	models.PriorityCritical: "🚨",
	models.PriorityHigh:     "⚠️",
	models.PriorityMedium:   "📊",
	models.PriorityLow:      "ℹ️",
}

func buildTitle(a models.Anomaly) string {
	marker := priorityMarkers[a.Priority]
	if marker == "" {
		return a.Description
	}
	return marker + " " + a.Description
}

func buildMessage(a models.Anomaly) string {
	parts := []string{
		fmt.Sprintf("Detected at: %s", a.Timestamp.Format("2006-01-02 15:04")),
		fmt.Sprintf("Current value: %.1f", a.Value),
		fmt.Sprintf("Expected range: %.1f - %.1f", a.ExpectedRange.Low, a.ExpectedRange.High),
	}
	if a.ClinicalContext != "" {
		parts = append(parts, fmt.Sprintf("Context: %s", a.ClinicalContext))
	}
	return strings.Join(parts, "\n")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
