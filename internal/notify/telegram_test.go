package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/calder-health/biosense/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Glucose: 54.5 mg/dL", "Glucose: 54\\.5 mg/dL"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"range (70 - 180)", "range \\(70 \\- 180\\)"},
		{"`code`", "\\`code\\`"},
		{">note", "\\>note"},
		{"a+b=c", "a\\+b\\=c"},
	}
	for _, tc := range tests {
		if got := escapeMarkdownV2(tc.input); got != tc.expected {
			t.Errorf("escapeMarkdownV2(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestFormatAlerts(t *testing.T) {
	created := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	alerts := []models.Alert{
		{
			ID:             "a1",
			UserID:         "u1",
			CreatedAt:      created,
			Status:         models.AlertActive,
			Title:          "🚨 Critically low glucose: 50",
			Recommendation: "Consume 15g fast-acting carbs.",
			Anomaly: models.Anomaly{
				Timestamp:     created,
				Biomarker:     models.BiomarkerGlucose,
				Type:          models.AnomalyPoint,
				Priority:      models.PriorityCritical,
				Value:         50,
				ExpectedRange: models.Range{Low: 54, High: 250},
			},
		},
		{
			ID:        "a2",
			UserID:    "u1",
			CreatedAt: created,
			Status:    models.AlertActive,
			Title:     "⚠️ High heart_rate: 120",
			Anomaly: models.Anomaly{
				Timestamp:     created,
				Biomarker:     models.BiomarkerHeartRate,
				Type:          models.AnomalyPoint,
				Priority:      models.PriorityHigh,
				Value:         120,
				ExpectedRange: models.Range{Low: 50, High: 100},
			},
		},
	}

	msg := formatAlerts(alerts)

	if !strings.Contains(msg, "Biomarker Alerts") {
		t.Error("Expected message header")
	}
	if !strings.Contains(msg, "2026\\-03\\-15 09:30:00") {
		t.Error("Expected escaped detection date")
	}
	if !strings.Contains(msg, "1\\.") || !strings.Contains(msg, "2\\.") {
		t.Error("Expected numbered entries")
	}
	if !strings.Contains(msg, "Critically low glucose: 50") {
		t.Error("Expected alert title in message")
	}
	if !strings.Contains(msg, "💡") {
		t.Error("Expected recommendation line for the first alert")
	}
	if strings.Contains(msg, "50.0") {
		t.Error("Expected numeric values to be MarkdownV2-escaped")
	}
}
