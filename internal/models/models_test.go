package models

import (
	"testing"
	"time"
)

func TestAlertStatusTransitions(t *testing.T) {
	tests := []struct {
		from    AlertStatus
		to      AlertStatus
		allowed bool
	}{
		{AlertActive, AlertAcknowledged, true},
		{AlertActive, AlertResolved, true},
		{AlertActive, AlertDismissed, true},
		{AlertAcknowledged, AlertResolved, true},
		{AlertAcknowledged, AlertDismissed, true},
		{AlertAcknowledged, AlertActive, false},
		{AlertResolved, AlertAcknowledged, false},
		{AlertResolved, AlertDismissed, false},
		{AlertDismissed, AlertResolved, false},
		{AlertActive, AlertActive, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, expected %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestAlertStatusTerminal(t *testing.T) {
	if AlertActive.Terminal() || AlertAcknowledged.Terminal() {
		t.Error("Active and acknowledged must not be terminal")
	}
	if !AlertResolved.Terminal() || !AlertDismissed.Terminal() {
		t.Error("Resolved and dismissed must be terminal")
	}
}

func TestAlertStatusValid(t *testing.T) {
	if !AlertActive.Valid() {
		t.Error("Expected active to be valid")
	}
	if AlertStatus("closed").Valid() {
		t.Error("Expected unknown status to be invalid")
	}
}

func TestAnomalyValidate(t *testing.T) {
	valid := Anomaly{
		Timestamp:      time.Now(),
		Biomarker:      BiomarkerGlucose,
		Type:           AnomalyPoint,
		Priority:       PriorityCritical,
		Value:          50,
		DeviationScore: 0.1,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid anomaly, got %v", err)
	}

	bad := valid
	bad.Biomarker = ""
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for empty biomarker")
	}

	bad = valid
	bad.Type = "spike"
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for unknown anomaly type")
	}

	bad = valid
	bad.DeviationScore = -1
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for negative deviation score")
	}

	bad = valid
	bad.Timestamp = time.Time{}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for zero timestamp")
	}
}

func TestAlertValidate(t *testing.T) {
	alert := Alert{
		ID:        "a1",
		UserID:    "u1",
		CreatedAt: time.Now(),
		Status:    AlertActive,
		Anomaly: Anomaly{
			Timestamp: time.Now(),
			Biomarker: BiomarkerHeartRate,
			Type:      AnomalyPoint,
			Priority:  PriorityHigh,
		},
	}
	if err := alert.Validate(); err != nil {
		t.Errorf("Expected valid alert, got %v", err)
	}

	bad := alert
	bad.ID = ""
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for empty ID")
	}

	bad = alert
	bad.Status = "open"
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestSeriesValidate(t *testing.T) {
	now := time.Now()
	good := Series{
		{Timestamp: now, Value: 1, Valid: true},
		{Timestamp: now.Add(time.Minute), Value: 2, Valid: true},
	}
	if err := good.Validate(); err != nil {
		t.Errorf("Expected valid series, got %v", err)
	}

	dup := Series{
		{Timestamp: now, Value: 1, Valid: true},
		{Timestamp: now, Value: 2, Valid: true},
	}
	if err := dup.Validate(); err == nil {
		t.Error("Expected error for duplicate timestamps")
	}
}

func TestSeriesValidHelpers(t *testing.T) {
	now := time.Now()
	s := Series{
		{Timestamp: now, Value: 1, Valid: true},
		{Timestamp: now.Add(time.Hour), Valid: false},
		{Timestamp: now.Add(2 * time.Hour), Value: 3, Valid: true},
	}

	if n := s.ValidCount(); n != 2 {
		t.Errorf("Expected 2 valid samples, got %d", n)
	}
	vals := s.ValidValues()
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 3 {
		t.Errorf("Unexpected valid values: %v", vals)
	}
	compact := s.Compact()
	if len(compact) != 2 {
		t.Errorf("Expected compact length 2, got %d", len(compact))
	}
	for _, sm := range compact {
		if !sm.Valid {
			t.Error("Compact must drop invalid samples")
		}
	}
}
