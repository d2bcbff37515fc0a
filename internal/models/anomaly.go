package models

import (
	"fmt"
	"time"
)

// AnomalyType classifies the shape of a detected deviation. The set is
// closed: adding a new type requires a code change here and in every switch
// over it.
type AnomalyType string

const (
	AnomalyPoint      AnomalyType = "point"       // single outlier value
	AnomalyLevelShift AnomalyType = "level_shift" // sustained change in baseline
	AnomalyTrend      AnomalyType = "trend"       // gradual change over time
	AnomalyPattern    AnomalyType = "pattern"     // unusual pattern, e.g. missing sleep
)

// Valid reports whether t is one of the known anomaly types.
func (t AnomalyType) Valid() bool {
	switch t {
	case AnomalyPoint, AnomalyLevelShift, AnomalyTrend, AnomalyPattern:
		return true
	}
	return false
}

// Priority ranks how urgently an anomaly should be reviewed.
type Priority string

const (
	PriorityCritical Priority = "critical" // immediate attention needed
	PriorityHigh     Priority = "high"     // review within 48h
	PriorityMedium   Priority = "medium"   // review at next visit
	PriorityLow      Priority = "low"      // monitor only
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Range is an inclusive expected value band.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Anomaly is a detected deviation in one biomarker, not yet surfaced to the
// user. Immutable once created.
type Anomaly struct {
	Timestamp       time.Time   `json:"timestamp"`
	Biomarker       string      `json:"biomarker"`
	Type            AnomalyType `json:"anomaly_type"`
	Priority        Priority    `json:"priority"`
	Value           float64     `json:"value"`
	ExpectedRange   Range       `json:"expected_range"`
	DeviationScore  float64     `json:"deviation_score"`
	Description     string      `json:"description"`
	ClinicalContext string      `json:"clinical_context,omitempty"`
}

// Validate checks anomaly field constraints.
func (a *Anomaly) Validate() error {
	if a.Biomarker == "" {
		return fmt.Errorf("anomaly biomarker must not be empty")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("unknown anomaly type: %q", a.Type)
	}
	if !a.Priority.Valid() {
		return fmt.Errorf("unknown priority: %q", a.Priority)
	}
	if a.DeviationScore < 0 {
		return fmt.Errorf("deviation score must not be negative")
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("anomaly timestamp must be set")
	}
	return nil
}
