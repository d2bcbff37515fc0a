package models

import (
	"fmt"
	"time"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertDismissed    AlertStatus = "dismissed"
)

// Valid reports whether s is one of the known statuses.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertAcknowledged, AlertResolved, AlertDismissed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. Terminal alerts never
// transition again.
func (s AlertStatus) Terminal() bool {
	return s == AlertResolved || s == AlertDismissed
}

// CanTransition reports whether a transition from s to next is allowed.
// Allowed edges: active→acknowledged, active→resolved, active→dismissed,
// acknowledged→resolved, acknowledged→dismissed. No-ops are rejected.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	switch s {
	case AlertActive:
		return next == AlertAcknowledged || next == AlertResolved || next == AlertDismissed
	case AlertAcknowledged:
		return next == AlertResolved || next == AlertDismissed
	}
	return false
}

// Alert is a deduplicated, user-facing wrapper around an anomaly with
// lifecycle state. The only stateful entity in the analytics core.
type Alert struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	CreatedAt      time.Time   `json:"created_at"`
	Anomaly        Anomaly     `json:"anomaly"`
	Status         AlertStatus `json:"status"`
	Title          string      `json:"title"`
	Message        string      `json:"message"`
	Recommendation string      `json:"recommendation,omitempty"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// Validate checks alert field constraints.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("alert ID must not be empty")
	}
	if a.UserID == "" {
		return fmt.Errorf("alert user ID must not be empty")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("unknown alert status: %q", a.Status)
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("alert created at must be set")
	}
	return a.Anomaly.Validate()
}
