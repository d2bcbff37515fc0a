// Package models defines the core domain entities: biomarker samples,
// anomalies, alerts, and analysis result records.
package models

import (
	"errors"
	"time"
)

// Canonical biomarker names used across detection, storage, and reporting.
const (
	BiomarkerHeartRate       = "heart_rate"
	BiomarkerHRVSDNN         = "hrv_sdnn"
	BiomarkerHRVRMSSD        = "hrv_rmssd"
	BiomarkerGlucose         = "glucose"
	BiomarkerBPSystolic      = "blood_pressure_systolic"
	BiomarkerSleepTotal      = "sleep_total"
	BiomarkerSleepDeep       = "sleep_deep"
	BiomarkerSleepEfficiency = "sleep_efficiency"
	BiomarkerSteps           = "steps"
)

// Sample is a single observation of one biomarker. Valid is false for an
// explicit gap, e.g. an empty day in a daily resample; gaps are kept in place
// so that two aligned series stay positionally comparable.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Valid     bool      `json:"valid"`
}

// Series is an ordered sequence of samples for one biomarker and one user.
// Timestamps must be strictly increasing; the source guarantees ordering.
type Series []Sample

// Validate checks the strictly-increasing timestamp invariant.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return errors.New("series timestamps must be strictly increasing")
		}
	}
	return nil
}

// ValidCount returns the number of non-missing samples.
func (s Series) ValidCount() int {
	n := 0
	for _, sm := range s {
		if sm.Valid {
			n++
		}
	}
	return n
}

// ValidValues returns the non-missing values in order.
func (s Series) ValidValues() []float64 {
	out := make([]float64, 0, len(s))
	for _, sm := range s {
		if sm.Valid {
			out = append(out, sm.Value)
		}
	}
	return out
}

// Compact returns the series with missing samples removed.
func (s Series) Compact() Series {
	out := make(Series, 0, len(s))
	for _, sm := range s {
		if sm.Valid {
			out = append(out, sm)
		}
	}
	return out
}
