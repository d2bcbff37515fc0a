package models

import "time"

// TrendDirection is the outcome of a trend fit.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// CorrelationResult is one lagged correlation between two biomarkers.
// Computed fresh per query; never persisted by the engine.
type CorrelationResult struct {
	Biomarker1     string  `json:"biomarker_1"`
	Biomarker2     string  `json:"biomarker_2"`
	Correlation    float64 `json:"correlation"`
	PValue         float64 `json:"p_value"`
	LagDays        int     `json:"lag_days"`
	NObservations  int     `json:"n_observations"`
	IsSignificant  bool    `json:"is_significant"`
	Interpretation string  `json:"interpretation,omitempty"`
}

// TrendResult is a linear trend fitted to one biomarker series.
type TrendResult struct {
	Biomarker     string         `json:"biomarker"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       time.Time      `json:"end_date"`
	Slope         float64        `json:"slope"`
	SlopePerDay   float64        `json:"slope_per_day"`
	RSquared      float64        `json:"r_squared"`
	PValue        float64        `json:"p_value"`
	Direction     TrendDirection `json:"direction"`
	IsSignificant bool           `json:"is_significant"`
	PercentChange float64        `json:"percent_change"`
}

// ChangePoint is a timestamp at which a series' local mean shifts
// significantly, detected via sliding-window comparison.
type ChangePoint struct {
	Timestamp       time.Time `json:"timestamp"`
	Biomarker       string    `json:"biomarker"`
	BeforeMean      float64   `json:"before_mean"`
	AfterMean       float64   `json:"after_mean"`
	ChangeMagnitude float64   `json:"change_magnitude"`
	ChangePercent   float64   `json:"change_percent"`
	Confidence      float64   `json:"confidence"`
}

// BiomarkerSummary holds basic descriptive statistics for one day.
type BiomarkerSummary struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// GlucoseSummary extends the basic summary with time-in-range.
type GlucoseSummary struct {
	BiomarkerSummary
	TimeInRangePct float64 `json:"time_in_range_pct"`
}

// HRVSummary holds mean HRV statistics; either field may be absent.
type HRVSummary struct {
	SDNNMean  *float64 `json:"sdnn_mean,omitempty"`
	RMSSDMean *float64 `json:"rmssd_mean,omitempty"`
}

// SleepSummary describes the most recent night.
type SleepSummary struct {
	TotalMinutes  int     `json:"total_minutes"`
	DeepMinutes   int     `json:"deep_minutes"`
	EfficiencyPct float64 `json:"efficiency_pct"`
}

// DailySummary aggregates per-biomarker statistics for one day. Sections
// are nil when the corresponding feed had no data.
type DailySummary struct {
	HeartRate *BiomarkerSummary `json:"heart_rate,omitempty"`
	Glucose   *GlucoseSummary   `json:"glucose,omitempty"`
	HRV       *HRVSummary       `json:"hrv,omitempty"`
	Sleep     *SleepSummary     `json:"sleep,omitempty"`
}

// DailyReport is the output of one daily analysis run. Always returned,
// possibly partial: a failed sub-analysis contributes an empty section.
type DailyReport struct {
	UserID       string              `json:"user_id"`
	Date         string              `json:"date"`
	Alerts       []Alert             `json:"alerts"`
	Trends       []TrendResult       `json:"trends"`
	ChangePoints []ChangePoint       `json:"change_points"`
	Correlations []CorrelationResult `json:"correlations"`
	DailySummary DailySummary        `json:"daily_summary"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

// HealthScore is a 0-100 composite over the trailing week. Score is nil
// when no component had data.
type HealthScore struct {
	Score      *float64           `json:"score"`
	Components map[string]float64 `json:"components"`
	Weights    map[string]float64 `json:"weights"`
}
