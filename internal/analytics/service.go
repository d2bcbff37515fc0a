// Package analytics orchestrates anomaly detection, alerting, trend
// analysis, and correlation discovery into per-user daily reports and a
// composite health score.
package analytics

import (
	"context"
	"math"
	"time"

	"github.com/calder-health/biosense/internal/alerts"
	"github.com/calder-health/biosense/internal/correlation"
	"github.com/calder-health/biosense/internal/detector"
	"github.com/calder-health/biosense/internal/logger"
	"github.com/calder-health/biosense/internal/models"
	"github.com/calder-health/biosense/internal/stats"
	"github.com/calder-health/biosense/internal/trend"
)

// Source supplies a user's series, raw or daily-resampled.
type Source interface {
	LoadSeries(ctx context.Context, userID, biomarker string, start, end time.Time) (models.Series, error)
	LoadDailySeries(ctx context.Context, userID, biomarker string, start, end time.Time) (models.Series, error)
}

// Config holds orchestration parameters.
type Config struct {
	// TrackedBiomarkers are scanned for anomalies each day.
	TrackedBiomarkers []string
	// AnalysisBiomarkers feed trend and correlation analysis.
	AnalysisBiomarkers []string
	// TopCorrelations caps how many discovered correlations a report keeps.
	TopCorrelations int
	// ChangePointMinSegment and ChangePointThresholdStd parameterize the
	// monthly change-point scan.
	ChangePointMinSegment   int
	ChangePointThresholdStd float64
}

// DefaultConfig returns the standard orchestration parameters.
func DefaultConfig() Config {
	return Config{
		TrackedBiomarkers: []string{
			models.BiomarkerHeartRate,
			models.BiomarkerGlucose,
			models.BiomarkerHRVSDNN,
		},
		AnalysisBiomarkers: []string{
			models.BiomarkerHeartRate,
			models.BiomarkerHRVSDNN,
			models.BiomarkerGlucose,
		},
		TopCorrelations:         10,
		ChangePointMinSegment:   7,
		ChangePointThresholdStd: 2.0,
	}
}

// Service runs analysis for one user. Construct one per user per run; the
// embedded alert manager is stateful and not safe for sharing across
// goroutines.
type Service struct {
	userID     string
	source     Source
	detector   *detector.Detector
	trends     *trend.Analyzer
	correlator *correlation.Engine
	alerts     *alerts.Manager
	cfg        Config
}

// NewService wires the four analysis components for one user.
func NewService(userID string, source Source, det *detector.Detector, tr *trend.Analyzer, corr *correlation.Engine, cfg Config) *Service {
	if cfg.TopCorrelations <= 0 {
		cfg.TopCorrelations = 10
	}
	if cfg.ChangePointMinSegment < 2 {
		cfg.ChangePointMinSegment = 7
	}
	if cfg.ChangePointThresholdStd <= 0 {
		cfg.ChangePointThresholdStd = 2.0
	}
	return &Service{
		userID:     userID,
		source:     source,
		detector:   det,
		trends:     tr,
		correlator: corr,
		alerts:     alerts.NewManager(userID),
		cfg:        cfg,
	}
}

// AlertManager exposes the run's alert manager for lifecycle operations.
func (s *Service) AlertManager() *alerts.Manager {
	return s.alerts
}

// RunDailyAnalysis analyzes one calendar day: anomalies over the day,
// trends over the trailing week, change points and correlations over the
// trailing month, and a daily summary. A failure in any sub-analysis is
// logged and excluded; the report is always returned, possibly partial.
func (s *Service) RunDailyAnalysis(ctx context.Context, date time.Time) *models.DailyReport {
	started := time.Now()
	analysisRunsTotal.Inc()

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Second)
	weekStart := dayStart.AddDate(0, 0, -7)
	monthStart := dayStart.AddDate(0, 0, -30)

	report := &models.DailyReport{
		UserID:       s.userID,
		Date:         dayStart.Format("2006-01-02"),
		Alerts:       []models.Alert{},
		Trends:       []models.TrendResult{},
		ChangePoints: []models.ChangePoint{},
		Correlations: []models.CorrelationResult{},
		GeneratedAt:  time.Now().UTC(),
	}

	report.Alerts = s.detectDailyAnomalies(ctx, dayStart, dayEnd)
	report.Trends = s.analyzeTrends(ctx, weekStart, dayEnd)
	report.ChangePoints = s.detectChangePoints(ctx, monthStart, dayEnd)
	report.Correlations = s.discoverCorrelations(ctx, monthStart, dayEnd)
	report.DailySummary = s.computeDailySummary(ctx, dayStart, dayEnd)

	analysisDurationSeconds.Observe(time.Since(started).Seconds())
	logger.Info("Daily analysis complete for user %s: %d alerts, %d trends, %d correlations",
		s.userID, len(report.Alerts), len(report.Trends), len(report.Correlations))
	return report
}

func (s *Service) detectDailyAnomalies(ctx context.Context, start, end time.Time) []models.Alert {
	created := []models.Alert{}

	for _, biomarker := range s.cfg.TrackedBiomarkers {
		series, err := s.source.LoadSeries(ctx, s.userID, biomarker, start, end)
		if err != nil {
			analysisFailuresTotal.WithLabelValues("anomaly").Inc()
			logger.Error("Failed to load %s for user %s: %v", biomarker, s.userID, err)
			continue
		}
		if len(series) == 0 {
			continue
		}

		for _, anomaly := range s.detector.Detect(series, biomarker) {
			anomaliesDetectedTotal.WithLabelValues(anomaly.Biomarker, string(anomaly.Priority)).Inc()
			if alert := s.alerts.CreateAlert(anomaly); alert != nil {
				alertsCreatedTotal.Inc()
				created = append(created, *alert)
			}
		}
	}
	return created
}

func (s *Service) analyzeTrends(ctx context.Context, start, end time.Time) []models.TrendResult {
	trends := []models.TrendResult{}

	for _, biomarker := range s.cfg.AnalysisBiomarkers {
		series, err := s.source.LoadDailySeries(ctx, s.userID, biomarker, start, end)
		if err != nil {
			analysisFailuresTotal.WithLabelValues("trend").Inc()
			logger.Error("Failed to load %s trend data for user %s: %v", biomarker, s.userID, err)
			continue
		}

		if result := s.trends.ComputeTrend(series, biomarker); result != nil && result.IsSignificant {
			trends = append(trends, *result)
		}
	}
	return trends
}

func (s *Service) detectChangePoints(ctx context.Context, start, end time.Time) []models.ChangePoint {
	points := []models.ChangePoint{}

	for _, biomarker := range s.cfg.AnalysisBiomarkers {
		series, err := s.source.LoadDailySeries(ctx, s.userID, biomarker, start, end)
		if err != nil {
			analysisFailuresTotal.WithLabelValues("change_point").Inc()
			logger.Error("Failed to load %s history for user %s: %v", biomarker, s.userID, err)
			continue
		}

		found := s.trends.DetectChangePoints(series, biomarker,
			s.cfg.ChangePointMinSegment, s.cfg.ChangePointThresholdStd)
		points = append(points, found...)
	}
	return points
}

func (s *Service) discoverCorrelations(ctx context.Context, start, end time.Time) []models.CorrelationResult {
	results, err := s.correlator.DiscoverAllCorrelations(ctx, s.cfg.AnalysisBiomarkers, start, end, true)
	if err != nil {
		analysisFailuresTotal.WithLabelValues("correlation").Inc()
		logger.Error("Failed to discover correlations for user %s: %v", s.userID, err)
		return []models.CorrelationResult{}
	}
	if len(results) > s.cfg.TopCorrelations {
		results = results[:s.cfg.TopCorrelations]
	}
	if results == nil {
		results = []models.CorrelationResult{}
	}
	return results
}

func (s *Service) computeDailySummary(ctx context.Context, start, end time.Time) models.DailySummary {
	var summary models.DailySummary

	if values := s.loadValues(ctx, models.BiomarkerHeartRate, start, end); len(values) > 0 {
		summary.HeartRate = &models.BiomarkerSummary{
			Mean: stats.Mean(values),
			Min:  stats.Min(values),
			Max:  stats.Max(values),
		}
	}

	if values := s.loadValues(ctx, models.BiomarkerGlucose, start, end); len(values) > 0 {
		inRange := 0
		for _, v := range values {
			if v >= 70 && v <= 180 {
				inRange++
			}
		}
		summary.Glucose = &models.GlucoseSummary{
			BiomarkerSummary: models.BiomarkerSummary{
				Mean: stats.Mean(values),
				Min:  stats.Min(values),
				Max:  stats.Max(values),
			},
			TimeInRangePct: float64(inRange) / float64(len(values)) * 100,
		}
	}

	sdnn := s.loadValues(ctx, models.BiomarkerHRVSDNN, start, end)
	rmssd := s.loadValues(ctx, models.BiomarkerHRVRMSSD, start, end)
	if len(sdnn) > 0 || len(rmssd) > 0 {
		hrv := &models.HRVSummary{}
		if len(sdnn) > 0 {
			m := stats.Mean(sdnn)
			hrv.SDNNMean = &m
		}
		if len(rmssd) > 0 {
			m := stats.Mean(rmssd)
			hrv.RMSSDMean = &m
		}
		summary.HRV = hrv
	}

	// Sleep covers the previous night, so the window reaches one day back.
	sleepStart := start.AddDate(0, 0, -1)
	if total, ok := s.latestValue(ctx, models.BiomarkerSleepTotal, sleepStart, end); ok {
		deep, _ := s.latestValue(ctx, models.BiomarkerSleepDeep, sleepStart, end)
		efficiency, _ := s.latestValue(ctx, models.BiomarkerSleepEfficiency, sleepStart, end)
		summary.Sleep = &models.SleepSummary{
			TotalMinutes:  int(total),
			DeepMinutes:   int(deep),
			EfficiencyPct: efficiency,
		}
	}

	return summary
}

// HealthScore computes the 0-100 composite over the trailing seven days.
// Each component present gets equal weight; missing components are omitted
// and the average renormalizes over what remains. Score is nil when no
// component has data.
func (s *Service) HealthScore(ctx context.Context, date time.Time) *models.HealthScore {
	start := date.AddDate(0, 0, -7)

	scores := make(map[string]float64)
	weights := make(map[string]float64)

	// HRV: autonomic health via RMSSD, higher is better.
	if rmssd := s.loadValues(ctx, models.BiomarkerHRVRMSSD, start, date); len(rmssd) > 0 {
		mean := stats.Mean(rmssd)
		switch {
		case mean >= 50:
			scores["hrv"] = 100
		case mean >= 30:
			scores["hrv"] = 70 + (mean-30)*1.5
		default:
			scores["hrv"] = math.Max(0, mean*2.3)
		}
		weights["hrv"] = 0.25
	}

	// Sleep: average of duration score and efficiency. Target duration is
	// 7-9 hours.
	if total := s.loadValues(ctx, models.BiomarkerSleepTotal, start, date); len(total) > 0 {
		avgDuration := stats.Mean(total)
		var durationScore float64
		switch {
		case avgDuration >= 420 && avgDuration <= 540:
			durationScore = 100
		case avgDuration < 420:
			durationScore = math.Max(0, avgDuration/420*100)
		default:
			durationScore = math.Max(0, 100-(avgDuration-540)/2)
		}

		var avgEfficiency float64
		if eff := s.loadValues(ctx, models.BiomarkerSleepEfficiency, start, date); len(eff) > 0 {
			avgEfficiency = stats.Mean(eff)
		}

		scores["sleep"] = (durationScore + avgEfficiency) / 2
		weights["sleep"] = 0.25
	}

	// Glucose: time in range minus a capped variability penalty.
	if glucose := s.loadValues(ctx, models.BiomarkerGlucose, start, date); len(glucose) > 0 {
		mean := stats.Mean(glucose)
		var cv float64
		if mean != 0 {
			cv = stats.StdDev(glucose) / mean * 100
		}
		inRange := 0
		for _, v := range glucose {
			if v >= 70 && v <= 180 {
				inRange++
			}
		}
		tir := float64(inRange) / float64(len(glucose)) * 100
		scores["glucose"] = tir - math.Min(cv, 30)
		weights["glucose"] = 0.25
	}

	// Resting heart rate: approximated by the lowest daily mean.
	if daily, err := s.source.LoadDailySeries(ctx, s.userID, models.BiomarkerHeartRate, start, date); err == nil {
		if values := daily.ValidValues(); len(values) > 0 {
			rhr := stats.Min(values)
			switch {
			case rhr <= 60:
				scores["rhr"] = 100
			case rhr <= 80:
				scores["rhr"] = 100 - (rhr-60)*2
			default:
				scores["rhr"] = math.Max(0, 60-(rhr-80)*2)
			}
			weights["rhr"] = 0.25
		}
	} else {
		analysisFailuresTotal.WithLabelValues("score").Inc()
		logger.Error("Failed to load heart rate for user %s score: %v", s.userID, err)
	}

	result := &models.HealthScore{
		Components: make(map[string]float64, len(scores)),
		Weights:    weights,
	}
	if len(scores) == 0 {
		return result
	}

	var weighted, totalWeight float64
	for k, v := range scores {
		weighted += v * weights[k]
		totalWeight += weights[k]
		result.Components[k] = round1(v)
	}
	overall := round1(weighted / totalWeight)
	result.Score = &overall
	return result
}

func (s *Service) loadValues(ctx context.Context, biomarker string, start, end time.Time) []float64 {
	series, err := s.source.LoadSeries(ctx, s.userID, biomarker, start, end)
	if err != nil {
		analysisFailuresTotal.WithLabelValues("summary").Inc()
		logger.Error("Failed to load %s for user %s: %v", biomarker, s.userID, err)
		return nil
	}
	return series.ValidValues()
}

func (s *Service) latestValue(ctx context.Context, biomarker string, start, end time.Time) (float64, bool) {
	series, err := s.source.LoadSeries(ctx, s.userID, biomarker, start, end)
	if err != nil {
		analysisFailuresTotal.WithLabelValues("summary").Inc()
		logger.Error("Failed to load %s for user %s: %v", biomarker, s.userID, err)
		return 0, false
	}
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Valid {
			return series[i].Value, true
		}
	}
	return 0, false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
