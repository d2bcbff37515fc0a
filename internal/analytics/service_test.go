package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calder-health/biosense/internal/correlation"
	"github.com/calder-health/biosense/internal/detector"
	"github.com/calder-health/biosense/internal/models"
	"github.com/calder-health/biosense/internal/trend"
)

// fakeSource serves canned raw and daily series, range-filtered like the
// real storage layer.
type fakeSource struct {
	raw   map[string]models.Series
	daily map[string]models.Series
	err   error
}

func filterRange(s models.Series, start, end time.Time) models.Series {
	var out models.Series
	for _, sm := range s {
		if !sm.Timestamp.Before(start) && !sm.Timestamp.After(end) {
			out = append(out, sm)
		}
	}
	return out
}

func (f *fakeSource) LoadSeries(_ context.Context, _, biomarker string, start, end time.Time) (models.Series, error) {
	if f.err != nil {
		return nil, f.err
	}
	return filterRange(f.raw[biomarker], start, end), nil
}

func (f *fakeSource) LoadDailySeries(_ context.Context, _, biomarker string, start, end time.Time) (models.Series, error) {
	if f.err != nil {
		return nil, f.err
	}
	return filterRange(f.daily[biomarker], start, end), nil
}

func newTestService(t *testing.T, src *fakeSource) *Service {
	t.Helper()
	det, err := detector.New(detector.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("detector.New failed: %v", err)
	}
	tr, err := trend.NewAnalyzer(0.05)
	if err != nil {
		t.Fatalf("trend.NewAnalyzer failed: %v", err)
	}
	corr, err := correlation.NewEngine("u1", src, correlation.DefaultConfig())
	if err != nil {
		t.Fatalf("correlation.NewEngine failed: %v", err)
	}
	return NewService("u1", src, det, tr, corr, DefaultConfig())
}

func rawSamples(start time.Time, step time.Duration, values []float64) models.Series {
	series := make(models.Series, len(values))
	for i, v := range values {
		series[i] = models.Sample{Timestamp: start.Add(time.Duration(i) * step), Value: v, Valid: true}
	}
	return series
}

func dailySamples(start time.Time, values []float64) models.Series {
	series := make(models.Series, len(values))
	for i, v := range values {
		series[i] = models.Sample{Timestamp: start.AddDate(0, 0, i), Value: v, Valid: true}
	}
	return series
}

func TestRunDailyAnalysisCriticalGlucose(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	// Two critically low readings 30 minutes apart: one anomaly each, but
	// the manager collapses them into a single alert.
	src := &fakeSource{
		raw: map[string]models.Series{
			models.BiomarkerGlucose: rawSamples(day.Add(8*time.Hour), 30*time.Minute, []float64{50, 50}),
		},
		daily: map[string]models.Series{},
	}

	svc := newTestService(t, src)
	report := svc.RunDailyAnalysis(context.Background(), day)

	if report.UserID != "u1" || report.Date != "2026-03-15" {
		t.Errorf("Unexpected report header: %s %s", report.UserID, report.Date)
	}
	if len(report.Alerts) != 1 {
		t.Fatalf("Expected 1 deduplicated alert, got %d", len(report.Alerts))
	}
	alert := report.Alerts[0]
	if alert.Anomaly.Priority != models.PriorityCritical {
		t.Errorf("Expected critical priority, got %s", alert.Anomaly.Priority)
	}
	if alert.Status != models.AlertActive {
		t.Errorf("Expected active alert, got %s", alert.Status)
	}
	if alert.Recommendation == "" {
		t.Error("Expected a recommendation on a critical glucose alert")
	}

	if report.DailySummary.Glucose == nil {
		t.Fatal("Expected glucose summary")
	}
	if report.DailySummary.Glucose.Mean != 50 {
		t.Errorf("Expected glucose mean 50, got %f", report.DailySummary.Glucose.Mean)
	}
	if report.DailySummary.Glucose.TimeInRangePct != 0 {
		t.Errorf("Expected 0%% time in range, got %f", report.DailySummary.Glucose.TimeInRangePct)
	}
}

func TestRunDailyAnalysisTrend(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	weekStart := day.AddDate(0, 0, -7)

	values := make([]float64, 8)
	for i := range values {
		values[i] = 100 + 5*float64(i)
	}

	src := &fakeSource{
		raw: map[string]models.Series{},
		daily: map[string]models.Series{
			models.BiomarkerGlucose: dailySamples(weekStart, values),
		},
	}

	svc := newTestService(t, src)
	report := svc.RunDailyAnalysis(context.Background(), day)

	if len(report.Trends) != 1 {
		t.Fatalf("Expected 1 significant trend, got %d", len(report.Trends))
	}
	tr := report.Trends[0]
	if tr.Biomarker != models.BiomarkerGlucose {
		t.Errorf("Expected glucose trend, got %s", tr.Biomarker)
	}
	if tr.Direction != models.TrendIncreasing || !tr.IsSignificant {
		t.Errorf("Expected significant increasing trend, got %+v", tr)
	}
}

func TestRunDailyAnalysisChangePoints(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	monthStart := day.AddDate(0, 0, -30)

	// A late, large step: 23 days at 100, then 8 days at 160. One clean
	// candidate survives the threshold and t-test gates.
	values := make([]float64, 31)
	for i := range values {
		values[i] = 100
		if i >= 23 {
			values[i] = 160
		}
	}

	src := &fakeSource{
		raw: map[string]models.Series{},
		daily: map[string]models.Series{
			models.BiomarkerHeartRate: dailySamples(monthStart, values),
		},
	}

	svc := newTestService(t, src)
	report := svc.RunDailyAnalysis(context.Background(), day)

	if len(report.ChangePoints) != 1 {
		t.Fatalf("Expected 1 change point, got %d", len(report.ChangePoints))
	}
	cp := report.ChangePoints[0]
	if cp.Biomarker != models.BiomarkerHeartRate {
		t.Errorf("Expected heart rate change point, got %s", cp.Biomarker)
	}
	if !cp.Timestamp.Equal(monthStart.AddDate(0, 0, 23)) {
		t.Errorf("Expected change point at the step, got %v", cp.Timestamp)
	}
	if cp.BeforeMean != 100 || cp.AfterMean != 160 {
		t.Errorf("Expected means 100 -> 160, got %f -> %f", cp.BeforeMean, cp.AfterMean)
	}
	if cp.Confidence <= 0.95 {
		t.Errorf("Expected confidence above 0.95, got %f", cp.Confidence)
	}
}

func TestRunDailyAnalysisCorrelations(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	monthStart := day.AddDate(0, 0, -30)

	values := make([]float64, 31)
	for i := range values {
		values[i] = 60 + float64(i%11)*3
	}

	src := &fakeSource{
		raw: map[string]models.Series{},
		daily: map[string]models.Series{
			models.BiomarkerHeartRate: dailySamples(monthStart, values),
			models.BiomarkerHRVSDNN:   dailySamples(monthStart, values),
		},
	}

	svc := newTestService(t, src)
	report := svc.RunDailyAnalysis(context.Background(), day)

	if len(report.Correlations) == 0 {
		t.Fatal("Expected the identical pair to be reported")
	}
	best := report.Correlations[0]
	if best.Correlation < 0.999 {
		t.Errorf("Expected near-perfect correlation, got %f", best.Correlation)
	}
	if !best.IsSignificant {
		t.Error("Expected significant correlation after correction")
	}
}

func TestRunDailyAnalysisSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("database gone")}
	svc := newTestService(t, src)

	report := svc.RunDailyAnalysis(context.Background(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if report == nil {
		t.Fatal("Report must be returned even when every source call fails")
	}
	if len(report.Alerts) != 0 || len(report.Trends) != 0 || len(report.ChangePoints) != 0 || len(report.Correlations) != 0 {
		t.Errorf("Expected empty sections on failure, got %+v", report)
	}
	if report.DailySummary.HeartRate != nil || report.DailySummary.Glucose != nil {
		t.Error("Expected empty daily summary on failure")
	}
}

func TestDailySummary(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	src := &fakeSource{
		raw: map[string]models.Series{
			models.BiomarkerHeartRate: rawSamples(day.Add(6*time.Hour), time.Hour, []float64{60, 80}),
			models.BiomarkerGlucose:   rawSamples(day.Add(6*time.Hour), time.Hour, []float64{100, 200}),
			models.BiomarkerHRVRMSSD:  rawSamples(day.Add(6*time.Hour), time.Hour, []float64{40, 60}),
			// Last night's sleep landed just before midnight.
			models.BiomarkerSleepTotal:      rawSamples(day.Add(-2*time.Hour), time.Hour, []float64{450}),
			models.BiomarkerSleepDeep:       rawSamples(day.Add(-2*time.Hour), time.Hour, []float64{90}),
			models.BiomarkerSleepEfficiency: rawSamples(day.Add(-2*time.Hour), time.Hour, []float64{88}),
		},
		daily: map[string]models.Series{},
	}

	svc := newTestService(t, src)
	report := svc.RunDailyAnalysis(context.Background(), day)
	summary := report.DailySummary

	if summary.HeartRate == nil || summary.HeartRate.Mean != 70 || summary.HeartRate.Min != 60 || summary.HeartRate.Max != 80 {
		t.Errorf("Unexpected heart rate summary: %+v", summary.HeartRate)
	}
	if summary.Glucose == nil || summary.Glucose.TimeInRangePct != 50 {
		t.Errorf("Expected 50%% time in range, got %+v", summary.Glucose)
	}
	if summary.HRV == nil || summary.HRV.RMSSDMean == nil || *summary.HRV.RMSSDMean != 50 {
		t.Errorf("Unexpected HRV summary: %+v", summary.HRV)
	}
	if summary.HRV.SDNNMean != nil {
		t.Error("Expected absent SDNN mean")
	}
	if summary.Sleep == nil || summary.Sleep.TotalMinutes != 450 || summary.Sleep.DeepMinutes != 90 || summary.Sleep.EfficiencyPct != 88 {
		t.Errorf("Unexpected sleep summary: %+v", summary.Sleep)
	}
}

func TestHealthScoreHRVOnly(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	start := date.AddDate(0, 0, -7)

	values := []float64{60, 62, 58, 61, 59, 60, 63}
	src := &fakeSource{
		raw: map[string]models.Series{
			models.BiomarkerHRVRMSSD: dailySamples(start, values),
		},
		daily: map[string]models.Series{},
	}

	svc := newTestService(t, src)
	score := svc.HealthScore(context.Background(), date)

	if score.Score == nil {
		t.Fatal("Expected a score")
	}
	if *score.Score != 100 {
		t.Errorf("Expected score 100 for RMSSD above 50, got %f", *score.Score)
	}
	if len(score.Components) != 1 || score.Components["hrv"] != 100 {
		t.Errorf("Expected only the hrv component, got %v", score.Components)
	}
	if len(score.Weights) != 1 || score.Weights["hrv"] != 0.25 {
		t.Errorf("Expected single 0.25 weight, got %v", score.Weights)
	}
}

func TestHealthScoreAllComponents(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	start := date.AddDate(0, 0, -7)

	constant := func(v float64, n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	src := &fakeSource{
		raw: map[string]models.Series{
			// Mean RMSSD 40 maps to 70 + 10*1.5 = 85.
			models.BiomarkerHRVRMSSD: dailySamples(start, constant(40, 7)),
			// 480 minutes in range, 90% efficiency: (100 + 90) / 2 = 95.
			models.BiomarkerSleepTotal:      dailySamples(start, constant(480, 7)),
			models.BiomarkerSleepEfficiency: dailySamples(start, constant(90, 7)),
			// Constant in-range glucose: TIR 100, CV 0.
			models.BiomarkerGlucose: dailySamples(start, constant(100, 7)),
		},
		daily: map[string]models.Series{
			// Lowest daily mean 55 scores 100.
			models.BiomarkerHeartRate: dailySamples(start, []float64{62, 55, 70, 68, 64, 66, 63}),
		},
	}

	svc := newTestService(t, src)
	score := svc.HealthScore(context.Background(), date)

	if score.Score == nil {
		t.Fatal("Expected a score")
	}
	expected := map[string]float64{"hrv": 85, "sleep": 95, "glucose": 100, "rhr": 100}
	for k, v := range expected {
		if score.Components[k] != v {
			t.Errorf("Expected component %s = %f, got %f", k, v, score.Components[k])
		}
	}
	// Equal weights renormalize to a plain average.
	if *score.Score != 95 {
		t.Errorf("Expected overall 95, got %f", *score.Score)
	}
}

func TestHealthScoreNoData(t *testing.T) {
	src := &fakeSource{raw: map[string]models.Series{}, daily: map[string]models.Series{}}
	svc := newTestService(t, src)

	score := svc.HealthScore(context.Background(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if score.Score != nil {
		t.Errorf("Expected nil score with no data, got %f", *score.Score)
	}
	if len(score.Components) != 0 {
		t.Errorf("Expected no components, got %v", score.Components)
	}
}

func TestHealthScoreLowRHRPenalty(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	start := date.AddDate(0, 0, -7)

	src := &fakeSource{
		raw: map[string]models.Series{},
		daily: map[string]models.Series{
			// Lowest daily mean 70 scores 100 - (70-60)*2 = 80.
			models.BiomarkerHeartRate: dailySamples(start, []float64{75, 70, 78, 74, 76, 72, 77}),
		},
	}

	svc := newTestService(t, src)
	score := svc.HealthScore(context.Background(), date)

	if score.Score == nil {
		t.Fatal("Expected a score")
	}
	if score.Components["rhr"] != 80 {
		t.Errorf("Expected rhr component 80, got %f", score.Components["rhr"])
	}
	if *score.Score != 80 {
		t.Errorf("Expected overall 80 with only rhr present, got %f", *score.Score)
	}
}
