// Package detector scans one biomarker's time series for anomalies using
// three independent strategies: clinical threshold violations, rolling
// z-score outliers, and t-tested level shifts.
package detector

import (
	"fmt"
	"math"

	"github.com/calder-health/biosense/internal/models"
	"github.com/calder-health/biosense/internal/stats"
)

// Config holds detection parameters.
type Config struct {
	WindowSize      int     // samples of baseline for rolling and shift detection
	ZThreshold      float64 // rolling z-score cutoff for point outliers
	IQRMultiplier   float64 // accepted for interface compatibility; unused by the shipped strategies
	MinShiftPercent float64 // minimum |percent change| for a level shift
	ShiftPValue     float64 // t-test significance cutoff for level shifts
}

// DefaultConfig returns the standard detection parameters.
func DefaultConfig() Config {
	return Config{
		WindowSize:      30,
		ZThreshold:      3.0,
		IQRMultiplier:   1.5,
		MinShiftPercent: 15.0,
		ShiftPValue:     0.01,
	}
}

// Detector finds anomalies in biomarker series. Stateless and safe for
// concurrent use; all detection is pure given its inputs.
type Detector struct {
	cfg        Config
	thresholds map[string]ClinicalThresholds
}

// New creates a detector. The thresholds table is held by reference and
// must not be mutated afterwards; nil selects the default table.
// Nonsensical parameters are rejected up front.
func New(cfg Config, thresholds map[string]ClinicalThresholds) (*Detector, error) {
	if cfg.WindowSize < 2 {
		return nil, fmt.Errorf("detector window size must be at least 2, got %d", cfg.WindowSize)
	}
	if cfg.ZThreshold <= 0 {
		return nil, fmt.Errorf("z threshold must be positive, got %g", cfg.ZThreshold)
	}
	if cfg.IQRMultiplier <= 0 {
		return nil, fmt.Errorf("IQR multiplier must be positive, got %g", cfg.IQRMultiplier)
	}
	if cfg.MinShiftPercent <= 0 {
		return nil, fmt.Errorf("minimum shift percent must be positive, got %g", cfg.MinShiftPercent)
	}
	if cfg.ShiftPValue <= 0 || cfg.ShiftPValue >= 1 {
		return nil, fmt.Errorf("shift p-value cutoff must be in (0, 1), got %g", cfg.ShiftPValue)
	}
	if thresholds == nil {
		thresholds = DefaultClinicalThresholds
	}
	return &Detector{cfg: cfg, thresholds: thresholds}, nil
}

// Detect runs all strategies over the series and concatenates their
// findings. A strategy with insufficient data contributes nothing; that is
// the agreed policy for thin-history users, not an error.
func (d *Detector) Detect(series models.Series, biomarker string) []models.Anomaly {
	var anomalies []models.Anomaly
	anomalies = append(anomalies, d.detectClinicalViolations(series, biomarker)...)
	anomalies = append(anomalies, d.detectStatisticalOutliers(series, biomarker)...)
	anomalies = append(anomalies, d.detectLevelShifts(series, biomarker)...)
	return anomalies
}

func (d *Detector) detectClinicalViolations(series models.Series, biomarker string) []models.Anomaly {
	th, found := d.thresholds[biomarker]
	if !found {
		return nil
	}

	var anomalies []models.Anomaly
	for _, s := range series {
		if !s.Valid {
			continue
		}
		v := s.Value

		switch {
		case th.CriticalLow != nil && v < *th.CriticalLow:
			anomalies = append(anomalies, models.Anomaly{
				Timestamp:       s.Timestamp,
				Biomarker:       biomarker,
				Type:            models.AnomalyPoint,
				Priority:        models.PriorityCritical,
				Value:           v,
				ExpectedRange:   models.Range{Low: *th.CriticalLow, High: orInf(th.CriticalHigh)},
				DeviationScore:  math.Abs(v-*th.CriticalLow) / *th.CriticalLow,
				Description:     fmt.Sprintf("Critically low %s: %g", biomarker, v),
				ClinicalContext: "Immediate medical attention may be required",
			})
		case th.CriticalHigh != nil && v > *th.CriticalHigh:
			anomalies = append(anomalies, models.Anomaly{
				Timestamp:       s.Timestamp,
				Biomarker:       biomarker,
				Type:            models.AnomalyPoint,
				Priority:        models.PriorityCritical,
				Value:           v,
				ExpectedRange:   models.Range{Low: orZero(th.CriticalLow), High: *th.CriticalHigh},
				DeviationScore:  (v - *th.CriticalHigh) / *th.CriticalHigh,
				Description:     fmt.Sprintf("Critically high %s: %g", biomarker, v),
				ClinicalContext: "Immediate medical attention may be required",
			})
		case th.Low != nil && v < *th.Low:
			anomalies = append(anomalies, models.Anomaly{
				Timestamp:      s.Timestamp,
				Biomarker:      biomarker,
				Type:           models.AnomalyPoint,
				Priority:       models.PriorityHigh,
				Value:          v,
				ExpectedRange:  models.Range{Low: *th.Low, High: orInf(th.High)},
				DeviationScore: math.Abs(v-*th.Low) / *th.Low,
				Description:    fmt.Sprintf("Low %s: %g", biomarker, v),
			})
		case th.High != nil && v > *th.High:
			anomalies = append(anomalies, models.Anomaly{
				Timestamp:      s.Timestamp,
				Biomarker:      biomarker,
				Type:           models.AnomalyPoint,
				Priority:       models.PriorityHigh,
				Value:          v,
				ExpectedRange:  models.Range{Low: orZero(th.Low), High: *th.High},
				DeviationScore: (v - *th.High) / *th.High,
				Description:    fmt.Sprintf("High %s: %g", biomarker, v),
			})
		}
	}
	return anomalies
}

func (d *Detector) detectStatisticalOutliers(series models.Series, biomarker string) []models.Anomaly {
	if len(series) < d.cfg.WindowSize {
		return nil
	}

	rolling := RollingStats(series, d.cfg.WindowSize, d.cfg.WindowSize/2)

	var anomalies []models.Anomaly
	for i, s := range series {
		if !s.Valid {
			continue
		}
		r := rolling[i]
		if !r.OK || r.Std == 0 {
			continue
		}

		z := math.Abs(s.Value-r.Mean) / r.Std
		if z <= d.cfg.ZThreshold {
			continue
		}

		anomalies = append(anomalies, models.Anomaly{
			Timestamp:      s.Timestamp,
			Biomarker:      biomarker,
			Type:           models.AnomalyPoint,
			Priority:       models.PriorityMedium,
			Value:          s.Value,
			ExpectedRange:  models.Range{Low: r.Mean - 2*r.Std, High: r.Mean + 2*r.Std},
			DeviationScore: z,
			Description:    fmt.Sprintf("Unusual %s value: %.1f (z-score: %.1f)", biomarker, s.Value, z),
		})
	}
	return anomalies
}

func (d *Detector) detectLevelShifts(series models.Series, biomarker string) []models.Anomaly {
	if len(series) < d.cfg.WindowSize*2 {
		return nil
	}

	compact := series.Compact()
	if len(compact) < d.cfg.WindowSize*2 {
		return nil
	}

	w := d.cfg.WindowSize
	values := make([]float64, len(compact))
	for i, s := range compact {
		values[i] = s.Value
	}

	baseline := values[:w]
	baseMean := stats.Mean(baseline)
	baseStd := stats.PopStdDev(baseline)
	if baseMean == 0 || baseStd == 0 {
		return nil
	}

	var anomalies []models.Anomaly
	for i := w; i <= len(values)-w; i += w / 2 {
		recent := values[i : i+w]
		recentMean := stats.Mean(recent)

		percentChange := (recentMean - baseMean) / math.Abs(baseMean) * 100
		if math.Abs(percentChange) <= d.cfg.MinShiftPercent {
			continue
		}

		_, p, ok := stats.TTestInd(baseline, recent)
		if !ok || p >= d.cfg.ShiftPValue {
			continue
		}

		direction := "increased"
		if percentChange < 0 {
			direction = "decreased"
		}
		anomalies = append(anomalies, models.Anomaly{
			Timestamp:      compact[i].Timestamp,
			Biomarker:      biomarker,
			Type:           models.AnomalyLevelShift,
			Priority:       models.PriorityHigh,
			Value:          recentMean,
			ExpectedRange:  models.Range{Low: baseMean - 2*baseStd, High: baseMean + 2*baseStd},
			DeviationScore: math.Abs(percentChange),
			Description: fmt.Sprintf("%s has %s by %.1f%% from baseline",
				biomarker, direction, math.Abs(percentChange)),
			ClinicalContext: fmt.Sprintf("Baseline mean: %.1f, Current: %.1f", baseMean, recentMean),
		})
	}
	return anomalies
}

func orInf(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
