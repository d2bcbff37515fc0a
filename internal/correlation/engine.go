// Package correlation discovers lagged, significance-corrected
// relationships between biomarkers over daily-aligned series.
package correlation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/calder-health/biosense/internal/models"
	"github.com/calder-health/biosense/internal/stats"
)

// Source supplies daily-resampled series for one user. Each returned
// series must carry exactly one sample per day in [start, end], with
// explicit invalid samples for empty days, so two series align by position.
type Source interface {
	LoadDailySeries(ctx context.Context, userID, biomarker string, start, end time.Time) (models.Series, error)
}

// Config holds correlation parameters.
type Config struct {
	SignificanceLevel float64
	MinSamples        int
	MaxLagDays        int
}

// DefaultConfig returns the standard correlation parameters.
func DefaultConfig() Config {
	return Config{
		SignificanceLevel: 0.05,
		MinSamples:        30,
		MaxLagDays:        7,
	}
}

// Engine computes correlations for one user.
type Engine struct {
	userID string
	source Source
	cfg    Config
}

// NewEngine creates a correlation engine bound to one user's source.
func NewEngine(userID string, source Source, cfg Config) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("correlation source must not be nil")
	}
	if cfg.SignificanceLevel <= 0 || cfg.SignificanceLevel >= 1 {
		return nil, fmt.Errorf("significance level must be in (0, 1), got %g", cfg.SignificanceLevel)
	}
	if cfg.MinSamples < 3 {
		return nil, fmt.Errorf("minimum samples must be at least 3, got %d", cfg.MinSamples)
	}
	if cfg.MaxLagDays < 0 {
		return nil, fmt.Errorf("maximum lag days must not be negative, got %d", cfg.MaxLagDays)
	}
	return &Engine{userID: userID, source: source, cfg: cfg}, nil
}

// ComputeCorrelation computes the Pearson correlation between two
// biomarkers at a given lag. Positive lag means biomarker1 leads
// biomarker2 by that many days. Returns nil when fewer than MinSamples
// aligned pairs remain.
func (e *Engine) ComputeCorrelation(ctx context.Context, biomarker1, biomarker2 string, start, end time.Time, lagDays int) (*models.CorrelationResult, error) {
	s1, err := e.source.LoadDailySeries(ctx, e.userID, biomarker1, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", biomarker1, err)
	}
	s2, err := e.source.LoadDailySeries(ctx, e.userID, biomarker2, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", biomarker2, err)
	}

	n := len(s1)
	if len(s2) < n {
		n = len(s2)
	}
	if n == 0 || absInt(lagDays) >= n {
		return nil, nil
	}

	// Shift one series against the other, then drop any day where either
	// value is missing.
	var x, y []float64
	for i := 0; i < n-absInt(lagDays); i++ {
		var a, b models.Sample
		if lagDays >= 0 {
			a, b = s1[i], s2[i+lagDays]
		} else {
			a, b = s1[i-lagDays], s2[i]
		}
		if a.Valid && b.Valid {
			x = append(x, a.Value)
			y = append(y, b.Value)
		}
	}

	if len(x) < e.cfg.MinSamples {
		return nil, nil
	}

	r, p, ok := stats.Pearson(x, y)
	if !ok {
		return nil, nil
	}

	return &models.CorrelationResult{
		Biomarker1:     biomarker1,
		Biomarker2:     biomarker2,
		Correlation:    r,
		PValue:         p,
		LagDays:        lagDays,
		NObservations:  len(x),
		IsSignificant:  p < e.cfg.SignificanceLevel,
		Interpretation: interpret(r, biomarker1, biomarker2, lagDays),
	}, nil
}

// FindLaggedCorrelations sweeps every integer lag in [-MaxLagDays,
// MaxLagDays] and returns the results sorted by |correlation| descending.
func (e *Engine) FindLaggedCorrelations(ctx context.Context, biomarker1, biomarker2 string, start, end time.Time) ([]models.CorrelationResult, error) {
	var results []models.CorrelationResult
	for lag := -e.cfg.MaxLagDays; lag <= e.cfg.MaxLagDays; lag++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := e.ComputeCorrelation(ctx, biomarker1, biomarker2, start, end, lag)
		if err != nil {
			return nil, err
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	sortByMagnitude(results)
	return results, nil
}

// DiscoverAllCorrelations sweeps every unordered biomarker pair across all
// lags. With Bonferroni correction the significance threshold becomes
// alpha / (pairs * lags); the lag sweep multiplies comparisons and an
// uncorrected threshold would flood the result with false positives. Only
// results passing the threshold are returned, sorted by |correlation|
// descending.
func (e *Engine) DiscoverAllCorrelations(ctx context.Context, biomarkers []string, start, end time.Time, bonferroni bool) ([]models.CorrelationResult, error) {
	nPairs := len(biomarkers) * (len(biomarkers) - 1) / 2
	nLags := 2*e.cfg.MaxLagDays + 1
	nComparisons := nPairs * nLags

	alpha := e.cfg.SignificanceLevel
	if bonferroni && nComparisons > 0 {
		alpha = e.cfg.SignificanceLevel / float64(nComparisons)
	}

	var significant []models.CorrelationResult
	for i, bm1 := range biomarkers {
		for _, bm2 := range biomarkers[i+1:] {
			lagged, err := e.FindLaggedCorrelations(ctx, bm1, bm2, start, end)
			if err != nil {
				return nil, err
			}
			for _, result := range lagged {
				if result.PValue < alpha {
					result.IsSignificant = true
					significant = append(significant, result)
				}
			}
		}
	}

	sortByMagnitude(significant)
	return significant, nil
}

func sortByMagnitude(results []models.CorrelationResult) {
	sort.Slice(results, func(i, j int) bool {
		return math.Abs(results[i].Correlation) > math.Abs(results[j].Correlation)
	})
}

func interpret(r float64, biomarker1, biomarker2 string, lagDays int) string {
	strength := "weak"
	switch {
	case math.Abs(r) > 0.7:
		strength = "strong"
	case math.Abs(r) > 0.4:
		strength = "moderate"
	}

	direction := "positive"
	if r < 0 {
		direction = "negative"
	}

	var timing string
	switch {
	case lagDays == 0:
		timing = "at the same time"
	case lagDays > 0:
		timing = fmt.Sprintf("%s changes predict %s changes %d day(s) later", biomarker1, biomarker2, lagDays)
	default:
		timing = fmt.Sprintf("%s changes predict %s changes %d day(s) later", biomarker2, biomarker1, -lagDays)
	}

	return fmt.Sprintf("%s %s correlation (r=%.2f): %s",
		strings.ToUpper(strength[:1])+strength[1:], direction, r, timing)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
