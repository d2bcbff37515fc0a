// Package trend fits linear trends to biomarker series and detects
// discrete change points via sliding-window comparison. The level-shift
// detection in package detector and the change-point detection here are
// intentionally distinct algorithms; do not unify them.
package trend

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/calder-health/biosense/internal/models"
	"github.com/calder-health/biosense/internal/stats"
)

const (
	// minTrendSamples is the least data a trend fit accepts: a week.
	minTrendSamples = 7
	// changePointConfidence is the minimum t-test confidence (1 - p) for a
	// change point to be accepted.
	changePointConfidence = 0.95
	// mergeGapDays collapses change points closer than this; one true shift
	// would otherwise emit many adjacent near-duplicate detections from the
	// sliding comparison.
	mergeGapDays = 3
)

// Analyzer fits trends and segments series. Stateless and safe for
// concurrent use.
type Analyzer struct {
	alpha float64
}

// NewAnalyzer creates a trend analyzer with the given significance level.
func NewAnalyzer(significanceLevel float64) (*Analyzer, error) {
	if significanceLevel <= 0 || significanceLevel >= 1 {
		return nil, fmt.Errorf("significance level must be in (0, 1), got %g", significanceLevel)
	}
	return &Analyzer{alpha: significanceLevel}, nil
}

// ComputeTrend fits an ordinary least-squares line of value against
// day-offset from series start. Returns nil with fewer than seven valid
// samples; that is insufficient data, not an error.
func (a *Analyzer) ComputeTrend(series models.Series, biomarker string) *models.TrendResult {
	compact := series.Compact()
	if len(compact) < minTrendSamples {
		return nil
	}

	startDate := compact[0].Timestamp
	endDate := compact[len(compact)-1].Timestamp

	x := make([]float64, len(compact))
	y := make([]float64, len(compact))
	for i, s := range compact {
		x[i] = float64(int(s.Timestamp.Sub(startDate) / (24 * time.Hour)))
		y[i] = s.Value
	}

	reg, ok := stats.Linregress(x, y)
	if !ok {
		return nil
	}

	startValue := reg.Intercept
	endValue := reg.Intercept + reg.Slope*x[len(x)-1]
	var percentChange float64
	if startValue != 0 {
		percentChange = (endValue - startValue) / math.Abs(startValue) * 100
	}

	direction := models.TrendStable
	if reg.PValue < a.alpha {
		if reg.Slope > 0 {
			direction = models.TrendIncreasing
		} else {
			direction = models.TrendDecreasing
		}
	}

	return &models.TrendResult{
		Biomarker:     biomarker,
		StartDate:     startDate,
		EndDate:       endDate,
		Slope:         reg.Slope,
		SlopePerDay:   reg.Slope,
		RSquared:      reg.R * reg.R,
		PValue:        reg.PValue,
		Direction:     direction,
		IsSignificant: reg.PValue < a.alpha,
		PercentChange: percentChange,
	}
}

// DetectChangePoints finds timestamps where the local mean shifts by more
// than thresholdStd global standard deviations, confirmed by a two-sample
// t-test. Nearby candidates are merged, keeping the higher-confidence one.
func (a *Analyzer) DetectChangePoints(series models.Series, biomarker string, minSegmentSize int, thresholdStd float64) []models.ChangePoint {
	if minSegmentSize < 2 {
		minSegmentSize = minTrendSamples
	}

	compact := series.Compact()
	if len(compact) < minSegmentSize*2 {
		return nil
	}

	values := make([]float64, len(compact))
	for i, s := range compact {
		values[i] = s.Value
	}
	globalStd := stats.PopStdDev(values)

	var candidates []models.ChangePoint
	for i := minSegmentSize; i < len(values)-minSegmentSize; i++ {
		before := values[i-minSegmentSize : i]
		after := values[i : i+minSegmentSize]

		beforeMean := stats.Mean(before)
		afterMean := stats.Mean(after)
		change := afterMean - beforeMean

		if math.Abs(change) <= thresholdStd*globalStd {
			continue
		}

		_, p, ok := stats.TTestInd(before, after)
		if !ok {
			continue
		}
		confidence := 1 - p
		if confidence <= changePointConfidence {
			continue
		}

		var percentChange float64
		if beforeMean != 0 {
			percentChange = change / math.Abs(beforeMean) * 100
		}

		candidates = append(candidates, models.ChangePoint{
			Timestamp:       compact[i].Timestamp,
			Biomarker:       biomarker,
			BeforeMean:      beforeMean,
			AfterMean:       afterMean,
			ChangeMagnitude: change,
			ChangePercent:   percentChange,
			Confidence:      confidence,
		})
	}

	return mergeNearby(candidates, mergeGapDays)
}

// mergeNearby collapses change points within maxGapDays of each other,
// retaining the higher-confidence point of each cluster.
func mergeNearby(points []models.ChangePoint, maxGapDays int) []models.ChangePoint {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]models.ChangePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	merged := []models.ChangePoint{sorted[0]}
	for _, cp := range sorted[1:] {
		last := &merged[len(merged)-1]
		gapDays := int(cp.Timestamp.Sub(last.Timestamp) / (24 * time.Hour))

		if gapDays <= maxGapDays {
			if cp.Confidence > last.Confidence {
				*last = cp
			}
		} else {
			merged = append(merged, cp)
		}
	}
	return merged
}
