package detector

import (
	"math"

	"github.com/calder-health/biosense/internal/models"
)

// RollingStat is the trailing mean and sample deviation at one series
// position. OK is false when the window held fewer valid samples than the
// minimum period.
type RollingStat struct {
	Mean float64
	Std  float64
	OK   bool
}

// RollingStats computes trailing rolling statistics over a series that may
// contain gaps. At index i the window covers positions [i-window+1, i];
// missing samples stay in place but do not contribute. A position needs at
// least minPeriods valid samples (and two for the deviation) to produce a
// statistic. Gap handling is defined here once for all detectors.
func RollingStats(series models.Series, window, minPeriods int) []RollingStat {
	out := make([]RollingStat, len(series))
	if window <= 0 {
		return out
	}
	if minPeriods < 2 {
		minPeriods = 2
	}

	for i := range series {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}

		var sum float64
		var n int
		for j := lo; j <= i; j++ {
			if series[j].Valid {
				sum += series[j].Value
				n++
			}
		}
		if n < minPeriods {
			continue
		}

		mean := sum / float64(n)
		var ss float64
		for j := lo; j <= i; j++ {
			if series[j].Valid {
				d := series[j].Value - mean
				ss += d * d
			}
		}

		out[i] = RollingStat{
			Mean: mean,
			Std:  math.Sqrt(ss / float64(n-1)),
			OK:   true,
		}
	}
	return out
}
