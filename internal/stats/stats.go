// Package stats implements the descriptive statistics and significance
// tests used by the analytics engine: means and deviations, the pooled
// two-sample t-test, Pearson correlation, and ordinary least squares, all
// with exact two-sided Student-t p-values.
package stats

import "math"

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the sample variance (ddof=1). Needs at least two values.
func Variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// StdDev returns the sample standard deviation (ddof=1).
func StdDev(xs []float64) float64 {
	return math.Sqrt(Variance(xs))
}

// PopStdDev returns the population standard deviation (ddof=0).
func PopStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// Min returns the smallest value in xs. Panics on empty input by design of
// the callers, which always guard on length first.
func Min(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest value in xs.
func Max(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// TTestInd runs a two-sample Student's t-test with pooled variance.
// Returns the t statistic and two-sided p-value. ok is false when either
// sample has fewer than two values.
func TTestInd(a, b []float64) (t, p float64, ok bool) {
	n1, n2 := len(a), len(b)
	if n1 < 2 || n2 < 2 {
		return 0, 1, false
	}

	m1, m2 := Mean(a), Mean(b)
	v1, v2 := Variance(a), Variance(b)
	df := float64(n1 + n2 - 2)

	pooled := (float64(n1-1)*v1 + float64(n2-1)*v2) / df
	denom := math.Sqrt(pooled * (1/float64(n1) + 1/float64(n2)))
	if denom == 0 {
		if m1 == m2 {
			return 0, 1, true
		}
		// Identical constant samples with different means: infinitely
		// significant separation.
		return math.Inf(sign(m1 - m2)), 0, true
	}

	t = (m1 - m2) / denom
	return t, TwoSidedTPValue(t, df), true
}

// Pearson computes the Pearson correlation coefficient of two equal-length
// samples and its two-sided p-value (t approximation with n-2 degrees of
// freedom). ok is false for n < 3 or when either sample is constant.
func Pearson(x, y []float64) (r, p float64, ok bool) {
	n := len(x)
	if n != len(y) || n < 3 {
		return 0, 1, false
	}

	mx, my := Mean(x), Mean(y)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, 1, false
	}

	r = sxy / math.Sqrt(sxx*syy)
	// Floating-point roundoff can push |r| a hair past 1.
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}

	df := float64(n - 2)
	if 1-r*r <= 0 {
		return r, 0, true
	}
	t := r * math.Sqrt(df/(1-r*r))
	return r, TwoSidedTPValue(t, df), true
}

// Regression holds the result of an ordinary least squares fit y = a + b*x.
type Regression struct {
	Slope     float64
	Intercept float64
	R         float64
	PValue    float64
	StdErr    float64
}

// Linregress fits a least-squares line through (x, y). ok is false for
// fewer than three points or a constant x.
func Linregress(x, y []float64) (Regression, bool) {
	n := len(x)
	if n != len(y) || n < 3 {
		return Regression{}, false
	}

	mx, my := Mean(x), Mean(y)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 {
		return Regression{}, false
	}

	slope := sxy / sxx
	intercept := my - slope*mx

	var r float64
	if syy > 0 {
		r = sxy / math.Sqrt(sxx*syy)
		if r > 1 {
			r = 1
		} else if r < -1 {
			r = -1
		}
	}

	df := float64(n - 2)
	var p, stderr float64
	if 1-r*r <= 0 || syy == 0 {
		// Perfect fit (or flat y): the slope test is degenerate.
		if slope != 0 {
			p = 0
		} else {
			p = 1
		}
	} else {
		t := r * math.Sqrt(df/(1-r*r))
		p = TwoSidedTPValue(t, df)
		stderr = slope / t
		if t == 0 {
			stderr = math.Sqrt(syy / df / sxx)
			p = 1
		}
	}

	return Regression{
		Slope:     slope,
		Intercept: intercept,
		R:         r,
		PValue:    p,
		StdErr:    stderr,
	}, true
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}
