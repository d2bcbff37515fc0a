package stats

import "math"

const (
	betaEps     = 3e-14
	betaFPMin   = 1e-300
	betaMaxIter = 200
)

// betacf evaluates the continued fraction for the incomplete beta function
// (modified Lentz's method).
func betacf(a, b, x float64) float64 {
	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < betaFPMin {
		d = betaFPMin
	}
	d = 1 / d
	h := d

	for m := 1; m <= betaMaxIter; m++ {
		m2 := float64(2 * m)
		fm := float64(m)

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < betaFPMin {
			d = betaFPMin
		}
		c = 1 + aa/c
		if math.Abs(c) < betaFPMin {
			c = betaFPMin
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < betaFPMin {
			d = betaFPMin
		}
		c = 1 + aa/c
		if math.Abs(c) < betaFPMin {
			c = betaFPMin
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < betaEps {
			break
		}
	}
	return h
}

// RegIncBeta returns the regularized incomplete beta function I_x(a, b).
func RegIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lgab, _ := math.Lgamma(a + b)
	lga, _ := math.Lgamma(a)
	lgb, _ := math.Lgamma(b)
	bt := math.Exp(lgab - lga - lgb + a*math.Log(x) + b*math.Log(1-x))

	// Use the continued fraction directly where it converges fast, the
	// symmetry relation otherwise.
	if x < (a+1)/(a+b+2) {
		return bt * betacf(a, b, x) / a
	}
	return 1 - bt*betacf(b, a, 1-x)/b
}

// TwoSidedTPValue returns the two-sided p-value of a Student-t statistic
// with df degrees of freedom: P(|T| >= |t|) = I_{df/(df+t^2)}(df/2, 1/2).
func TwoSidedTPValue(t, df float64) float64 {
	if df <= 0 {
		return 1
	}
	if math.IsInf(t, 0) {
		return 0
	}
	return RegIncBeta(df/2, 0.5, df/(df+t*t))
}
