package detector

// ClinicalThresholds holds per-biomarker cutoffs. Nil fields mean the
// biomarker has no cutoff on that side.
type ClinicalThresholds struct {
	CriticalLow  *float64
	Low          *float64
	High         *float64
	CriticalHigh *float64
}

// DefaultClinicalThresholds is the static cutoff table used for clinical
// threshold violations. Loaded once and passed into detectors by reference;
// biomarkers absent from the table produce no clinical anomalies.
var DefaultClinicalThresholds = map[string]ClinicalThresholds{
	"glucose": {
		CriticalLow:  f64(54), // severe hypoglycemia
		Low:          f64(70), // hypoglycemia
		High:         f64(180), // hyperglycemia after meals
		CriticalHigh: f64(250), // severe hyperglycemia
	},
	"heart_rate": {
		CriticalLow:  f64(40), // severe bradycardia
		Low:          f64(50), // bradycardia unless athletic
		High:         f64(100), // tachycardia at rest
		CriticalHigh: f64(150), // severe tachycardia at rest
	},
	"hrv_sdnn": {
		CriticalLow: f64(20), // very low HRV, poor autonomic function
		Low:         f64(30), // below average
	},
	"blood_pressure_systolic": {
		CriticalLow:  f64(90), // hypotension
		Low:          f64(100),
		High:         f64(140), // stage 1 hypertension
		CriticalHigh: f64(180), // hypertensive crisis
	},
}

func f64(v float64) *float64 { return &v }
