package alerts

import "github.com/calder-health/biosense/internal/models"

type recKey struct {
	biomarker string
	priority  models.Priority
}

// recommendations maps (biomarker, priority) to specific guidance text.
// Loaded once; never mutated.
var recommendations = map[recKey]string{
	{models.BiomarkerGlucose, models.PriorityCritical}:   "Check your blood sugar immediately. If below 70 mg/dL, consume 15g fast-acting carbs. If over 250 mg/dL, check for ketones and contact your healthcare provider.",
	{models.BiomarkerHeartRate, models.PriorityCritical}: "Abnormal resting heart rate detected. If you feel dizzy, faint, or have chest pain, seek medical attention.",
	{models.BiomarkerHRVSDNN, models.PriorityHigh}:       "Your HRV has been declining. Consider prioritizing sleep and stress reduction.",
}

// recommendationFor returns guidance for an anomaly: the specific entry if
// one exists, otherwise a generic message for critical/high priorities.
// Medium and low priorities get none.
func recommendationFor(a models.Anomaly) string {
	if rec, ok := recommendations[recKey{a.Biomarker, a.Priority}]; ok {
		return rec
	}
	switch a.Priority {
	case models.PriorityCritical:
		return "This requires immediate attention. Consider contacting your healthcare provider."
	case models.PriorityHigh:
		return "Monitor closely and discuss with your healthcare provider at your next visit."
	}
	return ""
}
