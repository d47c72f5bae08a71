package diagnosis

import (
	"fmt"
	"strings"
)

// ValidationError lists every rule a Diagnosis violates.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid diagnosis: %s", strings.Join(e.Violations, "; "))
}

// Validate checks the structural invariants of a Diagnosis. It returns nil
// or a *ValidationError.
func (d Diagnosis) Validate() error {
	var v []string
	add := func(format string, args ...any) { v = append(v, fmt.Sprintf(format, args...)) }

	if d.ConfidenceScore < 0 || d.ConfidenceScore > 1 {
		add("confidence_score %.3f outside [0,1]", d.ConfidenceScore)
	}
	if d.SeverityLevel != nil && !d.SeverityLevel.Valid() {
		add("unknown severity %q", *d.SeverityLevel)
	}
	for _, id := range d.DiseasesDetected {
		if !id.Known() {
			add("unknown disease id %q", id)
		}
	}

	switch d.IsTomatoLeaf {
	case NotTomato:
		if d.HealthStatus != NotApplicable {
			add("not_tomato requires health_status not_applicable, got %q", d.HealthStatus)
		}
		if len(d.DiseasesDetected) > 0 {
			add("not_tomato must not list diseases")
		}
		if d.SeverityLevel != nil {
			add("not_tomato must have null severity")
		}
		if len(d.TreatmentRecommendations) > 0 || len(d.SymptomsObserved) > 0 {
			add("not_tomato must not list symptoms or treatments")
		}
		if len(d.PreventionTips) > 0 {
			add("not_tomato must not list prevention tips")
		}
	case Tomato:
		switch d.HealthStatus {
		case Healthy:
			if len(d.DiseasesDetected) > 0 {
				add("healthy must not list diseases")
			}
			if d.SeverityLevel != nil {
				add("healthy must have null severity")
			}
			if len(d.PreventionTips) == 0 {
				add("healthy requires prevention tips")
			}
		case Diseased:
			if len(d.DiseasesDetected) == 0 {
				add("diseased requires at least one disease")
			}
			if d.SeverityLevel == nil {
				add("diseased requires a severity")
			}
		case NotApplicable:
			add("not_applicable is only valid for not_tomato")
		default:
			add("unknown health_status %q", d.HealthStatus)
		}
	default:
		add("unknown is_tomato_leaf %q", d.IsTomatoLeaf)
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}
