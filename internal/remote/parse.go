package remote

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/interpreter"
)

// DefaultConfidence is used when the server omits every score.
const DefaultConfidence = 0.8

var (
	errUnrecognised = errors.New("response has no recognisable diagnosis fields")
	errNoVerdict    = errors.New("label names no diagnosis")
)

// response covers both the structured diagnosis document and the
// label/probability shape.
type response struct {
	IsTomatoLeaf             *string  `json:"is_tomato_leaf"`
	ConfidenceScore          *float64 `json:"confidence_score"`
	HealthStatus             *string  `json:"health_status"`
	DiseasesDetected         []string `json:"diseases_detected"`
	SymptomsObserved         []string `json:"symptoms_observed"`
	SeverityLevel            *string  `json:"severity_level"`
	TreatmentRecommendations []string `json:"treatment_recommendations"`
	PreventionTips           []string `json:"prevention_tips"`
	AdditionalNotes          string   `json:"additional_notes"`

	Label       *string  `json:"label"`
	Probability *float64 `json:"probability"`
	Confidence  *float64 `json:"confidence"`
}

func (r response) structured() bool {
	return r.IsTomatoLeaf != nil || r.HealthStatus != nil || r.DiseasesDetected != nil || r.ConfidenceScore != nil
}

// ParseResponse decodes a prediction body into a normalised Diagnosis.
// The Offline flag is left false.
func ParseResponse(body []byte, in *interpreter.Interpreter) (diagnosis.Diagnosis, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return diagnosis.Diagnosis{}, fmt.Errorf("decode response: %w", err)
	}

	var (
		d   diagnosis.Diagnosis
		err error
	)
	switch {
	case r.structured():
		d, err = fromStructured(r, in)
	case r.Label != nil:
		d, err = fromLabel(r, in)
	default:
		return diagnosis.Diagnosis{}, errUnrecognised
	}
	if err != nil {
		return diagnosis.Diagnosis{}, err
	}
	if err := d.Validate(); err != nil {
		return diagnosis.Diagnosis{}, err
	}
	return d, nil
}

func firstScore(scores ...*float64) float64 {
	for _, s := range scores {
		if s != nil && *s != 0 {
			return *s
		}
	}
	return DefaultConfidence
}

func fromLabel(r response, in *interpreter.Interpreter) (diagnosis.Diagnosis, error) {
	confidence := firstScore(r.Confidence, r.Probability)
	key := NormalizeLabel(*r.Label)

	switch key {
	case "":
		return diagnosis.Diagnosis{}, fmt.Errorf("%w: %q", errNoVerdict, *r.Label)
	case diagnosis.HealthyKey:
		return in.Healthy(confidence), nil
	case diagnosis.NotTomatoKey:
		return in.NotTomato(confidence), nil
	}

	id := diagnosis.DiseaseID(key)
	info := in.Catalog().Disease(id)
	severity := info.Severity
	if !severity.Valid() {
		severity = diagnosis.Moderate
	}
	d := in.Diseased(interpreter.Attribution{
		Diseases: []diagnosis.DiseaseID{id},
		Severity: severity,
		Symptoms: append([]string(nil), info.Symptoms...),
	}, confidence)
	if len(info.Prevention) > 0 {
		d.PreventionTips = append([]string(nil), info.Prevention...)
	}
	return d, nil
}

func fromStructured(r response, in *interpreter.Interpreter) (diagnosis.Diagnosis, error) {
	d := diagnosis.Diagnosis{
		IsTomatoLeaf:             diagnosis.Tomato,
		ConfidenceScore:          firstScore(r.ConfidenceScore),
		SymptomsObserved:         r.SymptomsObserved,
		TreatmentRecommendations: r.TreatmentRecommendations,
		PreventionTips:           r.PreventionTips,
		AdditionalNotes:          r.AdditionalNotes,
	}
	if r.ConfidenceScore != nil && *r.ConfidenceScore == 0 {
		d.ConfidenceScore = 0
	}

	if r.IsTomatoLeaf != nil {
		switch v := diagnosis.LeafVerdict(*r.IsTomatoLeaf); v {
		case diagnosis.Tomato, diagnosis.NotTomato:
			d.IsTomatoLeaf = v
		default:
			return diagnosis.Diagnosis{}, fmt.Errorf("unknown is_tomato_leaf %q", *r.IsTomatoLeaf)
		}
	}

	seen := map[diagnosis.DiseaseID]bool{}
	for _, raw := range r.DiseasesDetected {
		id := diagnosis.DiseaseID(NormalizeLabel(raw))
		if !id.Known() || seen[id] {
			continue
		}
		seen[id] = true
		d.DiseasesDetected = append(d.DiseasesDetected, id)
	}

	switch {
	case d.IsTomatoLeaf == diagnosis.NotTomato:
		d.HealthStatus = diagnosis.NotApplicable
	case r.HealthStatus != nil:
		switch hs := diagnosis.HealthStatus(*r.HealthStatus); hs {
		case diagnosis.Healthy, diagnosis.Diseased:
			d.HealthStatus = hs
		default:
			return diagnosis.Diagnosis{}, fmt.Errorf("unknown health_status %q", *r.HealthStatus)
		}
	case len(d.DiseasesDetected) > 0:
		d.HealthStatus = diagnosis.Diseased
	default:
		d.HealthStatus = diagnosis.Healthy
	}

	switch d.HealthStatus {
	case diagnosis.NotApplicable:
		d.DiseasesDetected = nil
		d.SymptomsObserved = nil
		d.TreatmentRecommendations = nil
		d.PreventionTips = nil
	case diagnosis.Healthy:
		d.DiseasesDetected = nil
		if len(d.PreventionTips) == 0 {
			d.PreventionTips = in.BaselinePrevention()
		}
	case diagnosis.Diseased:
		if len(d.DiseasesDetected) == 0 {
			d.DiseasesDetected = []diagnosis.DiseaseID{diagnosis.Other}
		}
		severity := diagnosis.Moderate
		if r.SeverityLevel != nil && diagnosis.Severity(*r.SeverityLevel).Valid() {
			severity = diagnosis.Severity(*r.SeverityLevel)
		} else if s := in.Catalog().Disease(d.DiseasesDetected[0]).Severity; s.Valid() {
			severity = s
		}
		d.SeverityLevel = severity.Ptr()
	}

	d.Normalize()
	return d, nil
}
