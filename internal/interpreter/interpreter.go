// Package interpreter turns ranked classifier output and the uploaded file
// name into a structured Diagnosis. Every stage is a pure function of its
// inputs and the keyword tables.
package interpreter

import (
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
)

const (
	plantWeight         = 0.8
	nonPlantWeight      = 0.5
	nonPlantPenalty     = 0.5
	filenameTomatoBonus = 0.2
	// TomatoThreshold is deliberately low: borderline images are diagnosed
	// rather than rejected.
	TomatoThreshold = 0.3

	healthBase               = 0.5
	healthyWeight            = 0.8
	unhealthyWeight          = 0.6
	filenameHealthyBonus     = 0.3
	filenameUnhealthyPenalty = 0.4
	HealthyThreshold         = 0.4
	MinHealthConfidence      = 0.65
	MaxHealthConfidence      = 0.95

	// EvidenceThreshold is the minimum entry score considered during
	// disease attribution.
	EvidenceThreshold = 0.2

	DefaultNotTomatoConfidence = 0.85

	GenericSymptom = "Disease symptoms observed"
	UncertainNote  = "Specific disease uncertain: the visible symptoms do not match a known pattern."
)

// Interpreter holds the keyword tables and the knowledge base used to
// render guidance. It is safe for concurrent use.
type Interpreter struct {
	tables  Tables
	catalog *diagnosis.Catalog
}

// New builds an Interpreter. A nil catalog selects the embedded one.
func New(tables Tables, catalog *diagnosis.Catalog) (*Interpreter, error) {
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = diagnosis.DefaultCatalog()
	}
	return &Interpreter{tables: tables, catalog: catalog}, nil
}

// Default returns an Interpreter over the embedded tables and catalogue.
func Default() *Interpreter {
	return &Interpreter{tables: DefaultTables(), catalog: diagnosis.DefaultCatalog()}
}

// LeafVerification is the outcome of the tomato-leaf check.
type LeafVerification struct {
	IsTomato      bool
	Confidence    float64
	PlantScore    float64
	NonPlantScore float64
}

// VerifyTomatoLeaf decides whether the image shows a tomato leaf at all.
func (in *Interpreter) VerifyTomatoLeaf(result diagnosis.Classification, filename string) LeafVerification {
	var v LeafVerification
	for _, e := range result {
		label := normalizeText(e.Label)
		if _, ok := firstMatch(label, in.tables.PlantPositive); ok {
			v.PlantScore += e.Score * plantWeight
		}
		if _, ok := firstMatch(label, in.tables.NonPlant); ok {
			v.NonPlantScore += e.Score * nonPlantWeight
		}
	}
	if _, ok := firstMatch(normalizeText(filename), in.tables.FilenameTomato); ok {
		v.PlantScore += filenameTomatoBonus
	}
	v.Confidence = clamp(v.PlantScore-nonPlantPenalty*v.NonPlantScore, 0, 1)
	v.IsTomato = v.Confidence > TomatoThreshold
	return v
}

// HealthAssessment is the outcome of health scoring.
type HealthAssessment struct {
	Healthy    bool
	Score      float64
	Confidence float64
}

// ScoreHealth estimates whether a verified tomato leaf is healthy. Healthy
// and unhealthy matches are scored independently; unhealthy keyword hits
// are masked before the healthy test so "unhealthy" never counts as
// "healthy".
func (in *Interpreter) ScoreHealth(result diagnosis.Classification, filename string) HealthAssessment {
	score := healthBase
	topMatched := 0.0
	for _, e := range result {
		unhealthy, healthy := in.healthMatches(normalizeText(e.Label))
		if unhealthy {
			score -= e.Score * unhealthyWeight
		}
		if healthy {
			score += e.Score * healthyWeight
		}
		if unhealthy || healthy {
			topMatched = math.Max(topMatched, e.Score)
		}
	}

	unhealthy, healthy := in.healthMatches(normalizeText(filename))
	if unhealthy {
		score -= filenameUnhealthyPenalty
	}
	if healthy {
		score += filenameHealthyBonus
	}

	return HealthAssessment{
		Healthy:    score > HealthyThreshold,
		Score:      score,
		Confidence: clamp(math.Max(topMatched, MinHealthConfidence), MinHealthConfidence, MaxHealthConfidence),
	}
}

func (in *Interpreter) healthMatches(text string) (unhealthy, healthy bool) {
	_, unhealthy = firstMatch(text, in.tables.Unhealthy)
	_, healthy = firstMatch(maskKeywords(text, in.tables.Unhealthy), in.tables.Healthy)
	return unhealthy, healthy
}

// Attribution is the outcome of disease attribution for an unhealthy leaf.
type Attribution struct {
	Diseases  []diagnosis.DiseaseID
	Severity  diagnosis.Severity
	Symptoms  []string
	Uncertain bool
}

// AttributeDisease maps symptom keywords in sufficiently confident labels
// and in the filename to diseases. It never returns an empty disease set.
func (in *Interpreter) AttributeDisease(result diagnosis.Classification, filename string) Attribution {
	a := Attribution{Severity: diagnosis.Mild}
	seenDisease := map[diagnosis.DiseaseID]bool{}
	seenSymptom := map[string]bool{}

	apply := func(text string) {
		for _, rule := range in.tables.DiseaseRules {
			if _, ok := firstMatch(text, rule.Keywords); !ok {
				continue
			}
			if !seenDisease[rule.Disease] {
				seenDisease[rule.Disease] = true
				a.Diseases = append(a.Diseases, rule.Disease)
			}
			if rule.Symptom != "" && !seenSymptom[rule.Symptom] {
				seenSymptom[rule.Symptom] = true
				a.Symptoms = append(a.Symptoms, rule.Symptom)
			}
			if rule.Severity.Rank() > a.Severity.Rank() {
				a.Severity = rule.Severity
			}
		}
	}

	for _, e := range result {
		if e.Score > EvidenceThreshold {
			apply(normalizeText(e.Label))
		}
	}
	apply(normalizeText(filename))

	if len(a.Diseases) == 0 {
		return Attribution{
			Diseases:  []diagnosis.DiseaseID{diagnosis.Other},
			Severity:  diagnosis.Mild,
			Symptoms:  []string{GenericSymptom},
			Uncertain: true,
		}
	}
	return a
}

// Content is the generated guidance for a set of diseases.
type Content struct {
	Treatments  []string
	Prevention  []string
	Description string
}

var severityAdvice = map[diagnosis.Severity]string{
	diagnosis.Mild:     "Early organic treatment should bring it under control.",
	diagnosis.Moderate: "Start treatment promptly and check neighbouring plants.",
	diagnosis.Severe:   "Act immediately to protect the rest of the crop.",
}

// GenerateContent renders treatments, prevention tips and a description.
// Prevention tips are the shared baseline list regardless of disease.
func (in *Interpreter) GenerateContent(diseases []diagnosis.DiseaseID, severity diagnosis.Severity) Content {
	var treatments []string
	seen := map[string]bool{}
	names := make([]string, 0, len(diseases))
	for _, id := range diseases {
		names = append(names, in.catalog.DisplayName(id))
		for _, t := range in.catalog.Disease(id).Treatments {
			line := t.Summary()
			if !seen[line] {
				seen[line] = true
				treatments = append(treatments, line)
			}
		}
	}

	desc := fmt.Sprintf("The leaf shows signs of %s with %s severity.", joinNames(names), severity)
	if advice, ok := severityAdvice[severity]; ok {
		desc += " " + advice
	}

	return Content{
		Treatments:  treatments,
		Prevention:  in.BaselinePrevention(),
		Description: desc,
	}
}

// Interpret runs every stage and assembles the Diagnosis. The Offline flag
// is left for the caller.
func (in *Interpreter) Interpret(result diagnosis.Classification, filename string) diagnosis.Diagnosis {
	leaf := in.VerifyTomatoLeaf(result, filename)
	if !leaf.IsTomato {
		return in.NotTomato(leaf.Confidence)
	}

	health := in.ScoreHealth(result, filename)
	if health.Healthy {
		return in.Healthy(health.Confidence)
	}

	attr := in.AttributeDisease(result, filename)
	return in.Diseased(attr, health.Confidence)
}

// Healthy builds the diagnosis for a healthy tomato leaf.
func (in *Interpreter) Healthy(confidence float64) diagnosis.Diagnosis {
	info, _ := in.catalog.Lookup(diagnosis.HealthyKey)
	d := diagnosis.Diagnosis{
		IsTomatoLeaf:     diagnosis.Tomato,
		ConfidenceScore:  confidence,
		HealthStatus:     diagnosis.Healthy,
		SymptomsObserved: append([]string(nil), info.Symptoms...),
		PreventionTips:   in.BaselinePrevention(),
		AdditionalNotes:  info.Description,
	}
	d.Normalize()
	return d
}

// Diseased builds the diagnosis for an attributed disease.
func (in *Interpreter) Diseased(attr Attribution, confidence float64) diagnosis.Diagnosis {
	diseases := attr.Diseases
	if len(diseases) == 0 {
		diseases = []diagnosis.DiseaseID{diagnosis.Other}
	}
	severity := attr.Severity
	if !severity.Valid() {
		severity = diagnosis.Mild
	}
	symptoms := attr.Symptoms
	if len(symptoms) == 0 {
		symptoms = []string{GenericSymptom}
	}

	content := in.GenerateContent(diseases, severity)
	notes := content.Description
	if attr.Uncertain {
		notes += " " + UncertainNote
	}
	d := diagnosis.Diagnosis{
		IsTomatoLeaf:             diagnosis.Tomato,
		ConfidenceScore:          confidence,
		HealthStatus:             diagnosis.Diseased,
		DiseasesDetected:         diseases,
		SymptomsObserved:         symptoms,
		SeverityLevel:            severity.Ptr(),
		TreatmentRecommendations: content.Treatments,
		PreventionTips:           content.Prevention,
		AdditionalNotes:          notes,
	}
	d.Normalize()
	return d
}

// NotTomato builds the diagnosis for a photo that is not a tomato leaf. A
// zero confidence is replaced by DefaultNotTomatoConfidence.
func (in *Interpreter) NotTomato(confidence float64) diagnosis.Diagnosis {
	if confidence == 0 {
		confidence = DefaultNotTomatoConfidence
	}
	info, _ := in.catalog.Lookup(diagnosis.NotTomatoKey)
	d := diagnosis.Diagnosis{
		IsTomatoLeaf:    diagnosis.NotTomato,
		ConfidenceScore: confidence,
		HealthStatus:    diagnosis.NotApplicable,
		AdditionalNotes: info.Description,
	}
	d.Normalize()
	return d
}

// BaselinePrevention returns a copy of the shared prevention list.
func (in *Interpreter) BaselinePrevention() []string {
	return append([]string(nil), in.tables.BaselinePrevention...)
}

// Catalog returns the knowledge base used for display names and treatments.
func (in *Interpreter) Catalog() *diagnosis.Catalog { return in.catalog }

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return "disease"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
