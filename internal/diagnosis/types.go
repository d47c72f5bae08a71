package diagnosis

// LeafVerdict reports whether the photographed object is a tomato leaf.
type LeafVerdict string

const (
	Tomato    LeafVerdict = "tomato"
	NotTomato LeafVerdict = "not_tomato"
)

// HealthStatus is the overall health verdict for a tomato leaf.
type HealthStatus string

const (
	Healthy       HealthStatus = "healthy"
	Diseased      HealthStatus = "diseased"
	NotApplicable HealthStatus = "not_applicable"
)

// Severity is the ordinal disease-impact level, mild < moderate < severe.
type Severity string

const (
	Mild     Severity = "mild"
	Moderate Severity = "moderate"
	Severe   Severity = "severe"
)

// Rank returns the ordinal position of the severity. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case Mild:
		return 1
	case Moderate:
		return 2
	case Severe:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Ptr returns a pointer to a copy of s, for use in Diagnosis.SeverityLevel.
func (s Severity) Ptr() *Severity { return &s }

// DiseaseID identifies a disease in the fixed vocabulary.
type DiseaseID string

const (
	BacterialSpot      DiseaseID = "bacterial_spot"
	EarlyBlight        DiseaseID = "early_blight"
	LateBlight         DiseaseID = "late_blight"
	LeafMold           DiseaseID = "leaf_mold"
	NutrientDeficiency DiseaseID = "nutrient_deficiency"
	Other              DiseaseID = "other"
)

// Vocabulary lists every disease identifier the system may emit.
var Vocabulary = []DiseaseID{BacterialSpot, EarlyBlight, LateBlight, LeafMold, NutrientDeficiency, Other}

// Known reports whether id belongs to the vocabulary.
func (id DiseaseID) Known() bool {
	for _, v := range Vocabulary {
		if v == id {
			return true
		}
	}
	return false
}

// Entry is one ranked classifier output.
type Entry struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classification is a ranked list of entries, highest score first.
type Classification []Entry

// Top returns the highest-ranked entry and whether one exists.
func (c Classification) Top() (Entry, bool) {
	if len(c) == 0 {
		return Entry{}, false
	}
	return c[0], true
}

// Diagnosis is the normalised output of one analysis, regardless of which
// inference path produced it.
type Diagnosis struct {
	IsTomatoLeaf             LeafVerdict  `json:"is_tomato_leaf"`
	ConfidenceScore          float64      `json:"confidence_score"`
	HealthStatus             HealthStatus `json:"health_status"`
	DiseasesDetected         []DiseaseID  `json:"diseases_detected"`
	SymptomsObserved         []string     `json:"symptoms_observed"`
	SeverityLevel            *Severity    `json:"severity_level"`
	TreatmentRecommendations []string     `json:"treatment_recommendations"`
	PreventionTips           []string     `json:"prevention_tips"`
	AdditionalNotes          string       `json:"additional_notes"`
	Offline                  bool         `json:"offline"`
}

// Severity returns the severity value or "" when it is null.
func (d Diagnosis) Severity() Severity {
	if d.SeverityLevel == nil {
		return ""
	}
	return *d.SeverityLevel
}

// Normalize replaces nil slices with empty ones so the JSON form always
// carries arrays instead of null.
func (d *Diagnosis) Normalize() {
	if d.DiseasesDetected == nil {
		d.DiseasesDetected = []DiseaseID{}
	}
	if d.SymptomsObserved == nil {
		d.SymptomsObserved = []string{}
	}
	if d.TreatmentRecommendations == nil {
		d.TreatmentRecommendations = []string{}
	}
	if d.PreventionTips == nil {
		d.PreventionTips = []string{}
	}
}
