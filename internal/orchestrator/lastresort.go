package orchestrator

import "github.com/MeKo-Tech/leafcheck/internal/diagnosis"

// LastResortConfidence is the confidence reported when no model could run.
const LastResortConfidence = 0.5

// LastResortNote tells the user the result is a general one.
const LastResortNote = "Automatic analysis was not possible, so this is a general assessment with reduced certainty. " +
	"Please retake the photo in good light or consult a local agricultural expert."

// LastResort returns the generic diagnosis used when on-device inference
// fails. Offline is left to the caller.
func LastResort() diagnosis.Diagnosis {
	return diagnosis.Diagnosis{
		IsTomatoLeaf:     diagnosis.Tomato,
		ConfidenceScore:  LastResortConfidence,
		HealthStatus:     diagnosis.Diseased,
		DiseasesDetected: []diagnosis.DiseaseID{diagnosis.Other},
		SymptomsObserved: []string{"Possible disease symptoms that could not be identified automatically"},
		SeverityLevel:    diagnosis.Mild.Ptr(),
		TreatmentRecommendations: []string{
			"Remove visibly affected leaves and dispose of them away from the garden",
			"Apply a broad-spectrum organic fungicide such as copper soap if symptoms spread",
		},
		PreventionTips: []string{
			"Water at the base of the plant and avoid wetting the foliage",
			"Keep good air circulation between plants",
			"Inspect leaves regularly for new spots or discoloration",
		},
		AdditionalNotes: LastResortNote,
	}
}
