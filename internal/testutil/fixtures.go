package testutil

// Canned bodies returned by the remote prediction service in its different
// response shapes.
const (
	// RemoteStructured is a complete diagnosis document.
	RemoteStructured = `{
  "is_tomato_leaf": "tomato",
  "confidence_score": 0.91,
  "health_status": "diseased",
  "diseases_detected": ["late_blight"],
  "symptoms_observed": ["Water-soaked spots"],
  "severity_level": "severe",
  "treatment_recommendations": ["Remove affected plants"],
  "prevention_tips": ["Monitor weather"],
  "additional_notes": "Late blight detected."
}`

	// RemoteMissingConfidence omits confidence_score.
	RemoteMissingConfidence = `{
  "is_tomato_leaf": "tomato",
  "health_status": "diseased",
  "diseases_detected": ["early_blight"],
  "severity_level": "moderate"
}`

	// RemoteLabel is the label/probability shape.
	RemoteLabel = `{"label": "tomatoe-early-blight", "probability": 0.77, "image_path": "uploads/leaf.jpg"}`

	// RemoteHealthyLabel is a healthy label without any score.
	RemoteHealthyLabel = `{"label": "tomatoe-healthy"}`

	// RemoteUnrecognised carries none of the expected fields.
	RemoteUnrecognised = `{"status": "ok"}`
)
