package interpreter

import (
	"encoding/json"
	"testing"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyTomatoLeaf(t *testing.T) {
	in := Default()

	tests := []struct {
		name     string
		result   diagnosis.Classification
		filename string
		want     bool
		wantConf float64
	}{
		{
			name:     "person dominates",
			result:   diagnosis.Classification{{Label: "person", Score: 0.9}},
			filename: "IMG_0001.jpg",
			want:     false,
			wantConf: 0,
		},
		{
			name:     "plant label with filename bonus",
			result:   diagnosis.Classification{{Label: "leaf", Score: 0.6}},
			filename: "tomato_leaf.jpg",
			want:     true,
			wantConf: 0.68,
		},
		{
			name:     "filename bonus alone is not enough",
			filename: "unhealthy_leaf.jpg",
			want:     false,
			wantConf: 0.2,
		},
		{
			name: "non plant penalty",
			result: diagnosis.Classification{
				{Label: "potted plant", Score: 0.7},
				{Label: "laptop computer", Score: 0.4},
			},
			filename: "photo.png",
			want:     true,
			wantConf: 0.56 - 0.5*0.2,
		},
		{
			name:     "full width and mixed case",
			result:   diagnosis.Classification{{Label: "ＦＯＬＩＡＧＥ", Score: 0.5}},
			filename: "Garden-TOMATO.JPG",
			want:     true,
			wantConf: 0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := in.VerifyTomatoLeaf(tt.result, tt.filename)
			assert.Equal(t, tt.want, v.IsTomato)
			assert.InDelta(t, tt.wantConf, v.Confidence, 1e-9)
		})
	}
}

func TestScoreHealth(t *testing.T) {
	in := Default()

	t.Run("no signal is healthy at floor confidence", func(t *testing.T) {
		h := in.ScoreHealth(diagnosis.Classification{{Label: "leaf", Score: 0.6}}, "tomato_leaf.jpg")
		assert.True(t, h.Healthy)
		assert.InDelta(t, 0.5, h.Score, 1e-9)
		assert.InDelta(t, MinHealthConfidence, h.Confidence, 1e-9)
	})

	t.Run("unhealthy is not counted as healthy", func(t *testing.T) {
		h := in.ScoreHealth(nil, "unhealthy_leaf.jpg")
		assert.False(t, h.Healthy)
		assert.InDelta(t, 0.1, h.Score, 1e-9)
	})

	t.Run("healthy filename bonus", func(t *testing.T) {
		h := in.ScoreHealth(diagnosis.Classification{{Label: "leaf spot", Score: 0.3}}, "healthy.jpg")
		assert.InDelta(t, 0.5-0.18+0.3, h.Score, 1e-9)
		assert.True(t, h.Healthy)
	})

	t.Run("confidence capped", func(t *testing.T) {
		h := in.ScoreHealth(diagnosis.Classification{{Label: "healthy green plant", Score: 0.99}}, "x.jpg")
		assert.True(t, h.Healthy)
		assert.InDelta(t, MaxHealthConfidence, h.Confidence, 1e-9)
	})

	t.Run("healthy and unhealthy matches both count", func(t *testing.T) {
		tests := []struct {
			name     string
			result   diagnosis.Classification
			filename string
			score    float64
			healthy  bool
		}{
			{"mixed label", diagnosis.Classification{{Label: "green leaf with yellow spots", Score: 0.9}}, "IMG_1.jpg", 0.5 + 0.72 - 0.54, true},
			{"mixed filename", nil, "fresh_green_but_wilted.jpg", 0.5 + 0.3 - 0.4, false},
			{"unhealthy masks healthy", diagnosis.Classification{{Label: "unhealthy", Score: 0.5}}, "x.jpg", 0.5 - 0.3, false},
			{"unhealthy and green", diagnosis.Classification{{Label: "unhealthy green", Score: 0.5}}, "x.jpg", 0.5 - 0.3 + 0.4, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := in.ScoreHealth(tt.result, tt.filename)
				assert.InDelta(t, tt.score, h.Score, 1e-9)
				assert.Equal(t, tt.healthy, h.Healthy)
			})
		}
	})

	t.Run("unhealthy label drops below threshold", func(t *testing.T) {
		h := in.ScoreHealth(diagnosis.Classification{{Label: "sick plant", Score: 0.5}}, "x.jpg")
		assert.False(t, h.Healthy)
		assert.InDelta(t, 0.2, h.Score, 1e-9)
	})
}

func TestAttributeDisease(t *testing.T) {
	in := Default()

	t.Run("empty result falls back to other", func(t *testing.T) {
		a := in.AttributeDisease(nil, "unhealthy_leaf.jpg")
		assert.Equal(t, []diagnosis.DiseaseID{diagnosis.Other}, a.Diseases)
		assert.Equal(t, diagnosis.Mild, a.Severity)
		assert.Equal(t, []string{GenericSymptom}, a.Symptoms)
		assert.True(t, a.Uncertain)
	})

	t.Run("union across entries in first seen order", func(t *testing.T) {
		a := in.AttributeDisease(diagnosis.Classification{
			{Label: "leaf spot disease", Score: 0.7},
			{Label: "brown blight", Score: 0.25},
			{Label: "spotted leaf", Score: 0.5},
		}, "img.jpg")
		assert.Equal(t, []diagnosis.DiseaseID{diagnosis.BacterialSpot, diagnosis.EarlyBlight}, a.Diseases)
		assert.Equal(t, diagnosis.Moderate, a.Severity)
		assert.Len(t, a.Symptoms, 2)
		assert.False(t, a.Uncertain)
	})

	t.Run("low evidence ignored", func(t *testing.T) {
		a := in.AttributeDisease(diagnosis.Classification{{Label: "spot", Score: 0.2}}, "img.jpg")
		assert.Equal(t, []diagnosis.DiseaseID{diagnosis.Other}, a.Diseases)
		assert.True(t, a.Uncertain)
	})

	t.Run("most severe wins", func(t *testing.T) {
		a := in.AttributeDisease(diagnosis.Classification{
			{Label: "mold", Score: 0.5},
			{Label: "yellow", Score: 0.5},
		}, "wilted.jpg")
		assert.Equal(t, []diagnosis.DiseaseID{diagnosis.LeafMold, diagnosis.NutrientDeficiency, diagnosis.Other}, a.Diseases)
		assert.Equal(t, diagnosis.Severe, a.Severity)
	})
}

func TestGenerateContent(t *testing.T) {
	in := Default()

	c := in.GenerateContent([]diagnosis.DiseaseID{diagnosis.EarlyBlight, diagnosis.LeafMold}, diagnosis.Moderate)
	assert.Len(t, c.Treatments, 8)
	assert.Equal(t, DefaultTables().BaselinePrevention, c.Prevention)
	assert.Contains(t, c.Description, "Early Blight and Leaf Mold")
	assert.Contains(t, c.Description, "moderate severity")

	dup := in.GenerateContent([]diagnosis.DiseaseID{diagnosis.LeafMold, diagnosis.LeafMold}, diagnosis.Mild)
	assert.Len(t, dup.Treatments, 4)

	other := in.GenerateContent([]diagnosis.DiseaseID{diagnosis.BacterialSpot}, diagnosis.Severe)
	assert.Equal(t, c.Prevention, other.Prevention)
}

func TestInterpret(t *testing.T) {
	in := Default()

	t.Run("not tomato", func(t *testing.T) {
		d := in.Interpret(diagnosis.Classification{{Label: "person", Score: 0.9}}, "me.jpg")
		require.NoError(t, d.Validate())
		assert.Equal(t, diagnosis.NotTomato, d.IsTomatoLeaf)
		assert.Equal(t, diagnosis.NotApplicable, d.HealthStatus)
		assert.Empty(t, d.DiseasesDetected)
		assert.Nil(t, d.SeverityLevel)
		assert.InDelta(t, DefaultNotTomatoConfidence, d.ConfidenceScore, 1e-9)
		assert.False(t, d.Offline)
	})

	t.Run("not tomato keeps stage score", func(t *testing.T) {
		d := in.Interpret(nil, "unhealthy_leaf.jpg")
		assert.Equal(t, diagnosis.NotTomato, d.IsTomatoLeaf)
		assert.InDelta(t, 0.2, d.ConfidenceScore, 1e-9)
	})

	t.Run("healthy", func(t *testing.T) {
		d := in.Interpret(diagnosis.Classification{{Label: "leaf", Score: 0.6}}, "tomato_leaf.jpg")
		require.NoError(t, d.Validate())
		assert.Equal(t, diagnosis.Healthy, d.HealthStatus)
		assert.Empty(t, d.DiseasesDetected)
		assert.Nil(t, d.SeverityLevel)
		assert.NotEmpty(t, d.PreventionTips)
	})

	t.Run("diseased", func(t *testing.T) {
		d := in.Interpret(diagnosis.Classification{
			{Label: "leaf spot disease", Score: 0.7},
			{Label: "brown blight", Score: 0.25},
		}, "img.jpg")
		require.NoError(t, d.Validate())
		assert.Equal(t, diagnosis.Diseased, d.HealthStatus)
		assert.Equal(t, []diagnosis.DiseaseID{diagnosis.BacterialSpot, diagnosis.EarlyBlight}, d.DiseasesDetected)
		assert.Equal(t, diagnosis.Moderate, d.Severity())
		assert.InDelta(t, 0.7, d.ConfidenceScore, 1e-9)
		assert.NotEmpty(t, d.TreatmentRecommendations)
	})

	t.Run("uncertain note", func(t *testing.T) {
		d := in.Interpret(diagnosis.Classification{{Label: "plant", Score: 0.5}}, "sick_tomato.jpg")
		require.NoError(t, d.Validate())
		assert.Equal(t, []diagnosis.DiseaseID{diagnosis.Other}, d.DiseasesDetected)
		assert.Contains(t, d.AdditionalNotes, UncertainNote)
	})

	t.Run("severe from filename", func(t *testing.T) {
		d := in.Interpret(diagnosis.Classification{{Label: "plant", Score: 0.5}}, "wilted_tomato.png")
		require.NoError(t, d.Validate())
		assert.Equal(t, diagnosis.Severe, d.Severity())
		assert.NotContains(t, d.AdditionalNotes, UncertainNote)
	})
}

func TestInterpretDeterministic(t *testing.T) {
	in := Default()
	result := diagnosis.Classification{
		{Label: "leaf mold", Score: 0.4},
		{Label: "yellow leaf", Score: 0.3},
		{Label: "plant", Score: 0.2},
	}
	first, err := json.Marshal(in.Interpret(result, "tomato.jpg"))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(in.Interpret(result, "tomato.jpg"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestInterpretDoesNotShareTables(t *testing.T) {
	in := Default()
	d := in.Interpret(diagnosis.Classification{{Label: "leaf", Score: 0.6}}, "tomato_leaf.jpg")
	d.PreventionTips[0] = "changed"

	again := in.Interpret(diagnosis.Classification{{Label: "leaf", Score: 0.6}}, "tomato_leaf.jpg")
	assert.NotEqual(t, "changed", again.PreventionTips[0])
}

func TestParseTables(t *testing.T) {
	tables := DefaultTables()
	assert.Contains(t, tables.PlantPositive, "tomato")
	require.Len(t, tables.DiseaseRules, 5)
	assert.Equal(t, diagnosis.BacterialSpot, tables.DiseaseRules[0].Disease)

	_, err := ParseTables([]byte("plant_positive: [leaf]\n"))
	require.Error(t, err)

	_, err = ParseTables([]byte(`
plant_positive: [leaf]
non_plant: [car]
healthy: [green]
unhealthy: [sick]
baseline_prevention: [water]
disease_rules:
  - keywords: [rust]
    disease: rust
    severity: mild
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown disease")

	custom, err := ParseTables([]byte(`
plant_positive: [Leaf]
non_plant: [Car]
healthy: [green]
unhealthy: [sick]
baseline_prevention: [water]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"leaf"}, custom.PlantPositive)

	in, err := New(custom, nil)
	require.NoError(t, err)
	a := in.AttributeDisease(nil, "spot.jpg")
	assert.True(t, a.Uncertain, "custom tables without rules always fall back")
}

func TestVerdictBuilders(t *testing.T) {
	in := Default()

	healthy := in.Healthy(0.9)
	require.NoError(t, healthy.Validate())
	assert.Equal(t, diagnosis.Healthy, healthy.HealthStatus)
	assert.Equal(t, in.BaselinePrevention(), healthy.PreventionTips)

	diseased := in.Diseased(Attribution{Diseases: []diagnosis.DiseaseID{diagnosis.LateBlight}, Severity: diagnosis.Severe}, 0.7)
	require.NoError(t, diseased.Validate())
	assert.Equal(t, diagnosis.Severe, diseased.Severity())
	assert.Equal(t, []string{GenericSymptom}, diseased.SymptomsObserved)
	assert.NotEmpty(t, diseased.TreatmentRecommendations)

	empty := in.Diseased(Attribution{}, 0.5)
	require.NoError(t, empty.Validate())
	assert.Equal(t, []diagnosis.DiseaseID{diagnosis.Other}, empty.DiseasesDetected)
	assert.Equal(t, diagnosis.Mild, empty.Severity())

	notTomato := in.NotTomato(0)
	require.NoError(t, notTomato.Validate())
	assert.InDelta(t, DefaultNotTomatoConfidence, notTomato.ConfidenceScore, 1e-9)

	prev := in.BaselinePrevention()
	prev[0] = "changed"
	assert.NotEqual(t, "changed", in.BaselinePrevention()[0])
	assert.NotNil(t, in.Catalog())
}
