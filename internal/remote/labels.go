package remote

import (
	"regexp"
	"strings"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
)

var nonLabelChars = regexp.MustCompile(`[^a-z0-9]+`)

// Crop prefixes seen in server labels, including the historical misspellings.
var cropPrefixes = []string{"tomatoe-", "tomaote-", "tomato-"}

var labelAliases = map[string]string{
	"healthy":      diagnosis.HealthyKey,
	"not-healthy":  string(diagnosis.Other),
	"unhealthy":    string(diagnosis.Other),
	"diseased":     string(diagnosis.Other),
	"not-tomato":   diagnosis.NotTomatoKey,
	"not-a-tomato": diagnosis.NotTomatoKey,
	"mold":         string(diagnosis.LeafMold),
}

// Labels that name only the crop or the plant part carry no verdict.
var cropOnlyLabels = map[string]bool{
	"":        true,
	"tomato":  true,
	"tomatoe": true,
	"tomaote": true,
	"leaf":    true,
	"leaves":  true,
	"plant":   true,
}

// NormalizeLabel maps a server label such as "tomatoe-early-blight",
// "Tomato_Late_Blight" or "leaf mold" to a catalogue key. Unknown disease
// labels map to "other". A label without any verdict, such as "tomato" or
// "tomato-leaf", maps to "".
func NormalizeLabel(label string) string {
	s := strings.Trim(nonLabelChars.ReplaceAllString(strings.ToLower(label), "-"), "-")
	for _, p := range cropPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}
	if cropOnlyLabels[s] {
		return ""
	}
	if key, ok := labelAliases[s]; ok {
		return key
	}
	if id := diagnosis.DiseaseID(strings.ReplaceAll(s, "-", "_")); id.Known() {
		return string(id)
	}
	return string(diagnosis.Other)
}
