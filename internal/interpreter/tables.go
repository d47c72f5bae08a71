package interpreter

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywordsYAML []byte

// DiseaseRule maps symptom keywords to a disease and its severity.
type DiseaseRule struct {
	Keywords []string            `yaml:"keywords"`
	Disease  diagnosis.DiseaseID `yaml:"disease"`
	Severity diagnosis.Severity  `yaml:"severity"`
	Symptom  string              `yaml:"symptom"`
}

// Tables holds the keyword dictionaries that drive every heuristic stage.
type Tables struct {
	PlantPositive      []string      `yaml:"plant_positive"`
	NonPlant           []string      `yaml:"non_plant"`
	FilenameTomato     []string      `yaml:"filename_tomato"`
	Healthy            []string      `yaml:"healthy"`
	Unhealthy          []string      `yaml:"unhealthy"`
	DiseaseRules       []DiseaseRule `yaml:"disease_rules"`
	BaselinePrevention []string      `yaml:"baseline_prevention"`
}

// ParseTables decodes and validates a YAML keyword table set. Keywords are
// normalised the same way as the text they are matched against.
func ParseTables(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("parse keyword tables: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// LoadTables reads a keyword table file from disk.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read keyword tables: %w", err)
	}
	return ParseTables(data)
}

// DefaultTables returns the embedded keyword tables.
func DefaultTables() Tables {
	t, err := ParseTables(defaultKeywordsYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Validate checks that every table needed by the stages is populated.
func (t Tables) Validate() error {
	switch {
	case len(t.PlantPositive) == 0:
		return errors.New("keyword tables: plant_positive is empty")
	case len(t.NonPlant) == 0:
		return errors.New("keyword tables: non_plant is empty")
	case len(t.Healthy) == 0 || len(t.Unhealthy) == 0:
		return errors.New("keyword tables: healthy and unhealthy must both be set")
	case len(t.BaselinePrevention) == 0:
		return errors.New("keyword tables: baseline_prevention is empty")
	}
	for i, r := range t.DiseaseRules {
		if len(r.Keywords) == 0 {
			return fmt.Errorf("keyword tables: disease rule %d has no keywords", i)
		}
		if !r.Disease.Known() {
			return fmt.Errorf("keyword tables: disease rule %d: unknown disease %q", i, r.Disease)
		}
		if !r.Severity.Valid() {
			return fmt.Errorf("keyword tables: disease rule %d: unknown severity %q", i, r.Severity)
		}
	}
	return nil
}

func (t *Tables) normalize() {
	for _, list := range []*[]string{&t.PlantPositive, &t.NonPlant, &t.FilenameTomato, &t.Healthy, &t.Unhealthy} {
		for i, k := range *list {
			(*list)[i] = normalizeText(k)
		}
	}
	for i := range t.DiseaseRules {
		for j, k := range t.DiseaseRules[i].Keywords {
			t.DiseaseRules[i].Keywords[j] = normalizeText(k)
		}
	}
}

var separators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// normalizeText folds case and compatibility forms so that "Tomato_Leaf"
// and "ｔｏｍａｔｏ leaf" match the same keywords.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return separators.Replace(s)
}

// maskKeywords blanks every occurrence of the keywords in text.
func maskKeywords(text string, keywords []string) string {
	for _, k := range keywords {
		if k != "" {
			text = strings.ReplaceAll(text, k, " ")
		}
	}
	return text
}

// firstMatch returns the first keyword contained in text.
func firstMatch(text string, keywords []string) (string, bool) {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return k, true
		}
	}
	return "", false
}
