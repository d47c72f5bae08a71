package diagnosis

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Catalogue keys that are not diseases but still carry guidance.
const (
	HealthyKey   = "healthy"
	NotTomatoKey = "not_tomato"
)

// Treatment is one prescribed action for a condition.
type Treatment struct {
	Type          string `yaml:"type" json:"type"`
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description"`
	Application   string `yaml:"application" json:"application"`
	Frequency     string `yaml:"frequency" json:"frequency"`
	Effectiveness int    `yaml:"effectiveness" json:"effectiveness"`
	CostLevel     string `yaml:"cost_level" json:"cost_level"`
}

// Summary renders the treatment as a single recommendation line.
func (t Treatment) Summary() string {
	if t.Application == "" {
		return t.Name
	}
	return t.Name + ": " + t.Application
}

// Info is the knowledge-base record for one condition.
type Info struct {
	Key              string      `yaml:"-" json:"id"`
	Name             string      `yaml:"name" json:"name"`
	Severity         Severity    `yaml:"severity" json:"severity,omitempty"`
	Description      string      `yaml:"description" json:"description"`
	Symptoms         []string    `yaml:"symptoms" json:"symptoms"`
	Treatments       []Treatment `yaml:"treatments" json:"treatments"`
	Prevention       []string    `yaml:"prevention" json:"prevention"`
	FarmingTips      []string    `yaml:"farming_tips" json:"farming_tips"`
	ExpectedRecovery string      `yaml:"expected_recovery" json:"expected_recovery"`
}

// Catalog is the disease knowledge base keyed by disease id, plus the
// healthy and not_tomato pseudo entries.
type Catalog struct {
	entries map[string]Info
}

// ParseCatalog decodes a YAML knowledge base. Every disease in the
// vocabulary and both pseudo entries must be present.
func ParseCatalog(data []byte) (*Catalog, error) {
	raw := map[string]Info{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for key, info := range raw {
		info.Key = key
		if info.Severity != "" && !info.Severity.Valid() {
			return nil, fmt.Errorf("catalog entry %q: unknown severity %q", key, info.Severity)
		}
		raw[key] = info
	}
	for _, key := range keys() {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("catalog missing entry %q", key)
		}
	}
	return &Catalog{entries: raw}, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded knowledge base.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(catalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Lookup returns the record for a disease id or pseudo key.
func (c *Catalog) Lookup(key string) (Info, bool) {
	info, ok := c.entries[key]
	return info, ok
}

// Disease returns the record for a disease id, falling back to the
// general "other" entry for unknown ids.
func (c *Catalog) Disease(id DiseaseID) Info {
	if info, ok := c.entries[string(id)]; ok {
		return info
	}
	return c.entries[string(Other)]
}

// DisplayName returns the human-readable name for a disease id.
func (c *Catalog) DisplayName(id DiseaseID) string {
	if id == Other {
		return "an unidentified disease"
	}
	return c.Disease(id).Name
}

// All returns every record in vocabulary order followed by the pseudo
// entries.
func (c *Catalog) All() []Info {
	out := make([]Info, 0, len(c.entries))
	for _, key := range keys() {
		out = append(out, c.entries[key])
	}
	return out
}

func keys() []string {
	ks := make([]string, 0, len(Vocabulary)+2)
	for _, id := range Vocabulary {
		ks = append(ks, string(id))
	}
	return append(ks, HealthyKey, NotTomatoKey)
}
