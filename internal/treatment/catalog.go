package treatment

import (
	"bytes"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DiseaseRecord is one recognized plant condition.
type DiseaseRecord struct {
	Label                string              `yaml:"label" json:"label"`
	Species              string              `yaml:"species" json:"species"`
	Condition            string              `yaml:"condition" json:"condition"`
	Healthy              bool                `yaml:"healthy" json:"healthy"`
	Symptoms             []string            `yaml:"symptoms" json:"symptoms"`
	TreatmentSteps       []string            `yaml:"treatment" json:"treatment"`
	SeverityDescriptions map[Severity]string `yaml:"severity" json:"severity_descriptions"`
}

// DisplayName renders the record as "Tomato - Late blight".
func (r DiseaseRecord) DisplayName() string {
	species := cases.Title(language.English).String(r.Species)
	condition := r.Condition
	if condition != "" {
		condition = strings.ToUpper(condition[:1]) + condition[1:]
	}
	return species + " - " + condition
}

func (r DiseaseRecord) clone() DiseaseRecord {
	r.Symptoms = slices.Clone(r.Symptoms)
	r.TreatmentSteps = slices.Clone(r.TreatmentSteps)
	r.SeverityDescriptions = maps.Clone(r.SeverityDescriptions)
	return r
}

// Catalog is the read-only set of disease records. It is built once and
// shared by every request; accessors hand out copies.
type Catalog struct {
	labels  []string
	records map[string]DiseaseRecord
}

type catalogFile struct {
	Diseases []DiseaseRecord `yaml:"diseases"`
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from path, or returns the built-in catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(file.Diseases)
}

// NewCatalog validates records and builds a Catalog preserving their order.
func NewCatalog(records []DiseaseRecord) (*Catalog, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog has no diseases")
	}

	c := &Catalog{
		labels:  make([]string, 0, len(records)),
		records: make(map[string]DiseaseRecord, len(records)),
	}
	for i, rec := range records {
		if err := validateRecord(rec); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if _, dup := c.records[rec.Label]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate label %q", i, rec.Label)
		}
		c.labels = append(c.labels, rec.Label)
		c.records[rec.Label] = rec.clone()
	}
	return c, nil
}

func validateRecord(rec DiseaseRecord) error {
	if strings.TrimSpace(rec.Label) == "" {
		return fmt.Errorf("label is required")
	}
	if rec.Species == "" || rec.Condition == "" {
		return fmt.Errorf("%s: species and condition are required", rec.Label)
	}
	if len(rec.Symptoms) == 0 {
		return fmt.Errorf("%s: no symptoms", rec.Label)
	}
	if len(rec.TreatmentSteps) == 0 {
		return fmt.Errorf("%s: no treatment steps", rec.Label)
	}
	if len(rec.SeverityDescriptions) == 0 {
		return fmt.Errorf("%s: no severity descriptions", rec.Label)
	}
	for tier := range rec.SeverityDescriptions {
		if !tier.valid() {
			return fmt.Errorf("%s: unknown severity tier %q", rec.Label, tier)
		}
	}
	return nil
}

func (c *Catalog) Labels() []string {
	return slices.Clone(c.labels)
}

func (c *Catalog) Len() int {
	return len(c.labels)
}

func (c *Catalog) Record(label string) (DiseaseRecord, bool) {
	rec, ok := c.records[label]
	if !ok {
		return DiseaseRecord{}, false
	}
	return rec.clone(), true
}

// Records returns copies of all records in declaration order.
func (c *Catalog) Records() []DiseaseRecord {
	out := make([]DiseaseRecord, 0, len(c.labels))
	for _, label := range c.labels {
		out = append(out, c.records[label].clone())
	}
	return out
}
