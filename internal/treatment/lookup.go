package treatment

import (
	"errors"
	"fmt"
	"math"
)

// UnknownSeverity is reported when a record has no description for a tier.
const UnknownSeverity = "Unknown severity"

var (
	// ErrUnknownDisease is returned for labels missing from the catalog.
	ErrUnknownDisease = errors.New("disease class not found")
	// ErrInvalidConfidence is returned for confidences outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
)

// Advice is the treatment information for one diagnosis.
type Advice struct {
	Label               string   `json:"disease"`
	Species             string   `json:"species"`
	Condition           string   `json:"condition"`
	Healthy             bool     `json:"healthy"`
	Confidence          float64  `json:"confidence"`
	Severity            Severity `json:"severity"`
	SeverityDescription string   `json:"severity_description"`
	Symptoms            []string `json:"symptoms"`
	TreatmentSteps      []string `json:"treatment"`
}

// Advisor answers treatment lookups against a catalog using a severity
// policy. It holds no mutable state.
type Advisor struct {
	catalog *Catalog
	policy  Policy
}

func NewAdvisor(catalog *Catalog, policy Policy) (*Advisor, error) {
	if catalog == nil {
		return nil, fmt.Errorf("treatment: nil catalog")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("treatment: %w", err)
	}
	return &Advisor{catalog: catalog, policy: policy}, nil
}

func (a *Advisor) Catalog() *Catalog { return a.catalog }

func (a *Advisor) Policy() Policy { return a.policy }

// Lookup builds the advice for label at the given confidence (0-1 scale).
func (a *Advisor) Lookup(label string, confidence float64) (Advice, error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Advice{}, fmt.Errorf("%w: got %v", ErrInvalidConfidence, confidence)
	}
	rec, ok := a.catalog.Record(label)
	if !ok {
		return Advice{}, fmt.Errorf("%w: %q", ErrUnknownDisease, label)
	}

	tier := a.policy.Tier(confidence)
	return Advice{
		Label:               rec.Label,
		Species:             rec.Species,
		Condition:           rec.Condition,
		Healthy:             rec.Healthy,
		Confidence:          confidence,
		Severity:            tier,
		SeverityDescription: describe(rec, tier),
		Symptoms:            rec.Symptoms,
		TreatmentSteps:      rec.TreatmentSteps,
	}, nil
}

// describe picks the tier's description. Records carrying a single entry
// (the healthy ones) use it for every tier.
func describe(rec DiseaseRecord, tier Severity) string {
	if desc, ok := rec.SeverityDescriptions[tier]; ok {
		return desc
	}
	if len(rec.SeverityDescriptions) == 1 {
		for _, desc := range rec.SeverityDescriptions {
			return desc
		}
	}
	return UnknownSeverity
}
