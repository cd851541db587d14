package treatment

import (
	"fmt"
	"math"
)

// Severity is the tier a diagnosis is reported at.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	// SeverityHealthy only appears as a description key on healthy records.
	SeverityHealthy Severity = "healthy"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere, SeverityHealthy:
		return true
	}
	return false
}

// Policy maps a confidence score on a 0-1 scale to a severity tier.
// Each band includes its lower bound; the severe band has no upper bound.
type Policy struct {
	ModerateAt float64 `json:"moderate_at" mapstructure:"moderate_at"`
	SevereAt   float64 `json:"severe_at" mapstructure:"severe_at"`
}

func DefaultPolicy() Policy {
	return Policy{ModerateAt: 0.5, SevereAt: 0.8}
}

// Validate checks 0 < ModerateAt < SevereAt <= 1.
func (p Policy) Validate() error {
	if math.IsNaN(p.ModerateAt) || math.IsNaN(p.SevereAt) {
		return fmt.Errorf("severity thresholds must be numbers")
	}
	if p.ModerateAt <= 0 || p.ModerateAt >= p.SevereAt || p.SevereAt > 1 {
		return fmt.Errorf("severity thresholds must satisfy 0 < moderate (%g) < severe (%g) <= 1",
			p.ModerateAt, p.SevereAt)
	}
	return nil
}

func (p Policy) Tier(confidence float64) Severity {
	switch {
	case confidence < p.ModerateAt:
		return SeverityMild
	case confidence < p.SevereAt:
		return SeverityModerate
	default:
		return SeveritySevere
	}
}
