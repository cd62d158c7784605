// Package cost models the optimization report the cost stage computes from
// the post-fix architecture and the environment's sizing policy.
package cost

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultFramework names the sizing framework the capability applies.
const DefaultFramework = "Well-Architected Framework - Cost Optimization"

// Recommendation is one sizing or pricing suggestion for a component.
type Recommendation struct {
	Type        string `json:"type"`
	ComponentID string `json:"component_id"`
	Component   string `json:"component,omitempty"`
	Description string `json:"description"`
	// EstimatedMonthlySavings is kept verbatim as the capability reports
	// it, e.g. "€50-150".
	EstimatedMonthlySavings string `json:"estimated_monthly_savings,omitempty"`
}

// Report is the cost stage's output.
type Report struct {
	Recommendations []Recommendation `json:"recommendations"`
	// EstimatedMonthlySavings aggregates the per-recommendation ranges.
	EstimatedMonthlySavings string    `json:"estimated_monthly_savings"`
	FrameworkApplied        string    `json:"framework_applied"`
	Environment             string    `json:"environment"`
	GeneratedAt             time.Time `json:"generated_at"`
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	clone := r
	if len(r.Recommendations) > 0 {
		clone.Recommendations = make([]Recommendation, len(r.Recommendations))
		copy(clone.Recommendations, r.Recommendations)
	}
	return clone
}

var savingsPattern = regexp.MustCompile(`^([^\d\s]*)\s*(\d+(?:\.\d+)?)(?:\s*-\s*(\d+(?:\.\d+)?))?$`)

// Range is a parsed savings estimate. Scalar values have Low == High.
type Range struct {
	Currency string
	Low      float64
	High     float64
}

// Midpoint returns the center of the range, used only for aggregation.
func (r Range) Midpoint() float64 {
	return (r.Low + r.High) / 2
}

// String renders the range back into the report format.
func (r Range) String() string {
	if r.Low == r.High {
		return fmt.Sprintf("%s%.0f", r.Currency, r.Low)
	}
	return fmt.Sprintf("%s%.0f-%.0f", r.Currency, r.Low, r.High)
}

// ParseRange parses a savings string like "€150-300" or "€75". The original
// strings stay authoritative; parsing exists only to sum them.
func ParseRange(s string) (Range, error) {
	match := savingsPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return Range{}, fmt.Errorf("cost: unparseable savings %q", s)
	}
	low, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return Range{}, fmt.Errorf("cost: unparseable savings %q: %w", s, err)
	}
	high := low
	if match[3] != "" {
		if high, err = strconv.ParseFloat(match[3], 64); err != nil {
			return Range{}, fmt.Errorf("cost: unparseable savings %q: %w", s, err)
		}
	}
	return Range{Currency: match[1], Low: low, High: high}, nil
}

// SumSavings totals the parseable per-recommendation ranges into one range.
// Recommendations without a savings estimate are skipped; an empty result
// means nothing was quantified.
func SumSavings(recommendations []Recommendation) string {
	var total Range
	counted := 0
	for _, rec := range recommendations {
		if rec.EstimatedMonthlySavings == "" {
			continue
		}
		parsed, err := ParseRange(rec.EstimatedMonthlySavings)
		if err != nil {
			continue
		}
		if total.Currency == "" {
			total.Currency = parsed.Currency
		}
		total.Low += parsed.Low
		total.High += parsed.High
		counted++
	}
	if counted == 0 {
		return ""
	}
	return total.String()
}
