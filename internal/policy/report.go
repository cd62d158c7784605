package policy

import (
	"time"
)

// Violation is one rule breach reported by the compliance capability.
type Violation struct {
	Severity       Severity `json:"severity"`
	Category       string   `json:"category,omitempty"`
	ComponentID    string   `json:"component_id"`
	RuleID         string   `json:"rule_id"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// AppliedFix records one automated remediation.
type AppliedFix struct {
	RuleID      string `json:"rule_id"`
	ComponentID string `json:"component_id"`
	Description string `json:"description"`
}

// Report is the compliance stage's terminal output.
type Report struct {
	Compliant  bool         `json:"compliant"`
	Score      int          `json:"score"`
	Violations []Violation  `json:"violations,omitempty"`
	Fixes      []AppliedFix `json:"fixes_applied,omitempty"`
	// Converged is false when the fix loop hit its iteration bound while
	// violations remained. The pipeline continues with a warning.
	Converged   bool      `json:"converged"`
	Environment string    `json:"environment"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	clone := r
	if len(r.Violations) > 0 {
		clone.Violations = make([]Violation, len(r.Violations))
		copy(clone.Violations, r.Violations)
	}
	if len(r.Fixes) > 0 {
		clone.Fixes = make([]AppliedFix, len(r.Fixes))
		copy(clone.Fixes, r.Fixes)
	}
	return clone
}

// CriticalCount returns the number of critical violations.
func (r Report) CriticalCount() int {
	count := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			count++
		}
	}
	return count
}
