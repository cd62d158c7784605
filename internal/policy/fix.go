package policy

import (
	"fmt"

	"diagramforge/internal/arch"
)

// ApplyFixes remediates the fixable violations by patching component
// properties per each rule's fix document. It returns a new architecture
// (the input is never mutated) plus the fixes that were applied.
// Violations whose rule is unknown, not fixable, or whose component no
// longer exists are skipped; components are never removed.
func ApplyFixes(a arch.Architecture, violations []Violation, rules *Set) (arch.Architecture, []AppliedFix) {
	fixed := a.Clone()
	var applied []AppliedFix
	for _, violation := range violations {
		rule, ok := rules.Rule(violation.RuleID)
		if !ok || !rule.Fixable || rule.Fix == nil {
			continue
		}
		idx := componentIndex(fixed, violation.ComponentID)
		if idx < 0 {
			continue
		}
		comp := &fixed.Components[idx]
		if comp.Properties == nil {
			comp.Properties = make(map[string]any, len(rule.Fix.Set))
		}
		for key, value := range rule.Fix.Set {
			comp.Properties[key] = value
		}
		description := rule.Fix.Description
		if description == "" {
			description = rule.Description
		}
		applied = append(applied, AppliedFix{
			RuleID:      rule.ID,
			ComponentID: comp.ID,
			Description: description,
		})
		fixed.Metadata.FixesApplied = append(fixed.Metadata.FixesApplied,
			fmt.Sprintf("%s: %s (%s)", comp.Name, description, rule.ID))
	}
	return fixed, applied
}

func componentIndex(a arch.Architecture, id string) int {
	for i, comp := range a.Components {
		if comp.ID == id {
			return i
		}
	}
	return -1
}
