// Package policy models the externally maintained rule documents the
// compliance stage checks architectures against, and applies automated
// fixes for the rules that declare one.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity grades a violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Fix describes the automated remediation for a fixable rule: property
// values to set on the offending component.
type Fix struct {
	Description string         `yaml:"description" json:"description"`
	Set         map[string]any `yaml:"set" json:"set"`
}

// Rule is one policy document entry. Condition text is opaque to the
// pipeline; it is forwarded to the compliance capability verbatim.
type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Category    string   `yaml:"category" json:"category"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Description string   `yaml:"description" json:"description"`
	Condition   string   `yaml:"condition" json:"condition"`
	// AppliesTo limits the rule to canonical service types; empty means all.
	AppliesTo []string `yaml:"applies_to,omitempty" json:"applies_to,omitempty"`
	// Environments limits the rule to deployment environments; empty means all.
	Environments []string `yaml:"environments,omitempty" json:"environments,omitempty"`
	Fixable      bool     `yaml:"fixable,omitempty" json:"fixable,omitempty"`
	Fix          *Fix     `yaml:"fix,omitempty" json:"fix,omitempty"`
}

// Validate ensures the rule document is usable.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("policy: rule id is required")
	}
	switch r.Severity {
	case SeverityCritical, SeverityWarning:
	default:
		return fmt.Errorf("policy: rule %s has unknown severity %q", r.ID, r.Severity)
	}
	if r.Fixable && (r.Fix == nil || len(r.Fix.Set) == 0) {
		return fmt.Errorf("policy: rule %s is fixable but declares no fix", r.ID)
	}
	return nil
}

// AppliesToEnvironment reports whether the rule is active for an environment.
func (r Rule) AppliesToEnvironment(environment string) bool {
	if len(r.Environments) == 0 {
		return true
	}
	environment = strings.ToLower(strings.TrimSpace(environment))
	for _, env := range r.Environments {
		if strings.ToLower(env) == environment {
			return true
		}
	}
	return false
}

// Set is a loaded collection of rules.
type Set struct {
	rules map[string]Rule
	order []string
}

// NewSet indexes rules by ID, rejecting duplicates.
func NewSet(rules []Rule) (*Set, error) {
	set := &Set{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if _, exists := set.rules[rule.ID]; exists {
			return nil, fmt.Errorf("policy: duplicate rule id %s", rule.ID)
		}
		set.rules[rule.ID] = rule
		set.order = append(set.order, rule.ID)
	}
	return set, nil
}

// Rule retrieves a rule by ID.
func (s *Set) Rule(id string) (Rule, bool) {
	rule, ok := s.rules[id]
	return rule, ok
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// ForEnvironment returns the rules active for an environment, in load order.
func (s *Set) ForEnvironment(environment string) []Rule {
	out := make([]Rule, 0, len(s.order))
	for _, id := range s.order {
		rule := s.rules[id]
		if rule.AppliesToEnvironment(environment) {
			out = append(out, rule)
		}
	}
	return out
}

// Categories returns the sorted set of rule categories.
func (s *Set) Categories() []string {
	seen := map[string]struct{}{}
	for _, rule := range s.rules {
		if rule.Category != "" {
			seen[rule.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

type ruleDocument struct {
	Rules []Rule `yaml:"rules"`
}

// LoadDir reads every .yaml/.yml rule document under dir into one Set.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("policy: read rules dir: %w", err)
	}
	var rules []Rule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("policy: read %s: %w", entry.Name(), err)
		}
		var doc ruleDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("policy: parse %s: %w", entry.Name(), err)
		}
		rules = append(rules, doc.Rules...)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("policy: no rule documents found in %s", dir)
	}
	return NewSet(rules)
}
