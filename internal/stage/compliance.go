package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"diagramforge/internal/arch"
	"diagramforge/internal/cache"
	"diagramforge/internal/capability"
	"diagramforge/internal/policy"
)

// DefaultMaxIterations bounds the check-fix-recheck loop. Each iteration is
// one compliance check followed by one round of automated fixes; a final
// check after the last round decides convergence.
const DefaultMaxIterations = 2

// ComplianceStage checks the architecture against the environment's policy
// rules and applies automated fixes until compliant or the iteration bound
// is hit. Violations for a rule that was already fixed on a component must
// not reappear; if they do the loop stops and the run is marked
// non-convergent.
type ComplianceStage struct {
	client        *capability.Client
	cache         cache.Cache
	rules         *policy.Set
	maxIterations int
	clock         func() time.Time
}

// ComplianceOption customizes a ComplianceStage.
type ComplianceOption func(*ComplianceStage)

// WithMaxIterations overrides the fix-loop bound.
func WithMaxIterations(n int) ComplianceOption {
	return func(s *ComplianceStage) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithComplianceClock overrides the timestamp source.
func WithComplianceClock(clock func() time.Time) ComplianceOption {
	return func(s *ComplianceStage) {
		s.clock = clock
	}
}

// NewCompliance builds the compliance stage over the given rule set.
func NewCompliance(client *capability.Client, store cache.Cache, rules *policy.Set, opts ...ComplianceOption) *ComplianceStage {
	s := &ComplianceStage{
		client:        client,
		cache:         store,
		rules:         rules,
		maxIterations: DefaultMaxIterations,
		clock:         defaultClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ComplianceStage) Info() Info {
	return Info{ID: Compliance, Name: "Policy Compliance", DependsOn: []ID{Analysis}}
}

func (s *ComplianceStage) IsComplete(rc *RunContext) bool {
	return rc.Compliance != nil
}

type ruleSpec struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Condition   string   `json:"condition"`
	AppliesTo   []string `json:"applies_to,omitempty"`
}

type checkRequest struct {
	Architecture arch.Architecture `json:"architecture"`
	Rules        []ruleSpec        `json:"rules"`
	Environment  string            `json:"environment"`
}

type checkResponse struct {
	Compliant  bool               `json:"compliant"`
	Score      int                `json:"score"`
	Violations []policy.Violation `json:"violations,omitempty"`
}

// complianceEntry is the cached stage result. The fixed architecture is
// stored alongside the report so a cache hit restores both.
type complianceEntry struct {
	Architecture arch.Architecture `json:"architecture"`
	Report       policy.Report     `json:"report"`
}

func (s *ComplianceStage) Run(ctx context.Context, rc *RunContext) error {
	if rc.Architecture == nil {
		return fmt.Errorf("stage: compliance requires an analyzed architecture")
	}

	key := rc.Key.Stage(string(Compliance))
	if data, ok := s.cache.Get(key); ok {
		var cached complianceEntry
		if err := json.Unmarshal(data, &cached); err == nil {
			rc.Architecture = &cached.Architecture
			rc.Compliance = &cached.Report
			rc.RecordCacheHit(Compliance)
			return nil
		}
	}

	rules := s.rules.ForEnvironment(rc.Input.Environment)
	current := rc.Architecture.Clone()
	fixedKeys := make(map[string]struct{})
	var allFixes []policy.AppliedFix

	var report policy.Report
	converged := true
	for iteration := 1; ; iteration++ {
		checked, err := s.check(ctx, current, rules, rc.Input.Environment)
		if err != nil {
			return err
		}
		report = checked
		if len(report.Violations) == 0 {
			report.Compliant = true
			break
		}
		report.Compliant = false
		if iteration > s.maxIterations {
			converged = false
			break
		}
		if reappeared(report.Violations, fixedKeys) {
			converged = false
			break
		}
		fixed, applied := policy.ApplyFixes(current, report.Violations, s.rules)
		if len(applied) == 0 {
			// Nothing automatable is left; re-checking cannot help.
			converged = false
			break
		}
		for _, fix := range applied {
			fixedKeys[fixKey(fix.RuleID, fix.ComponentID)] = struct{}{}
		}
		allFixes = append(allFixes, applied...)
		current = fixed
	}

	report.Fixes = allFixes
	report.Converged = converged
	report.Environment = rc.Input.Environment
	report.CheckedAt = s.clock()
	if report.Compliant && report.Score == 0 {
		report.Score = 100
	}

	if encoded, err := json.Marshal(complianceEntry{Architecture: current, Report: report}); err == nil {
		if err := s.cache.Put(key, encoded); err != nil {
			return fmt.Errorf("stage: caching compliance result: %w", err)
		}
	}
	rc.Architecture = &current
	rc.Compliance = &report
	return nil
}

func (s *ComplianceStage) check(ctx context.Context, a arch.Architecture, rules []policy.Rule, environment string) (policy.Report, error) {
	specs := make([]ruleSpec, len(rules))
	for i, rule := range rules {
		specs[i] = ruleSpec{
			ID:          rule.ID,
			Category:    rule.Category,
			Severity:    string(rule.Severity),
			Description: rule.Description,
			Condition:   rule.Condition,
			AppliesTo:   rule.AppliesTo,
		}
	}
	req, err := capability.NewRequest(capability.CheckCompliance, checkRequest{
		Architecture: a,
		Rules:        specs,
		Environment:  environment,
	})
	if err != nil {
		return policy.Report{}, err
	}
	resp, err := s.client.Invoke(ctx, req)
	if err != nil {
		return policy.Report{}, err
	}
	var payload checkResponse
	if err := resp.Decode(capability.CheckCompliance, &payload); err != nil {
		return policy.Report{}, err
	}
	return policy.Report{
		Compliant:  payload.Compliant,
		Score:      payload.Score,
		Violations: payload.Violations,
	}, nil
}

func reappeared(violations []policy.Violation, fixedKeys map[string]struct{}) bool {
	for _, v := range violations {
		if _, ok := fixedKeys[fixKey(v.RuleID, v.ComponentID)]; ok {
			return true
		}
	}
	return false
}

func fixKey(ruleID, componentID string) string {
	return ruleID + "|" + componentID
}
