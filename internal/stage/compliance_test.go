package stage

import (
	"context"
	"encoding/json"
	"testing"

	"diagramforge/internal/arch"
	"diagramforge/internal/capability"
	"diagramforge/internal/policy"
)

func defaultRules(t *testing.T) *policy.Set {
	t.Helper()
	rules, err := policy.Default()
	if err != nil {
		t.Fatalf("default rules: %v", err)
	}
	return rules
}

func storageArchitecture() *arch.Architecture {
	return &arch.Architecture{
		Components: []arch.Component{
			{ID: "comp-1", Name: "data", ServiceType: "storage account", Category: "storage"},
			{ID: "comp-2", Name: "api", ServiceType: "app service", Category: "compute"},
		},
		Metadata: arch.Metadata{Environment: "dev", TotalComponents: 2},
	}
}

func violation(ruleID, componentID string) policy.Violation {
	return policy.Violation{
		Severity:    policy.SeverityCritical,
		RuleID:      ruleID,
		ComponentID: componentID,
		Description: "rule " + ruleID + " violated",
	}
}

func TestComplianceCompliantOnFirstCheck(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		calls++
		return encode(t, checkResponse{Compliant: true}), nil
	})
	s := NewCompliance(client, newMemory(), defaultRules(t))

	rc := newRun("diagram", "dev")
	rc.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), rc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single check, got %d", calls)
	}
	report := rc.Compliance
	if !report.Compliant || !report.Converged {
		t.Errorf("report = %+v, want compliant and converged", report)
	}
	if report.Score != 100 {
		t.Errorf("score = %d, want default 100", report.Score)
	}
	if len(report.Fixes) != 0 {
		t.Errorf("unexpected fixes: %v", report.Fixes)
	}
}

func TestComplianceFixLoopConverges(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		calls++
		var check checkRequest
		if err := json.Unmarshal(req.Payload, &check); err != nil {
			t.Fatalf("decode check request: %v", err)
		}
		storage, ok := check.Architecture.Component("comp-1")
		if !ok {
			t.Fatal("storage component missing from check request")
		}
		if encrypted, _ := storage.Properties["encryption_at_rest"].(bool); !encrypted {
			return encode(t, checkResponse{
				Score:      60,
				Violations: []policy.Violation{violation("SEC-001", "comp-1")},
			}), nil
		}
		return encode(t, checkResponse{Compliant: true, Score: 95}), nil
	})
	s := NewCompliance(client, newMemory(), defaultRules(t))

	rc := newRun("diagram", "dev")
	rc.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), rc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected check, fix, re-check, got %d checks", calls)
	}
	report := rc.Compliance
	if !report.Compliant || !report.Converged {
		t.Fatalf("report = %+v, want compliant after one fix round", report)
	}
	if report.Score != 95 {
		t.Errorf("score = %d, want 95", report.Score)
	}
	if len(report.Fixes) != 1 || report.Fixes[0].RuleID != "SEC-001" {
		t.Fatalf("fixes = %v, want the SEC-001 fix", report.Fixes)
	}
	storage, _ := rc.Architecture.Component("comp-1")
	if encrypted, _ := storage.Properties["encryption_at_rest"].(bool); !encrypted {
		t.Error("fix was not applied to the returned architecture")
	}
	if len(rc.Architecture.Metadata.FixesApplied) != 1 {
		t.Errorf("fix not recorded in metadata: %v", rc.Architecture.Metadata.FixesApplied)
	}
}

func TestComplianceIterationBound(t *testing.T) {
	// Each check reports a fresh fixable violation, so the loop can never
	// finish on its own and must stop at the bound.
	rotation := []string{"SEC-001", "SEC-002", "GOV-001", "AVL-001"}
	calls := 0
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		ruleID := rotation[calls%len(rotation)]
		calls++
		return encode(t, checkResponse{
			Score:      40,
			Violations: []policy.Violation{violation(ruleID, "comp-2")},
		}), nil
	})
	s := NewCompliance(client, newMemory(), defaultRules(t))

	rc := newRun("diagram", "dev")
	rc.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), rc); err != nil {
		t.Fatalf("run must not fail on non-convergence: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 checks for a bound of 2 fix rounds, got %d", calls)
	}
	report := rc.Compliance
	if report.Converged {
		t.Error("expected non-convergent report")
	}
	if report.Compliant {
		t.Error("expected outstanding violations")
	}
	if len(report.Violations) == 0 {
		t.Error("outstanding violations must be reported")
	}
	if len(report.Fixes) != 2 {
		t.Errorf("fixes = %v, want 2 applied rounds", report.Fixes)
	}
}

func TestComplianceReappearingViolationStopsEarly(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		calls++
		return encode(t, checkResponse{
			Score:      50,
			Violations: []policy.Violation{violation("SEC-001", "comp-1")},
		}), nil
	})
	s := NewCompliance(client, newMemory(), defaultRules(t))

	rc := newRun("diagram", "dev")
	rc.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), rc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the loop to stop when a fixed violation reappears, got %d checks", calls)
	}
	if rc.Compliance.Converged {
		t.Error("expected non-convergent report")
	}
}

func TestComplianceUnfixableViolationStops(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		calls++
		return encode(t, checkResponse{
			Score:      70,
			Violations: []policy.Violation{violation("NET-002", "comp-2")},
		}), nil
	})
	s := NewCompliance(client, newMemory(), defaultRules(t))

	rc := newRun("diagram", "dev")
	rc.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), rc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("no fix exists for NET-002, expected a single check, got %d", calls)
	}
	if rc.Compliance.Converged || rc.Compliance.Compliant {
		t.Errorf("report = %+v, want non-convergent with violations", rc.Compliance)
	}
}

func TestComplianceCacheRestoresFixedArchitecture(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		calls++
		var check checkRequest
		if err := json.Unmarshal(req.Payload, &check); err != nil {
			t.Fatalf("decode check request: %v", err)
		}
		storage, _ := check.Architecture.Component("comp-1")
		if encrypted, _ := storage.Properties["encryption_at_rest"].(bool); !encrypted {
			return encode(t, checkResponse{
				Violations: []policy.Violation{violation("SEC-001", "comp-1")},
			}), nil
		}
		return encode(t, checkResponse{Compliant: true, Score: 95}), nil
	})
	store := newMemory()
	s := NewCompliance(client, store, defaultRules(t))

	first := newRun("diagram", "dev")
	first.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), first); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := newRun("diagram", "dev")
	second.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), second); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("second run must be served from cache, got %d checks", calls)
	}
	if second.CacheHits() != 1 {
		t.Errorf("cache hits = %d, want 1", second.CacheHits())
	}
	storage, _ := second.Architecture.Component("comp-1")
	if encrypted, _ := storage.Properties["encryption_at_rest"].(bool); !encrypted {
		t.Error("cached architecture lost the applied fix")
	}
	if !second.Compliance.Compliant {
		t.Error("cached report lost compliance state")
	}
}

func TestComplianceRequiresArchitecture(t *testing.T) {
	s := NewCompliance(nil, newMemory(), defaultRules(t))
	if err := s.Run(context.Background(), newRun("diagram", "dev")); err == nil {
		t.Fatal("expected error without an architecture")
	}
}
