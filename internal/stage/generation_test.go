package stage

import (
	"bytes"
	"context"
	"testing"

	"diagramforge/internal/bundle"
	"diagramforge/internal/capability"
	"diagramforge/internal/cost"
	"diagramforge/internal/policy"
)

func generationInputs(rc *RunContext) {
	rc.Architecture = storageArchitecture()
	rc.Compliance = &policy.Report{Compliant: true, Score: 100, Converged: true, Environment: "dev"}
	rc.Cost = &cost.Report{Environment: "dev"}
}

func TestGenerationBuildsFileSet(t *testing.T) {
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		if req.Capability != capability.GenerateCode {
			t.Fatalf("unexpected capability %s", req.Capability)
		}
		return encode(t, generateResponse{Files: map[string]string{
			"bicep/main.bicep":              "targetScope = 'resourceGroup'",
			"bicep/parameters.dev.json":     "{}",
			"pipelines/azure-pipelines.yml": "trigger: [main]",
			"scripts/deploy.ps1":            "param()",
		}}), nil
	})
	s := NewGeneration(client, newMemory())

	rc := newRun("diagram", "dev")
	generationInputs(rc)
	if err := s.Run(context.Background(), rc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rc.Generated.Len() != 4 {
		t.Fatalf("file count = %d, want 4", rc.Generated.Len())
	}
	data, ok := rc.Generated.File("bicep/main.bicep")
	if !ok {
		t.Fatal("bicep/main.bicep missing")
	}
	if !bytes.Contains(data, []byte("resourceGroup")) {
		t.Errorf("unexpected content %q", data)
	}
}

func TestGenerationRejectsUnsafePaths(t *testing.T) {
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		return encode(t, generateResponse{Files: map[string]string{
			"../escape.bicep": "oops",
		}}), nil
	})
	s := NewGeneration(client, newMemory())

	rc := newRun("diagram", "dev")
	generationInputs(rc)
	err := s.Run(context.Background(), rc)
	if capability.KindOf(err) != capability.KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}
	if rc.Generated != nil {
		t.Error("no files must be recorded for an unsafe response")
	}
}

func TestGenerationEmptyResponseIsMalformed(t *testing.T) {
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		return encode(t, generateResponse{}), nil
	})
	s := NewGeneration(client, newMemory())

	rc := newRun("diagram", "dev")
	generationInputs(rc)
	if err := s.Run(context.Background(), rc); capability.KindOf(err) != capability.KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestGenerationDeterministicArchive(t *testing.T) {
	files := map[string]string{
		"bicep/main.bicep":   "targetScope = 'resourceGroup'",
		"scripts/deploy.ps1": "param()",
	}
	invoke := func(ctx context.Context, req capability.Request) (capability.Response, error) {
		return encode(t, generateResponse{Files: files}), nil
	}

	var archives [][]byte
	for i := 0; i < 2; i++ {
		s := NewGeneration(newTestClient(invoke), newMemory())
		rc := newRun("diagram", "dev")
		generationInputs(rc)
		if err := s.Run(context.Background(), rc); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		var buf bytes.Buffer
		if err := bundle.Write(&buf, rc.Generated); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		archives = append(archives, buf.Bytes())
	}
	if !bytes.Equal(archives[0], archives[1]) {
		t.Error("identical inputs must produce byte-identical archives")
	}
}

func TestGenerationCacheHit(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, req capability.Request) (capability.Response, error) {
		calls++
		return encode(t, generateResponse{Files: map[string]string{"bicep/main.bicep": "x"}}), nil
	})
	store := newMemory()
	s := NewGeneration(client, store)

	for i := 0; i < 2; i++ {
		rc := newRun("diagram", "prod")
		generationInputs(rc)
		if err := s.Run(context.Background(), rc); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if rc.Generated.Len() != 1 {
			t.Fatalf("run %d: file count = %d", i, rc.Generated.Len())
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 capability call, got %d", calls)
	}
}

func TestGenerationRequiresUpstreamResults(t *testing.T) {
	s := NewGeneration(nil, newMemory())
	rc := newRun("diagram", "dev")
	rc.Architecture = storageArchitecture()
	if err := s.Run(context.Background(), rc); err == nil {
		t.Fatal("expected error without a compliance report")
	}
}
