package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"diagramforge/internal/arch"
	"diagramforge/internal/bundle"
	"diagramforge/internal/cache"
	"diagramforge/internal/capability"
	"diagramforge/internal/cost"
	"diagramforge/internal/policy"
)

// GenerationStage turns the finished architecture into infrastructure
// code files. Output is deterministic for a given set of stage inputs:
// the capability is invoked with fully computed results and its files are
// validated and stored in path order.
type GenerationStage struct {
	client *capability.Client
	cache  cache.Cache
}

// NewGeneration builds the generation stage.
func NewGeneration(client *capability.Client, store cache.Cache) *GenerationStage {
	return &GenerationStage{client: client, cache: store}
}

func (s *GenerationStage) Info() Info {
	return Info{ID: Generation, Name: "Code Generation", DependsOn: []ID{Cost}}
}

func (s *GenerationStage) IsComplete(rc *RunContext) bool {
	return rc.Generated != nil
}

type generateRequest struct {
	Architecture arch.Architecture `json:"architecture"`
	Compliance   policy.Report     `json:"compliance"`
	Cost         cost.Report       `json:"cost"`
	Environment  string            `json:"environment"`
	Fast         bool              `json:"fast,omitempty"`
}

type generateResponse struct {
	Files map[string]string `json:"files"`
}

func (s *GenerationStage) Run(ctx context.Context, rc *RunContext) error {
	switch {
	case rc.Architecture == nil:
		return fmt.Errorf("stage: generation requires an analyzed architecture")
	case rc.Compliance == nil:
		return fmt.Errorf("stage: generation requires a compliance report")
	case rc.Cost == nil:
		return fmt.Errorf("stage: generation requires a cost report")
	}

	key := rc.Key.Stage(string(Generation))
	if data, ok := s.cache.Get(key); ok {
		var cached map[string]string
		if err := json.Unmarshal(data, &cached); err == nil {
			if fs, err := fileSetFrom(cached); err == nil {
				rc.Generated = fs
				rc.RecordCacheHit(Generation)
				return nil
			}
		}
	}

	req, err := capability.NewRequest(capability.GenerateCode, generateRequest{
		Architecture: *rc.Architecture,
		Compliance:   *rc.Compliance,
		Cost:         *rc.Cost,
		Environment:  rc.Input.Environment,
		Fast:         rc.Input.Fast,
	})
	if err != nil {
		return err
	}
	resp, err := s.client.Invoke(ctx, req)
	if err != nil {
		return err
	}
	var payload generateResponse
	if err := resp.Decode(capability.GenerateCode, &payload); err != nil {
		return err
	}
	if len(payload.Files) == 0 {
		return capability.Malformed(capability.GenerateCode, "generation returned no files", nil)
	}

	fs, err := fileSetFrom(payload.Files)
	if err != nil {
		return capability.Malformed(capability.GenerateCode, "generation returned an unsafe file path", err)
	}

	if encoded, err := json.Marshal(payload.Files); err == nil {
		if err := s.cache.Put(key, encoded); err != nil {
			return fmt.Errorf("stage: caching generation result: %w", err)
		}
	}
	rc.Generated = fs
	return nil
}

func fileSetFrom(files map[string]string) (*bundle.FileSet, error) {
	fs := bundle.NewFileSet()
	for path, content := range files {
		if err := fs.Add(path, []byte(content)); err != nil {
			return nil, err
		}
	}
	return fs, nil
}
