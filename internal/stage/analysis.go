package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"diagramforge/internal/arch"
	"diagramforge/internal/cache"
	"diagramforge/internal/capability"
)

// AnalysisStage turns raw diagram content into a normalized architecture.
// The remote capability does the recognition; normalization, duplicate
// merging and domain rejection mapping happen here.
type AnalysisStage struct {
	client *capability.Client
	cache  cache.Cache
	clock  func() time.Time
}

// AnalysisOption customizes an AnalysisStage.
type AnalysisOption func(*AnalysisStage)

// WithAnalysisClock overrides the timestamp source. Tests use this to pin
// Metadata.GeneratedAt.
func WithAnalysisClock(clock func() time.Time) AnalysisOption {
	return func(s *AnalysisStage) {
		s.clock = clock
	}
}

// NewAnalysis builds the analysis stage.
func NewAnalysis(client *capability.Client, store cache.Cache, opts ...AnalysisOption) *AnalysisStage {
	s := &AnalysisStage{
		client: client,
		cache:  store,
		clock:  defaultClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AnalysisStage) Info() Info {
	return Info{ID: Analysis, Name: "Diagram Analysis"}
}

func (s *AnalysisStage) IsComplete(rc *RunContext) bool {
	return rc.Architecture != nil
}

type analyzeRequest struct {
	Content     string `json:"content"`
	Environment string `json:"environment"`
	Fast        bool   `json:"fast,omitempty"`
}

type analyzeResponse struct {
	Error             string              `json:"error,omitempty"`
	Message           string              `json:"message,omitempty"`
	DetectedPlatforms []string            `json:"detected_platforms,omitempty"`
	DetectedServices  []string            `json:"detected_services,omitempty"`
	Components        []arch.Component    `json:"components"`
	Relationships     []arch.Relationship `json:"relationships,omitempty"`
}

func (s *AnalysisStage) Run(ctx context.Context, rc *RunContext) error {
	key := rc.Key.Stage(string(Analysis))
	if data, ok := s.cache.Get(key); ok {
		var cached arch.Architecture
		if err := json.Unmarshal(data, &cached); err == nil {
			rc.Architecture = &cached
			rc.RecordCacheHit(Analysis)
			return nil
		}
		// Undecodable entry counts as a miss and gets overwritten below.
	}

	req, err := capability.NewRequest(capability.Analyze, analyzeRequest{
		Content:     rc.Input.Content,
		Environment: rc.Input.Environment,
		Fast:        rc.Input.Fast,
	})
	if err != nil {
		return err
	}
	resp, err := s.client.Invoke(ctx, req)
	if err != nil {
		var capErr *capability.Error
		if errors.As(err, &capErr) && capErr.Kind == capability.KindRejected {
			return &DomainRejectionError{Message: capErr.Detail}
		}
		return err
	}

	var payload analyzeResponse
	if err := resp.Decode(capability.Analyze, &payload); err != nil {
		return err
	}
	if payload.Error != "" {
		return &DomainRejectionError{
			DetectedPlatforms: payload.DetectedPlatforms,
			Services:          payload.DetectedServices,
			Message:           payload.Message,
		}
	}
	if len(payload.Components) == 0 {
		return capability.Malformed(capability.Analyze, "analysis returned no components", nil)
	}

	raw := arch.Architecture{
		Components:    payload.Components,
		Relationships: payload.Relationships,
		Metadata: arch.Metadata{
			Environment: rc.Input.Environment,
			GeneratedAt: s.clock(),
		},
	}
	for i := range raw.Components {
		if raw.Components[i].ID == "" {
			raw.Components[i].ID = fmt.Sprintf("comp-%d", i+1)
		}
	}
	normalized := arch.Normalize(raw)
	if err := normalized.Validate(); err != nil {
		return capability.Malformed(capability.Analyze, "analysis produced an invalid architecture", err)
	}

	if encoded, err := json.Marshal(normalized); err == nil {
		if err := s.cache.Put(key, encoded); err != nil {
			return fmt.Errorf("stage: caching analysis result: %w", err)
		}
	}
	rc.Architecture = &normalized
	return nil
}
