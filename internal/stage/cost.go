package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"diagramforge/internal/arch"
	"diagramforge/internal/cache"
	"diagramforge/internal/capability"
	"diagramforge/internal/cost"
)

// CostStage asks the optimization capability for sizing and savings
// recommendations against the compliance-fixed architecture.
type CostStage struct {
	client *capability.Client
	cache  cache.Cache
	clock  func() time.Time
}

// CostOption customizes a CostStage.
type CostOption func(*CostStage)

// WithCostClock overrides the timestamp source.
func WithCostClock(clock func() time.Time) CostOption {
	return func(s *CostStage) {
		s.clock = clock
	}
}

// NewCost builds the cost stage.
func NewCost(client *capability.Client, store cache.Cache, opts ...CostOption) *CostStage {
	s := &CostStage{
		client: client,
		cache:  store,
		clock:  defaultClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CostStage) Info() Info {
	return Info{ID: Cost, Name: "Cost Optimization", DependsOn: []ID{Compliance}}
}

func (s *CostStage) IsComplete(rc *RunContext) bool {
	return rc.Cost != nil
}

type costRequest struct {
	Architecture arch.Architecture `json:"architecture"`
	Environment  string            `json:"environment"`
}

type costResponse struct {
	Recommendations         []cost.Recommendation `json:"recommendations"`
	EstimatedMonthlySavings string                `json:"estimated_monthly_savings,omitempty"`
	FrameworkApplied        string                `json:"framework_applied,omitempty"`
}

func (s *CostStage) Run(ctx context.Context, rc *RunContext) error {
	if rc.Architecture == nil {
		return fmt.Errorf("stage: cost requires an analyzed architecture")
	}

	key := rc.Key.Stage(string(Cost))
	if data, ok := s.cache.Get(key); ok {
		var cached cost.Report
		if err := json.Unmarshal(data, &cached); err == nil {
			rc.Cost = &cached
			rc.RecordCacheHit(Cost)
			return nil
		}
	}

	req, err := capability.NewRequest(capability.OptimizeCost, costRequest{
		Architecture: *rc.Architecture,
		Environment:  rc.Input.Environment,
	})
	if err != nil {
		return err
	}
	resp, err := s.client.Invoke(ctx, req)
	if err != nil {
		return err
	}
	var payload costResponse
	if err := resp.Decode(capability.OptimizeCost, &payload); err != nil {
		return err
	}

	report := cost.Report{
		Recommendations:         payload.Recommendations,
		EstimatedMonthlySavings: payload.EstimatedMonthlySavings,
		FrameworkApplied:        payload.FrameworkApplied,
		Environment:             rc.Input.Environment,
		GeneratedAt:             s.clock(),
	}
	if report.EstimatedMonthlySavings == "" {
		report.EstimatedMonthlySavings = cost.SumSavings(report.Recommendations)
	}
	if report.FrameworkApplied == "" {
		report.FrameworkApplied = cost.DefaultFramework
	}

	if encoded, err := json.Marshal(report); err == nil {
		if err := s.cache.Put(key, encoded); err != nil {
			return fmt.Errorf("stage: caching cost result: %w", err)
		}
	}
	rc.Cost = &report
	return nil
}
