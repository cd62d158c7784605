package pipeline

import (
	"time"

	"diagramforge/internal/stage"
)

// StageStatus is the terminal status of one stage within a run.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageOutcome records how one stage finished.
type StageOutcome struct {
	ID        stage.ID    `json:"id"`
	Status    StageStatus `json:"status"`
	Duration  string      `json:"duration,omitempty"`
	Error     string      `json:"error,omitempty"`
	FromCache bool        `json:"from_cache,omitempty"`
}

// Summary aggregates the facts of a finished run. Every figure is computed
// from the run's actual results, never synthesized.
type Summary struct {
	RunID       string         `json:"run_id"`
	Key         string         `json:"key"`
	Environment string         `json:"environment"`
	Fast        bool           `json:"fast,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Duration    time.Duration  `json:"-"`
	Stages      []StageOutcome `json:"stages"`
	CacheHits   int            `json:"cache_hits"`

	ComponentCount          int     `json:"component_count"`
	ServiceCount            int     `json:"service_count"`
	AccuracyScore           float64 `json:"accuracy_score,omitempty"`
	Compliant               bool    `json:"compliant"`
	Converged               bool    `json:"converged"`
	ComplianceScore         int     `json:"compliance_score"`
	FixesApplied            int     `json:"fixes_applied"`
	OutstandingViolations   int     `json:"outstanding_violations"`
	RecommendationCount     int     `json:"recommendation_count"`
	EstimatedMonthlySavings string  `json:"estimated_monthly_savings,omitempty"`
	FrameworkApplied        string  `json:"framework_applied,omitempty"`
	FileCount               int     `json:"file_count"`
}

// Result is a completed pipeline run.
type Result struct {
	Summary Summary
	Context *stage.RunContext
}

func buildSummary(runID string, rc *stage.RunContext, started, finished time.Time, outcomes []StageOutcome) Summary {
	s := Summary{
		RunID:       runID,
		Key:         rc.Key.String(),
		Environment: rc.Input.Environment,
		Fast:        rc.Input.Fast,
		StartedAt:   started,
		FinishedAt:  finished,
		Duration:    finished.Sub(started),
		Stages:      outcomes,
		CacheHits:   rc.CacheHits(),
	}
	if rc.Architecture != nil {
		s.ComponentCount = len(rc.Architecture.Components)
		s.ServiceCount = len(rc.Architecture.ServiceTypes())
		s.AccuracyScore = rc.Architecture.Metadata.AccuracyScore
	}
	if rc.Compliance != nil {
		s.Compliant = rc.Compliance.Compliant
		s.Converged = rc.Compliance.Converged
		s.ComplianceScore = rc.Compliance.Score
		s.FixesApplied = len(rc.Compliance.Fixes)
		s.OutstandingViolations = len(rc.Compliance.Violations)
	}
	if rc.Cost != nil {
		s.RecommendationCount = len(rc.Cost.Recommendations)
		s.EstimatedMonthlySavings = rc.Cost.EstimatedMonthlySavings
		s.FrameworkApplied = rc.Cost.FrameworkApplied
	}
	if rc.Generated != nil {
		s.FileCount = rc.Generated.Len()
	}
	return s
}
