// Package stage implements the four pipeline phases. Each stage consults
// its result cache before invoking its remote capability and records its
// output on the shared run context in DAG order.
package stage

import (
	"context"
	"sync"
	"time"

	"diagramforge/internal/arch"
	"diagramforge/internal/bundle"
	"diagramforge/internal/cache"
	"diagramforge/internal/cost"
	"diagramforge/internal/policy"
)

// ID names a pipeline stage.
type ID string

const (
	Analysis   ID = "analysis"
	Compliance ID = "compliance"
	Cost       ID = "cost"
	Generation ID = "generation"
)

// Info describes a stage's identity and its DAG dependencies.
type Info struct {
	ID        ID
	Name      string
	DependsOn []ID
}

// Stage is one pipeline phase. IsComplete reports whether the stage's
// output is already present on the run context, so the resolver can skip
// completed work; Run produces the output exactly once per run.
type Stage interface {
	Info() Info
	IsComplete(rc *RunContext) bool
	Run(ctx context.Context, rc *RunContext) error
}

// Input is the opaque product of the ingestion boundary.
type Input struct {
	Content     string
	Environment string
	Fast        bool
}

// RunContext carries one pipeline run's accumulating results. Stages write
// only their own output field, and the orchestrator's DAG ordering means a
// stage's inputs are fully written before it starts; the mutex guards only
// the cross-stage counters.
type RunContext struct {
	Key   cache.Key
	Input Input

	Architecture *arch.Architecture
	Compliance   *policy.Report
	Cost         *cost.Report
	Generated    *bundle.FileSet

	mu        sync.Mutex
	cacheHits map[ID]struct{}
}

// NewRunContext builds the context for one pipeline run.
func NewRunContext(input Input) *RunContext {
	return &RunContext{
		Key:   cache.NewKey([]byte(input.Content), input.Environment, input.Fast),
		Input: input,
	}
}

// RecordCacheHit marks a stage's result as served from cache.
func (rc *RunContext) RecordCacheHit(id ID) {
	rc.mu.Lock()
	if rc.cacheHits == nil {
		rc.cacheHits = make(map[ID]struct{})
	}
	rc.cacheHits[id] = struct{}{}
	rc.mu.Unlock()
}

// CacheHits returns how many stage results were served from cache.
func (rc *RunContext) CacheHits() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.cacheHits)
}

// FromCache reports whether the given stage's result came from cache.
func (rc *RunContext) FromCache(id ID) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.cacheHits[id]
	return ok
}

func defaultClock() time.Time {
	return time.Now().UTC()
}
