package pipeline

import (
	"fmt"

	"diagramforge/internal/stage"
)

// Scheduler selects runnable stage batches from a resolver snapshot,
// enforcing concurrency constraints.
type Scheduler struct {
	resolver *Resolver
}

// NewScheduler wires a Scheduler to a resolver.
func NewScheduler(res *Resolver) (*Scheduler, error) {
	if res == nil {
		return nil, fmt.Errorf("pipeline: scheduler requires a resolver")
	}
	return &Scheduler{resolver: res}, nil
}

// RunnableRequest captures the current runtime state plus scheduling
// constraints.
type RunnableRequest struct {
	// Targets optionally narrows scheduling to a subset of stages. When empty,
	// every incomplete stage is considered.
	Targets []stage.ID
	// BatchSize limits how many runnable stages are returned at once. Values
	// <= 0 mean no limit, subject to MaxParallel.
	BatchSize int
	// MaxParallel caps how many stages may be active at once, including the
	// stages listed in Running. Values <= 0 disable the limit.
	MaxParallel int
	// Running lists stages currently executing so they are not dispatched
	// twice.
	Running []stage.ID
}

// RunnableBatch describes the scheduler's decision.
type RunnableBatch struct {
	Nodes   []*Node
	Skipped map[stage.ID]SkipReason
}

// SkipReason explains why a stage was excluded from the runnable set.
type SkipReason struct {
	Reason SkipReasonCode
	Detail string
}

// SkipReasonCode enumerates scheduler skip reasons.
type SkipReasonCode string

const (
	SkipReasonNotReady    SkipReasonCode = "not-ready"
	SkipReasonConcurrency SkipReasonCode = "concurrency"
	SkipReasonActive      SkipReasonCode = "already-running"
)

// Runnable returns a batch of runnable stages constrained by the request.
func (s *Scheduler) Runnable(req RunnableRequest) (RunnableBatch, error) {
	queue, err := s.resolver.Queue(req.Targets...)
	if err != nil {
		return RunnableBatch{}, err
	}
	running := req.runningSet()
	limit := req.batchLimit(len(queue), len(running))
	result := RunnableBatch{}
	if limit == 0 {
		if req.MaxParallel > 0 && len(running) >= req.MaxParallel {
			if ready := s.resolver.Ready(); len(ready) > 0 {
				result.addSkip(ready[0].ID, SkipReason{
					Reason: SkipReasonConcurrency,
					Detail: fmt.Sprintf("max parallel %d reached", req.MaxParallel),
				})
			}
		}
		return result, nil
	}
	for _, node := range queue {
		if _, active := running[node.ID]; active {
			result.addSkip(node.ID, SkipReason{Reason: SkipReasonActive, Detail: "stage already running"})
			continue
		}
		if node.State != NodeStateReady {
			result.addSkip(node.ID, SkipReason{Reason: SkipReasonNotReady, Detail: string(node.State)})
			continue
		}
		result.Nodes = append(result.Nodes, node)
		if len(result.Nodes) >= limit {
			break
		}
	}
	return result, nil
}

func (req RunnableRequest) runningSet() map[stage.ID]struct{} {
	set := make(map[stage.ID]struct{}, len(req.Running))
	for _, id := range req.Running {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func (req RunnableRequest) batchLimit(queueLen, runningCount int) int {
	limit := req.BatchSize
	if limit <= 0 || limit > queueLen {
		limit = queueLen
	}
	if req.MaxParallel > 0 {
		remaining := req.MaxParallel - runningCount
		if remaining <= 0 {
			return 0
		}
		if limit > remaining {
			limit = remaining
		}
	}
	return limit
}

func (b *RunnableBatch) addSkip(id stage.ID, reason SkipReason) {
	if id == "" {
		return
	}
	if b.Skipped == nil {
		b.Skipped = make(map[stage.ID]SkipReason)
	}
	b.Skipped[id] = reason
}
