package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"diagramforge/internal/stage"
)

// DefaultMaxParallel caps concurrently running stages within one run.
const DefaultMaxParallel = 2

// DefaultWorkerLimit caps stage executions across all concurrent runs.
const DefaultWorkerLimit = 4

// EventType names an orchestrator lifecycle event.
type EventType string

const (
	EventRunStarted    EventType = "run-started"
	EventStageStarted  EventType = "stage-started"
	EventStageComplete EventType = "stage-complete"
	EventStageFailed   EventType = "stage-failed"
	EventRunComplete   EventType = "run-complete"
	EventRunFailed     EventType = "run-failed"
)

// Event is one observable moment in a run's lifecycle.
type Event struct {
	Type      EventType
	RunID     string
	Stage     stage.ID
	FromCache bool
	Err       error
	At        time.Time
}

// Observer receives lifecycle events. Notify must be safe for concurrent
// use; the orchestrator calls it from stage goroutines.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(event Event) {
	f(event)
}

// Orchestrator executes the stage graph for diagram runs. It is safe for
// concurrent use: independent runs proceed in parallel, sharing a worker
// pool that bounds total stage executions in flight.
type Orchestrator struct {
	stages      []stage.Stage
	maxParallel int
	workers     *semaphore.Weighted
	observers   []Observer
	clock       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMaxParallel caps concurrently running stages within one run.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithWorkerLimit caps stage executions across all concurrent runs.
func WithWorkerLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New builds an orchestrator over the given stages. The stage graph is
// validated once here; each Run gets its own resolver so concurrent runs
// never share node state.
func New(stages []stage.Stage, opts ...Option) (*Orchestrator, error) {
	if _, err := NewResolver(stages...); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		stages:      stages,
		maxParallel: DefaultMaxParallel,
		workers:     semaphore.NewWeighted(DefaultWorkerLimit),
		clock:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes the full stage graph for one input. Cancelling ctx stops new
// stages from being dispatched; stages already in flight run to completion
// so their results still land in the cache.
func (o *Orchestrator) Run(ctx context.Context, input stage.Input) (*Result, error) {
	runID := uuid.NewString()
	rc := stage.NewRunContext(input)
	res, err := NewResolver(o.stages...)
	if err != nil {
		return nil, err
	}
	sched, err := NewScheduler(res)
	if err != nil {
		return nil, err
	}

	started := o.clock()
	o.notify(Event{Type: EventRunStarted, RunID: runID, At: started})

	durations := make(map[stage.ID]time.Duration, len(o.stages))
	var durationsMu sync.Mutex

	for {
		if err := res.Refresh(rc); err != nil {
			return nil, err
		}
		if res.Complete() {
			break
		}
		if err := ctx.Err(); err != nil {
			o.notify(Event{Type: EventRunFailed, RunID: runID, Err: err, At: o.clock()})
			return nil, fmt.Errorf("pipeline: run %s canceled: %w", runID, err)
		}

		batch, err := sched.Runnable(RunnableRequest{MaxParallel: o.maxParallel})
		if err != nil {
			return nil, err
		}
		if len(batch.Nodes) == 0 {
			err := o.stalledError(res)
			o.notify(Event{Type: EventRunFailed, RunID: runID, Err: err, At: o.clock()})
			return nil, err
		}

		g := new(errgroup.Group)
		for _, node := range batch.Nodes {
			node := node
			g.Go(func() error {
				if err := o.workers.Acquire(ctx, 1); err != nil {
					return fmt.Errorf("pipeline: run %s canceled: %w", runID, err)
				}
				defer o.workers.Release(1)

				o.notify(Event{Type: EventStageStarted, RunID: runID, Stage: node.ID, At: o.clock()})
				stageStart := o.clock()
				// WithoutCancel lets an in-flight stage finish and cache its
				// result even when the run is being canceled; the per-call
				// timeout in the capability client still bounds it.
				runErr := node.Stage.Run(context.WithoutCancel(ctx), rc)
				elapsed := o.clock().Sub(stageStart)

				durationsMu.Lock()
				durations[node.ID] = elapsed
				durationsMu.Unlock()

				if runErr != nil {
					wrapped := &StageError{Stage: node.ID, Err: runErr}
					res.MarkError(node.ID, wrapped)
					o.notify(Event{Type: EventStageFailed, RunID: runID, Stage: node.ID, Err: wrapped, At: o.clock()})
					return wrapped
				}
				o.notify(Event{
					Type:      EventStageComplete,
					RunID:     runID,
					Stage:     node.ID,
					FromCache: rc.FromCache(node.ID),
					At:        o.clock(),
				})
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			o.notify(Event{Type: EventRunFailed, RunID: runID, Err: err, At: o.clock()})
			return nil, err
		}
	}

	finished := o.clock()
	outcomes := o.outcomes(res, rc, durations)
	result := &Result{
		Summary: buildSummary(runID, rc, started, finished, outcomes),
		Context: rc,
	}
	o.notify(Event{Type: EventRunComplete, RunID: runID, At: finished})
	return result, nil
}

func (o *Orchestrator) outcomes(res *Resolver, rc *stage.RunContext, durations map[stage.ID]time.Duration) []StageOutcome {
	nodes := res.Nodes()
	out := make([]StageOutcome, 0, len(nodes))
	for _, node := range nodes {
		outcome := StageOutcome{ID: node.ID, Status: StageStatusComplete, FromCache: rc.FromCache(node.ID)}
		if node.State == NodeStateError {
			outcome.Status = StageStatusFailed
			if node.Err != nil {
				outcome.Error = node.Err.Error()
			}
		}
		if d, ok := durations[node.ID]; ok {
			outcome.Duration = d.String()
		}
		out = append(out, outcome)
	}
	return out
}

func (o *Orchestrator) stalledError(res *Resolver) error {
	for _, node := range res.Nodes() {
		if node.State == NodeStateBlocked {
			return fmt.Errorf("pipeline: stage %s blocked by %v with nothing runnable", node.ID, node.BlockedBy)
		}
	}
	return fmt.Errorf("pipeline: no runnable stages")
}

func (o *Orchestrator) notify(event Event) {
	for _, obs := range o.observers {
		obs.Notify(event)
	}
}
