package pipeline

import (
	"context"
	"testing"

	"diagramforge/internal/stage"
)

func refreshedScheduler(t *testing.T, stages ...stage.Stage) (*Scheduler, *Resolver, *stage.RunContext) {
	t.Helper()
	res, err := NewResolver(stages...)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	sched, err := NewScheduler(res)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	rc := testRun()
	if err := res.Refresh(rc); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return sched, res, rc
}

func TestSchedulerReturnsOnlyReadyStages(t *testing.T) {
	a := newStub("a")
	b := newStub("b", "a")
	sched, _, _ := refreshedScheduler(t, a, b)

	batch, err := sched.Runnable(RunnableRequest{})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Nodes) != 1 || batch.Nodes[0].ID != "a" {
		t.Fatalf("batch = %v, want only a", batch.Nodes)
	}
	skip, ok := batch.Skipped["b"]
	if !ok || skip.Reason != SkipReasonNotReady {
		t.Errorf("skip for b = %+v, want not-ready", skip)
	}
}

func TestSchedulerIndependentStagesBatchTogether(t *testing.T) {
	a := newStub("a")
	b := newStub("b")
	sched, _, _ := refreshedScheduler(t, a, b)

	batch, err := sched.Runnable(RunnableRequest{})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Nodes) != 2 {
		t.Fatalf("batch = %v, want both independent stages", batch.Nodes)
	}
}

func TestSchedulerMaxParallel(t *testing.T) {
	a := newStub("a")
	b := newStub("b")
	sched, _, _ := refreshedScheduler(t, a, b)

	batch, err := sched.Runnable(RunnableRequest{MaxParallel: 1})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Nodes) != 1 {
		t.Fatalf("batch size = %d, want 1", len(batch.Nodes))
	}

	batch, err = sched.Runnable(RunnableRequest{MaxParallel: 1, Running: []stage.ID{"a"}})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Nodes) != 0 {
		t.Fatalf("batch = %v, want empty at capacity", batch.Nodes)
	}
	if skip, ok := batch.Skipped["a"]; !ok || skip.Reason != SkipReasonConcurrency {
		t.Errorf("skip = %+v, want concurrency", batch.Skipped)
	}
}

func TestSchedulerSkipsRunningStage(t *testing.T) {
	a := newStub("a")
	b := newStub("b")
	sched, _, _ := refreshedScheduler(t, a, b)

	batch, err := sched.Runnable(RunnableRequest{Running: []stage.ID{"a"}})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Nodes) != 1 || batch.Nodes[0].ID != "b" {
		t.Fatalf("batch = %v, want only b", batch.Nodes)
	}
	if skip, ok := batch.Skipped["a"]; !ok || skip.Reason != SkipReasonActive {
		t.Errorf("skip = %+v, want already-running", batch.Skipped)
	}
}

func TestSchedulerSkipsCompletedStages(t *testing.T) {
	a := newStub("a")
	b := newStub("b", "a")
	sched, res, rc := refreshedScheduler(t, a, b)

	if err := a.Run(context.Background(), rc); err != nil {
		t.Fatalf("run a: %v", err)
	}
	if err := res.Refresh(rc); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	batch, err := sched.Runnable(RunnableRequest{})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Nodes) != 1 || batch.Nodes[0].ID != "b" {
		t.Fatalf("batch = %v, want only b", batch.Nodes)
	}
}
