// Package pipeline orchestrates the stage graph. The resolver evaluates
// stage readiness against a run context, the scheduler selects runnable
// batches, and the orchestrator dispatches them until the run completes.
package pipeline

import (
	"fmt"
	"sort"

	"diagramforge/internal/stage"
)

// NodeState represents the resolver's understanding of a stage's readiness.
type NodeState string

const (
	NodeStateUnknown  NodeState = "unknown"
	NodeStatePending  NodeState = "pending"
	NodeStateReady    NodeState = "ready"
	NodeStateBlocked  NodeState = "blocked"
	NodeStateComplete NodeState = "complete"
	NodeStateError    NodeState = "error"
)

// Node captures a pipeline stage plus its dependency metadata.
type Node struct {
	ID           stage.ID
	Stage        stage.Stage
	Dependencies []stage.ID
	Dependents   []stage.ID

	State     NodeState
	BlockedBy []stage.ID
	Err       error
}

// Resolver builds and evaluates the stage dependency graph for one run.
type Resolver struct {
	nodes      map[stage.ID]*Node
	orderedIDs []stage.ID
}

// NewResolver constructs a resolver over the given stages. Dependencies must
// reference declared stages and the graph must be acyclic.
func NewResolver(stages ...stage.Stage) (*Resolver, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline: at least one stage is required")
	}
	nodes := make(map[stage.ID]*Node, len(stages))
	ordered := make([]stage.ID, 0, len(stages))
	for _, s := range stages {
		info := s.Info()
		if info.ID == "" {
			return nil, fmt.Errorf("pipeline: stage with empty id")
		}
		if _, exists := nodes[info.ID]; exists {
			return nil, fmt.Errorf("pipeline: duplicate stage %s", info.ID)
		}
		nodes[info.ID] = &Node{
			ID:           info.ID,
			Stage:        s,
			Dependencies: append([]stage.ID{}, info.DependsOn...),
		}
		ordered = append(ordered, info.ID)
	}
	for _, node := range nodes {
		for _, depID := range node.Dependencies {
			dep, ok := nodes[depID]
			if !ok {
				return nil, fmt.Errorf("pipeline: dependency %s referenced by %s not declared", depID, node.ID)
			}
			dep.Dependents = append(dep.Dependents, node.ID)
		}
	}
	for _, node := range nodes {
		if len(node.Dependents) > 1 {
			sort.Slice(node.Dependents, func(i, j int) bool {
				return node.Dependents[i] < node.Dependents[j]
			})
		}
	}
	r := &Resolver{nodes: nodes, orderedIDs: ordered}
	if err := r.checkAcyclic(); err != nil {
		return nil, err
	}
	return r, nil
}

// Nodes returns the nodes in declaration order.
func (r *Resolver) Nodes() []*Node {
	out := make([]*Node, 0, len(r.orderedIDs))
	for _, id := range r.orderedIDs {
		out = append(out, r.nodes[id])
	}
	return out
}

// Node retrieves a specific stage node by ID.
func (r *Resolver) Node(id stage.ID) (*Node, bool) {
	node, ok := r.nodes[id]
	return node, ok
}

// Refresh re-evaluates stage completion and dependency readiness against the
// run context. Nodes already marked errored keep their error.
func (r *Resolver) Refresh(rc *stage.RunContext) error {
	if rc == nil {
		return fmt.Errorf("pipeline: run context is required")
	}
	for _, node := range r.nodes {
		if node.State == NodeStateError {
			continue
		}
		node.BlockedBy = nil
		if node.Stage.IsComplete(rc) {
			node.State = NodeStateComplete
		} else {
			node.State = NodeStatePending
		}
	}
	for _, node := range r.nodes {
		if node.State == NodeStateComplete || node.State == NodeStateError {
			continue
		}
		blockers := r.blockers(node)
		if len(blockers) == 0 {
			node.State = NodeStateReady
		} else {
			node.State = NodeStateBlocked
			node.BlockedBy = blockers
		}
	}
	return nil
}

// Ready returns nodes that are runnable because all dependencies are complete.
func (r *Resolver) Ready() []*Node {
	var ready []*Node
	for _, id := range r.orderedIDs {
		if node := r.nodes[id]; node.State == NodeStateReady {
			ready = append(ready, node)
		}
	}
	return ready
}

// Complete reports whether every stage has completed.
func (r *Resolver) Complete() bool {
	for _, node := range r.nodes {
		if node.State != NodeStateComplete {
			return false
		}
	}
	return true
}

// Failed returns the errored nodes in declaration order.
func (r *Resolver) Failed() []*Node {
	var failed []*Node
	for _, id := range r.orderedIDs {
		if node := r.nodes[id]; node.State == NodeStateError {
			failed = append(failed, node)
		}
	}
	return failed
}

// MarkError records a stage failure so Refresh will not reset it.
func (r *Resolver) MarkError(id stage.ID, err error) {
	if node, ok := r.nodes[id]; ok {
		node.State = NodeStateError
		node.Err = err
	}
}

// Queue returns stages that must run to satisfy the requested targets, with
// dependencies before the stages that require them. Completed stages are
// skipped. No targets means every incomplete stage.
func (r *Resolver) Queue(targets ...stage.ID) ([]*Node, error) {
	if len(targets) == 0 {
		targets = append([]stage.ID{}, r.orderedIDs...)
	}
	visited := make(map[stage.ID]bool, len(targets))
	ordered := make([]*Node, 0, len(r.nodes))
	var visit func(stage.ID) error
	visit = func(id stage.ID) error {
		if visited[id] {
			return nil
		}
		node, ok := r.nodes[id]
		if !ok {
			return fmt.Errorf("pipeline: unknown stage %s", id)
		}
		visited[id] = true
		for _, dep := range node.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		if node.State != NodeStateComplete {
			ordered = append(ordered, node)
		}
		return nil
	}
	for _, id := range targets {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (r *Resolver) blockers(node *Node) []stage.ID {
	if len(node.Dependencies) == 0 {
		return nil
	}
	blockers := make([]stage.ID, 0, len(node.Dependencies))
	for _, depID := range node.Dependencies {
		dep, ok := r.nodes[depID]
		if !ok || dep.State != NodeStateComplete {
			blockers = append(blockers, depID)
		}
	}
	if len(blockers) == 0 {
		return nil
	}
	return blockers
}

func (r *Resolver) checkAcyclic() error {
	const (
		unmarked = 0
		visiting = 1
		done     = 2
	)
	marks := make(map[stage.ID]int, len(r.nodes))
	var visit func(stage.ID) error
	visit = func(id stage.ID) error {
		switch marks[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("pipeline: dependency cycle through %s", id)
		}
		marks[id] = visiting
		for _, dep := range r.nodes[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[id] = done
		return nil
	}
	for _, id := range r.orderedIDs {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
