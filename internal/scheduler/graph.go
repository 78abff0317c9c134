// Package scheduler implements a dependency-ordered task graph (AoT: an
// "atom of thought" decomposition) and the bounded worker pool that drains
// it. Callers supply already-decomposed subtasks with explicit dependency
// ids and file footprints; this package only orders, batches, and dispatches
// them.
package scheduler

import (
	"fmt"
	"sort"
)

// Status is a Node's position in its execution lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Node is one subtask in the graph: its id, the ids it depends on, and the
// file paths it reads and intends to write. Level is computed by the graph,
// never set directly by a caller.
type Node struct {
	ID          string
	Description string
	Deps        []string
	TargetFiles []string
	ReadFiles   []string

	reverse []string
	level   int
	status  Status
}

// Level returns the computed level: 0 if the node has no in-graph
// dependencies, otherwise 1+max(level(dep) for dep in Deps).
func (n *Node) Level() int { return n.level }

// Status returns the node's current lifecycle status.
func (n *Node) Status() Status { return n.status }

// Graph is a DAG over Nodes, keyed by Node.ID. It is not safe for concurrent
// mutation; callers serialize AddTask/ComputeLevels/MarkFailed through a
// single goroutine (typically the one driving the worker Pool).
type Graph struct {
	nodes map[string]*Node
	order []string // insertion order, for deterministic iteration
	level bool     // whether ComputeLevels has been run since the last mutation
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddTask inserts a node; the reverse edges (dependent lists) on its
// dependencies are wired by ComputeLevels. It does not validate that dependencies already
// exist in the graph; a dependency referencing an unknown id is only
// detected at ComputeLevels time.
func (g *Graph) AddTask(n *Node) {
	if n.status == "" {
		n.status = StatusPending
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	g.level = false
}

// Get returns the node with the given id.
func (g *Graph) Get(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Size returns the number of nodes in the graph.
func (g *Graph) Size() int { return len(g.nodes) }

// ComputeLevels assigns Level to every node using a Kahn's-algorithm-style
// topological pass: nodes with no unresolved dependencies are leveled first,
// then nodes whose dependencies are all leveled, and so on. It returns an
// error if the graph contains a cycle (fewer nodes processed than total) or
// references a dependency id that was never added.
func (g *Graph) ComputeLevels() error {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		n := g.nodes[id]
		for _, dep := range n.Deps {
			depNode, ok := g.nodes[dep]
			if !ok {
				return fmt.Errorf("scheduler: task %q depends on unknown task %q", n.ID, dep)
			}
			depNode.reverse = appendUnique(depNode.reverse, n.ID)
		}
		indegree[id] = len(n.Deps)
	}

	levelOf := make(map[string]int, len(g.nodes))
	queue := make([]string, 0)
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
			levelOf[id] = 0
		}
	}

	processed := 0
	for len(queue) > 0 {
		sort.Strings(queue) // deterministic processing order
		id := queue[0]
		queue = queue[1:]
		processed++

		n := g.nodes[id]
		n.level = levelOf[id]
		n.status = StatusReady

		for _, depID := range n.reverse {
			indegree[depID]--
			if indegree[depID] == 0 {
				if levelOf[id]+1 > levelOf[depID] {
					levelOf[depID] = levelOf[id] + 1
				}
				queue = append(queue, depID)
			} else if lv, ok := levelOf[depID]; !ok || levelOf[id]+1 > lv {
				levelOf[depID] = levelOf[id] + 1
			}
		}
	}

	if processed != len(g.nodes) {
		return fmt.Errorf("scheduler: dependency graph contains a cycle (%d of %d tasks resolved)", processed, len(g.nodes))
	}
	g.level = true
	return nil
}

func appendUnique(ss []string, s string) []string {
	for _, existing := range ss {
		if existing == s {
			return ss
		}
	}
	return append(ss, s)
}

// GetExecutionOrder returns nodes grouped into per-level batches; every node
// in batch[k] depends only on nodes in batches 0..k-1, so batches may run
// strictly in order while nodes within a batch may run concurrently.
// It runs ComputeLevels first if levels are not current, returning its error.
func (g *Graph) GetExecutionOrder() ([][]*Node, error) {
	if !g.level {
		if err := g.ComputeLevels(); err != nil {
			return nil, err
		}
	}
	var maxLevel int
	for _, id := range g.order {
		if n := g.nodes[id]; n.level > maxLevel {
			maxLevel = n.level
		}
	}
	batches := make([][]*Node, maxLevel+1)
	for _, id := range g.order {
		n := g.nodes[id]
		batches[n.level] = append(batches[n.level], n)
	}
	for _, batch := range batches {
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
	}
	return batches, nil
}

// GetReadyBatch returns every node whose dependencies have all reached
// StatusDone and which is itself still StatusPending or StatusReady. It is a
// dynamic polling primitive meant to be called repeatedly as a Pool drains
// the graph, rather than a one-shot static plan like GetExecutionOrder.
func (g *Graph) GetReadyBatch() []*Node {
	var ready []*Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.status != StatusPending && n.status != StatusReady {
			continue
		}
		if g.depsSatisfied(n) {
			ready = append(ready, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

func (g *Graph) depsSatisfied(n *Node) bool {
	for _, dep := range n.Deps {
		depNode, ok := g.nodes[dep]
		if !ok || depNode.status != StatusDone {
			return false
		}
	}
	return true
}

// MarkRunning transitions a node to StatusRunning.
func (g *Graph) MarkRunning(id string) {
	if n, ok := g.nodes[id]; ok {
		n.status = StatusRunning
	}
}

// MarkDone transitions a node to StatusDone.
func (g *Graph) MarkDone(id string) {
	if n, ok := g.nodes[id]; ok {
		n.status = StatusDone
	}
}

// MarkFailed transitions a node to StatusFailed and cascades StatusSkipped
// to every node reachable through reverse edges (its transitive dependents),
// except those already StatusDone, StatusRunning, or StatusFailed - a
// dependent already in flight is left to finish on its own rather than
// cancelled out from under its goroutine. It returns the ids actually
// skipped by this call.
func (g *Graph) MarkFailed(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	n.status = StatusFailed

	var skipped []string
	visited := make(map[string]bool)
	var visit func(nodeID string)
	visit = func(nodeID string) {
		node, ok := g.nodes[nodeID]
		if !ok {
			return
		}
		for _, depID := range node.reverse {
			if visited[depID] {
				continue
			}
			visited[depID] = true
			dep := g.nodes[depID]
			if dep.status == StatusDone || dep.status == StatusRunning || dep.status == StatusFailed {
				continue
			}
			dep.status = StatusSkipped
			skipped = append(skipped, depID)
			visit(depID)
		}
	}
	visit(id)
	sort.Strings(skipped)
	return skipped
}

// GetCriticalPath returns the node ids forming the longest dependency chain
// by level, from a level-0 root down to the deepest leaf. When multiple
// chains share the maximum depth, the lexicographically earliest node id is
// preferred at each step for determinism.
func (g *Graph) GetCriticalPath() ([]string, error) {
	if !g.level {
		if err := g.ComputeLevels(); err != nil {
			return nil, err
		}
	}

	var deepest *Node
	for _, id := range g.order {
		n := g.nodes[id]
		if deepest == nil || n.level > deepest.level || (n.level == deepest.level && n.ID < deepest.ID) {
			deepest = n
		}
	}
	if deepest == nil {
		return nil, nil
	}

	path := []string{deepest.ID}
	current := deepest
	for current.level > 0 {
		var best *Node
		for _, dep := range current.Deps {
			depNode := g.nodes[dep]
			if depNode.level == current.level-1 {
				if best == nil || depNode.ID < best.ID {
					best = depNode
				}
			}
		}
		if best == nil {
			break
		}
		path = append([]string{best.ID}, path...)
		current = best
	}
	return path, nil
}
