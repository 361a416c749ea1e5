// Package depgraph orders module ids by their declared dependencies and
// detects dependency cycles. An edge from A to B means "B depends on A", so
// A appears before B in a topological order.
package depgraph

import (
	"fmt"
	"strings"
)

type (
	// CycleError indicates that the dependency graph contains a cycle.
	CycleError struct {
		// Cycle lists one closed dependency loop, first node repeated at the end:
		// ["a", "b", "a"] reads "a depends on b, b depends on a".
		Cycle []string
	}

	// Graph is a directed graph keyed by module id.
	Graph struct {
		// adjacency maps a node to the nodes that depend on it.
		adjacency map[string][]string
		// preds maps a node to the nodes it depends on.
		preds map[string][]string
		// nodes keeps insertion order so results are deterministic.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		preds:     make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if g.nodeSet[id] {
		return
	}
	g.nodeSet[id] = true
	g.nodes = append(g.nodes, id)
}

// AddDependency records that module depends on dep. Both nodes are added
// implicitly.
func (g *Graph) AddDependency(module, dep string) {
	g.AddNode(dep)
	g.AddNode(module)
	g.adjacency[dep] = append(g.adjacency[dep], module)
	g.preds[module] = append(g.preds[module], dep)
}

// TopologicalSort returns the nodes with every dependency ahead of its
// dependents, using Kahn's algorithm. Nodes at the same level keep insertion
// order. A *CycleError is returned if the graph is not acyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, dependents := range g.adjacency {
		for _, d := range dependents {
			inDegree[d]++
		}
	}

	queue := make([]string, 0)
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, d := range g.adjacency[node] {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, &CycleError{Cycle: g.findCycle(inDegree)}
	}

	return result, nil
}

// findCycle extracts one concrete loop from the nodes Kahn's algorithm could
// not drain. Every such node has at least one undrained dependency, so walking
// dependencies from any of them must eventually revisit a node.
func (g *Graph) findCycle(inDegree map[string]int) []string {
	var start string
	for _, node := range g.nodes {
		if inDegree[node] > 0 {
			start = node
			break
		}
	}

	seen := make(map[string]int)
	var path []string
	current := start
	for {
		if idx, ok := seen[current]; ok {
			loop := append([]string{}, path[idx:]...)
			return append(loop, current)
		}
		seen[current] = len(path)
		path = append(path, current)

		next := ""
		for _, dep := range g.preds[current] {
			if inDegree[dep] > 0 {
				next = dep
				break
			}
		}
		if next == "" {
			// Unreachable for a well-formed graph; report what was walked.
			return path
		}
		current = next
	}
}
