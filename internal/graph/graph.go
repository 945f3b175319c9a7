// Package graph provides the dependency graph over a run's work items.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the backlog.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates an item depends on an ID that is not in the backlog.
var ErrUnknownDependency = errors.New("unknown dependency")

// ErrDuplicateID indicates two items share an ID.
var ErrDuplicateID = errors.New("duplicate work item id")

// DependencyGraph is a directed acyclic graph of work item dependencies.
// Edges point from an item to the items it depends on.
type DependencyGraph struct {
	ids   []int
	edges map[int][]int
	// reverse maps an item to the items that depend on it.
	reverse map[int][]int
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		edges:    make(map[int][]int),
		reverse:  make(map[int][]int),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from the backlog.
// Returns an error for duplicate IDs, self or unknown dependencies, and cycles.
func Build(items []models.WorkItem) (*DependencyGraph, error) {
	g := New()
	return g, g.Build(items)
}

// Build constructs the dependency graph from a slice of work items.
func (g *DependencyGraph) Build(items []models.WorkItem) error {
	g.debugLog("[graph.Build] building graph from %d items", len(items))

	// First pass: register all items as nodes.
	for _, item := range items {
		if _, exists := g.edges[item.ID]; exists {
			return fmt.Errorf("%w: %d", ErrDuplicateID, item.ID)
		}
		g.edges[item.ID] = nil
		g.ids = append(g.ids, item.ID)
	}
	sort.Ints(g.ids)

	// Second pass: build edges from DependsOn fields.
	for _, item := range items {
		seen := make(map[int]bool)
		for _, depID := range item.DependsOn {
			if depID == item.ID {
				return fmt.Errorf("%w: item %d depends on itself", ErrCycleDetected, item.ID)
			}
			if _, exists := g.edges[depID]; !exists {
				return fmt.Errorf("%w: item %d depends on %d", ErrUnknownDependency, item.ID, depID)
			}
			if seen[depID] {
				continue
			}
			seen[depID] = true
			g.edges[item.ID] = append(g.edges[item.ID], depID)
			g.reverse[depID] = append(g.reverse[depID], item.ID)
		}
	}

	if g.HasCycle() {
		return ErrCycleDetected
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.ids))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[int]int, len(g.ids))

	var visit func(id int) bool
	visit = func(id int) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.ids {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns item IDs so that every dependency precedes its dependents.
// Ties are broken by ascending ID, so the order is deterministic.
func (g *DependencyGraph) TopologicalSort() ([]int, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	visited := make(map[int]bool, len(g.ids))
	result := make([]int, 0, len(g.ids))

	var visit func(id int)
	visit = func(id int) {
		if visited[id] {
			return
		}
		visited[id] = true
		deps := append([]int(nil), g.edges[id]...)
		sort.Ints(deps)
		for _, depID := range deps {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.ids {
		visit(id)
	}
	return result, nil
}

// Size returns the number of items in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.ids)
}

// Dependencies returns the IDs the given item directly depends on.
func (g *DependencyGraph) Dependencies(id int) []int {
	return append([]int(nil), g.edges[id]...)
}

// Dependents returns every item that transitively depends on the given item, ascending.
func (g *DependencyGraph) Dependents(id int) []int {
	seen := make(map[int]bool)
	var walk func(int)
	walk = func(n int) {
		for _, d := range g.reverse[n] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(id)

	out := make([]int, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
