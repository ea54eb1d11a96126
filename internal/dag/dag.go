// Package dag records which Starlark modules load which. Nodes are absolute
// module paths; an edge runs from a loaded module to the module that loaded
// it, so the dependents of a changed file are its descendants.
package dag

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type set map[string]struct{}

func (s set) sorted() []string { return slices.Sorted(maps.Keys(s)) }

// Graph is a directed graph of modules carrying a value of type T per
// module. It is not safe for concurrent use.
type Graph[T any] struct {
	values map[string]T
	down   map[string]set // dependency -> dependents
	up     map[string]set // dependent -> dependencies
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		values: make(map[string]T),
		down:   make(map[string]set),
		up:     make(map[string]set),
	}
}

// Add inserts a module or replaces the value of a known one. Edges are kept.
func (g *Graph[T]) Add(id string, value T) {
	if _, ok := g.values[id]; !ok {
		g.down[id] = set{}
		g.up[id] = set{}
	}
	g.values[id] = value
}

// Link records that dependent loads dependency. Both must be in the graph.
func (g *Graph[T]) Link(dependency, dependent string) error {
	for _, id := range []string{dependency, dependent} {
		if !g.Has(id) {
			return fmt.Errorf("module %q is not in the graph", id)
		}
	}
	if dependency == dependent {
		return fmt.Errorf("module %s loads itself", dependency)
	}
	g.down[dependency][dependent] = struct{}{}
	g.up[dependent][dependency] = struct{}{}
	return nil
}

func (g *Graph[T]) Has(id string) bool {
	_, ok := g.values[id]
	return ok
}

// Value returns what was attached to id.
func (g *Graph[T]) Value(id string) (T, bool) {
	v, ok := g.values[id]
	return v, ok
}

// Dependencies returns the modules id loads directly, sorted.
func (g *Graph[T]) Dependencies(id string) []string { return g.up[id].sorted() }

// Dependents returns the modules that load id directly, sorted.
func (g *Graph[T]) Dependents(id string) []string { return g.down[id].sorted() }

// Len returns the number of modules.
func (g *Graph[T]) Len() int { return len(g.values) }

// Edges returns the number of load edges.
func (g *Graph[T]) Edges() int {
	n := 0
	for _, s := range g.down {
		n += len(s)
	}
	return n
}

// Merge adds the modules and edges of other. Values in other win.
func (g *Graph[T]) Merge(other *Graph[T]) {
	for id, v := range other.values {
		g.Add(id, v)
	}
	for from, to := range other.down {
		for id := range to {
			_ = g.Link(from, id)
		}
	}
}

// Order returns the modules with every dependency ahead of its dependents.
// Among modules that are ready at the same time the smaller path comes
// first. A cycle is an error naming the modules left on it.
func (g *Graph[T]) Order() ([]string, error) {
	pending := make(map[string]int, len(g.values))
	var ready []string
	for id, deps := range g.up {
		pending[id] = len(deps)
		if len(deps) == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(g.values))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range g.Dependents(id) {
			pending[next]--
			if pending[next] == 0 {
				i, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, i, next)
			}
		}
	}

	if len(order) < len(g.values) {
		var stuck []string
		for id, n := range pending {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("load cycle among %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

// Affected returns the changed modules known to the graph together with
// every module that loads one of them, directly or not.
func (g *Graph[T]) Affected(changed []string) []string {
	seen := set{}
	for _, id := range changed {
		if g.Has(id) {
			g.walk(id, g.down, seen)
		}
	}
	return seen.sorted()
}

// Upstream returns every module id depends on, directly or not.
func (g *Graph[T]) Upstream(id string) []string {
	seen := set{}
	g.walk(id, g.up, seen)
	delete(seen, id)
	return seen.sorted()
}

func (g *Graph[T]) walk(id string, edges map[string]set, seen set) {
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		for next := range edges[cur] {
			stack = append(stack, next)
		}
	}
}
