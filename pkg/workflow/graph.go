// Package workflow holds the pure graph algorithms behind workflow authoring and validation.
package workflow

import (
	"slices"

	"github.com/dukex/notiflow/pkg/models"
)

// Graph is an adjacency view over a workflow's nodes and edges.
type Graph struct {
	nodes []string
	out   map[string][]string
}

// NewGraph builds the adjacency view. Node order follows the input slice.
func NewGraph(nodes []*models.WorkflowNode, edges []*models.WorkflowEdge) *Graph {
	g := &Graph{
		nodes: make([]string, 0, len(nodes)),
		out:   make(map[string][]string, len(nodes)),
	}

	for _, node := range nodes {
		g.nodes = append(g.nodes, node.ID)
	}

	for _, edge := range edges {
		g.out[edge.FromNodeID] = append(g.out[edge.FromNodeID], edge.ToNodeID)
	}

	return g
}

// FromWorkflow builds the graph of a loaded workflow.
func FromWorkflow(workflow *models.Workflow) *Graph {
	return NewGraph(workflow.Nodes, workflow.Edges)
}

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id string) bool {
	return slices.Contains(g.nodes, id)
}

// HasEdge reports whether the edge from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	return slices.Contains(g.out[from], to)
}

// Successors returns the direct successors of id.
func (g *Graph) Successors(id string) []string {
	return g.out[id]
}

// Reaches reports whether target is reachable from start, start included.
func (g *Graph) Reaches(start, target string) bool {
	_, ok := g.Reachable(start)[target]

	return ok
}

// WouldCycle reports whether adding from -> to closes a cycle. A self loop always does.
func (g *Graph) WouldCycle(from, to string) bool {
	return from == to || g.Reaches(to, from)
}

// Reachable returns the set of nodes reachable from start by breadth-first search, start included.
func (g *Graph) Reachable(start string) map[string]struct{} {
	seen := map[string]struct{}{start: {}}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.out[current] {
			if _, ok := seen[next]; ok {
				continue
			}

			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}

	return seen
}

// Unreachable lists, in node order, the nodes that cannot be reached from entry.
func (g *Graph) Unreachable(entry string) []string {
	reachable := g.Reachable(entry)
	missing := make([]string, 0)

	for _, id := range g.nodes {
		if _, ok := reachable[id]; !ok {
			missing = append(missing, id)
		}
	}

	return missing
}

// FindCycle returns the nodes of one cycle, first node repeated at the end,
// or nil when the graph is acyclic.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(g.nodes))
	stack := make([]string, 0)

	var visit func(id string) []string

	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)

		for _, next := range g.out[id] {
			switch state[next] {
			case visiting:
				start := slices.Index(stack, next)
				cycle := slices.Clone(stack[start:])

				return append(cycle, next)
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done

		return nil
	}

	for _, id := range g.nodes {
		if state[id] != unvisited {
			continue
		}

		if cycle := visit(id); cycle != nil {
			return cycle
		}
	}

	return nil
}
