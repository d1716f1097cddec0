package buildcache

import (
	"errors"
	"sort"

	"github.com/dominikbraun/graph"
)

// depGraph is a directed source -> header graph. Cycles are allowed.
type depGraph struct {
	g graph.Graph[string, string]
}

func newDepGraph() *depGraph {
	return &depGraph{g: graph.New(graph.StringHash, graph.Directed())}
}

func (d *depGraph) addVertex(v string) error {
	if err := d.g.AddVertex(v); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return err
	}

	return nil
}

func (d *depGraph) add(from, to string) error {
	if err := d.addVertex(from); err != nil {
		return err
	}

	if err := d.addVertex(to); err != nil {
		return err
	}

	if err := d.g.AddEdge(from, to); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return err
	}

	return nil
}

// drop removes v and every edge touching it
func (d *depGraph) drop(v string) {
	preds, err := d.g.PredecessorMap()
	if err != nil {
		return
	}

	adj, err := d.g.AdjacencyMap()
	if err != nil {
		return
	}

	for from := range preds[v] {
		_ = d.g.RemoveEdge(from, v)
	}

	for to := range adj[v] {
		_ = d.g.RemoveEdge(v, to)
	}

	_ = d.g.RemoveVertex(v)
}

// direct returns the sorted direct dependencies of v
func (d *depGraph) direct(v string) []string {
	adj, err := d.g.AdjacencyMap()
	if err != nil {
		return nil
	}

	return sortedKeys(adj[v])
}

// reachable walks the graph breadth-first from every root at once and returns each
// non-root vertex exactly once, in visit order
func (d *depGraph) reachable(roots []string) []string {
	adj, err := d.g.AdjacencyMap()
	if err != nil {
		return nil
	}

	visited := make(map[string]bool, len(adj))
	queue := make([]string, 0, len(roots))

	for _, r := range roots {
		if !visited[r] {
			visited[r] = true
			queue = append(queue, r)
		}
	}

	var out []string
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		for _, next := range sortedKeys(adj[v]) {
			if visited[next] {
				continue
			}

			visited[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}

	return out
}

// snapshot returns the edges in persisted form
func (d *depGraph) snapshot() map[string][]string {
	out := make(map[string][]string)

	adj, err := d.g.AdjacencyMap()
	if err != nil {
		return out
	}

	for v, edges := range adj {
		if len(edges) > 0 {
			out[v] = sortedKeys(edges)
		}
	}

	return out
}

func sortedKeys(m map[string]graph.Edge[string]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
