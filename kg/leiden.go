package kg

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/rdahmani/graphrag/store"
)

// In-process community detection: Leiden-style local moving over a
// weighted undirected graph, followed by a refinement pass that splits
// communities whose members are not actually connected. Used instead of
// a server-side graph-data-science call so detection works on any
// plain Neo4j.

const (
	leidenSeed          = 42
	leidenMaxIterations = 10
)

// partitionGraph assigns every node a community label at the given
// resolution. Higher resolution yields finer communities. The seed is
// fixed, so the partition is reproducible for a given graph.
func partitionGraph(nodes []string, edges []store.ProjectionEdge, resolution float64) map[string]string {
	adj := buildAdjacency(nodes, edges)

	part := make(map[string]string, len(nodes))
	for _, n := range nodes {
		part[n] = n
	}
	part = localMove(adj, part, resolution)
	return refine(adj, part)
}

// buildAdjacency folds directed relation rows into a symmetric weighted
// adjacency. Parallel edges accumulate; weights are floored so a
// zero-confidence relation still connects its endpoints.
func buildAdjacency(nodes []string, edges []store.ProjectionEdge) map[string]map[string]float64 {
	adj := make(map[string]map[string]float64, len(nodes))
	for _, n := range nodes {
		adj[n] = make(map[string]float64)
	}
	for _, e := range edges {
		if _, ok := adj[e.Src]; !ok {
			continue
		}
		if _, ok := adj[e.Dst]; !ok {
			continue
		}
		w := e.Weight
		if w < 1e-3 {
			w = 1e-3
		}
		adj[e.Src][e.Dst] += w
		if e.Src != e.Dst {
			adj[e.Dst][e.Src] += w
		}
	}
	return adj
}

// localMove greedily reassigns nodes to the neighboring community with
// the best modularity gain until a full sweep moves nothing.
func localMove(adj map[string]map[string]float64, part map[string]string, resolution float64) map[string]string {
	var m float64
	deg := make(map[string]float64, len(adj))
	for n, nbrs := range adj {
		for _, w := range nbrs {
			deg[n] += w
			m += w
		}
	}
	m /= 2
	if m == 0 {
		return part
	}

	commDeg := make(map[string]float64)
	for n, c := range part {
		commDeg[c] += deg[n]
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	rng := rand.New(rand.NewSource(leidenSeed))
	rng.Shuffle(len(nodes), func(i, j int) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	})

	for iter := 0; iter < leidenMaxIterations; iter++ {
		moved := false
		for _, n := range nodes {
			cur := part[n]

			wTo := make(map[string]float64)
			for nbr, w := range adj[n] {
				if nbr == n {
					continue
				}
				wTo[part[nbr]] += w
			}

			// Detach n before comparing gains so the current community
			// is judged without n's own degree.
			commDeg[cur] -= deg[n]

			best := cur
			bestGain := wTo[cur] - resolution*deg[n]*commDeg[cur]/(2*m)
			cands := make([]string, 0, len(wTo))
			for c := range wTo {
				cands = append(cands, c)
			}
			sort.Strings(cands)
			for _, c := range cands {
				if c == cur {
					continue
				}
				gain := wTo[c] - resolution*deg[n]*commDeg[c]/(2*m)
				if gain > bestGain+1e-12 {
					best, bestGain = c, gain
				}
			}

			commDeg[best] += deg[n]
			if best != cur {
				part[n] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return part
}

// refine splits any community whose members do not form a single
// connected component, which is the well-connectedness guarantee Leiden
// adds over plain Louvain.
func refine(adj map[string]map[string]float64, part map[string]string) map[string]string {
	members := make(map[string][]string)
	for n, c := range part {
		members[c] = append(members[c], n)
	}

	refined := make(map[string]string, len(part))
	for n, c := range part {
		refined[n] = c
	}

	labels := make([]string, 0, len(members))
	for c := range members {
		labels = append(labels, c)
	}
	sort.Strings(labels)

	for _, c := range labels {
		group := members[c]
		if len(group) <= 1 {
			continue
		}
		sort.Strings(group)
		for i, component := range components(adj, group) {
			if i == 0 {
				continue
			}
			split := fmt.Sprintf("%s_%d", c, i)
			for _, n := range component {
				refined[n] = split
			}
		}
	}
	return refined
}

// components finds connected components within a node subset by BFS,
// visiting in sorted order for reproducibility.
func components(adj map[string]map[string]float64, nodes []string) [][]string {
	inSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}
	visited := make(map[string]bool, len(nodes))

	var out [][]string
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		visited[start] = true
		component := []string{}
		queue := []string{start}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			component = append(component, n)

			nbrs := make([]string, 0, len(adj[n]))
			for nbr := range adj[n] {
				nbrs = append(nbrs, nbr)
			}
			sort.Strings(nbrs)
			for _, nbr := range nbrs {
				if inSet[nbr] && !visited[nbr] {
					visited[nbr] = true
					queue = append(queue, nbr)
				}
			}
		}
		out = append(out, component)
	}
	return out
}
