package kg

import (
	"math"
	"reflect"
	"testing"

	"github.com/rdahmani/graphrag/store"
)

// ---------------------------------------------------------------------------
// adjacency
// ---------------------------------------------------------------------------

func TestBuildAdjacency(t *testing.T) {
	edges := []store.ProjectionEdge{
		{Src: "x", Dst: "y", Weight: 0},
		{Src: "x", Dst: "y", Weight: 0.5},
		{Src: "x", Dst: "ghost", Weight: 1},
		{Src: "z", Dst: "z", Weight: 1},
	}
	adj := buildAdjacency([]string{"x", "y", "z"}, edges)

	if got := adj["x"]["y"]; math.Abs(got-0.501) > 1e-9 {
		t.Errorf("x-y weight = %v, want 0.501 (floor + accumulate)", got)
	}
	if got := adj["y"]["x"]; math.Abs(got-0.501) > 1e-9 {
		t.Errorf("y-x weight = %v, want symmetric 0.501", got)
	}
	if len(adj["x"]) != 1 {
		t.Errorf("edge to unknown endpoint kept: %v", adj["x"])
	}
	if got := adj["z"]["z"]; got != 1 {
		t.Errorf("self-loop weight = %v, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// partitioning
// ---------------------------------------------------------------------------

func twoCliques() ([]string, []store.ProjectionEdge) {
	nodes := []string{"a1", "a2", "a3", "b1", "b2", "b3"}
	edges := []store.ProjectionEdge{
		{Src: "a1", Dst: "a2", Weight: 1},
		{Src: "a1", Dst: "a3", Weight: 1},
		{Src: "a2", Dst: "a3", Weight: 1},
		{Src: "b1", Dst: "b2", Weight: 1},
		{Src: "b1", Dst: "b3", Weight: 1},
		{Src: "b2", Dst: "b3", Weight: 1},
		{Src: "a1", Dst: "b1", Weight: 0.001},
	}
	return nodes, edges
}

func TestPartitionTwoCliques(t *testing.T) {
	nodes, edges := twoCliques()
	part := partitionGraph(nodes, edges, 1.2)

	if part["a1"] != part["a2"] || part["a2"] != part["a3"] {
		t.Fatalf("first clique split: %v", part)
	}
	if part["b1"] != part["b2"] || part["b2"] != part["b3"] {
		t.Fatalf("second clique split: %v", part)
	}
	if part["a1"] == part["b1"] {
		t.Fatalf("cliques merged across the weak bridge: %v", part)
	}
}

func TestPartitionDeterministic(t *testing.T) {
	nodes, edges := twoCliques()
	first := partitionGraph(nodes, edges, 1.2)
	second := partitionGraph(nodes, edges, 1.2)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same input, different partitions:\n%v\n%v", first, second)
	}
}

func TestPartitionNoEdges(t *testing.T) {
	part := partitionGraph([]string{"a", "b"}, nil, 1.2)
	if part["a"] == part["b"] {
		t.Fatalf("isolated nodes grouped: %v", part)
	}
}

func TestRefineSplitsDisconnected(t *testing.T) {
	adj := buildAdjacency([]string{"w", "x", "y", "z"}, []store.ProjectionEdge{
		{Src: "w", Dst: "x", Weight: 1},
		{Src: "y", Dst: "z", Weight: 1},
	})
	part := map[string]string{"w": "same", "x": "same", "y": "same", "z": "same"}

	got := refine(adj, part)
	if got["w"] != got["x"] {
		t.Errorf("connected pair w,x split: %v", got)
	}
	if got["y"] != got["z"] {
		t.Errorf("connected pair y,z split: %v", got)
	}
	if got["w"] == got["y"] {
		t.Errorf("disconnected halves still share a community: %v", got)
	}
}
