package query

import (
	"math"
	"strings"
	"testing"

	"github.com/rdahmani/graphrag/store"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"accents and digits", "Qui a acquis Béta en 2021 ?", []string{"qui", "acquis", "béta", "2021"}},
		{"short tokens dropped", "où va le PIB ?", []string{"pib"}},
		{"dedup and cap", "acme acme beta gamma delta epsilon zeta eta theta iota",
			[]string{"acme", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}},
		{"hyphenated", "numéro d'identification franco-allemand", []string{"numéro", "identification", "franco-allemand"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Keywords(tt.question)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Keywords = %v, want %v", got, tt.want)
			}
		})
	}
}

func twoHopPath(conf float64) store.Path {
	return store.Path{
		Nodes: []store.PathNode{
			{ID: "n1", Name: "Acme", Conf: conf},
			{ID: "n2", Name: "Beta", Conf: conf},
			{ID: "n3", Name: "France", Conf: conf},
		},
		Edges: []store.PathEdge{
			{ID: "e1", Pred: "ACQUIRED", Conf: conf},
			{ID: "e2", Pred: "LOCATED_IN", Conf: conf},
		},
		Hops: 2,
	}
}

func TestPathScore(t *testing.T) {
	p := twoHopPath(0.8)
	got := pathScore(p, 0.8)
	if math.Abs(got-0.64) > 1e-9 {
		t.Errorf("score = %v, want 0.8^(2-1)*0.8 = 0.64", got)
	}

	longer := store.Path{
		Nodes: []store.PathNode{
			{ID: "n1", Conf: 0.8}, {ID: "n2", Conf: 0.8},
			{ID: "n3", Conf: 0.8}, {ID: "n4", Conf: 0.8},
		},
		Edges: []store.PathEdge{
			{ID: "e1", Conf: 0.8}, {ID: "e2", Conf: 0.8}, {ID: "e3", Conf: 0.8},
		},
		Hops: 3,
	}
	if pathScore(longer, 0.8) >= got {
		t.Errorf("3-hop path with the same mean conf should score below the 2-hop one")
	}

	if s := pathScore(store.Path{Nodes: []store.PathNode{{ID: "n1"}}}, 0.8); s != 0 {
		t.Errorf("edgeless path score = %v, want 0", s)
	}
}

func TestRenderPathsAscending(t *testing.T) {
	strong := scoredPath{path: twoHopPath(0.9), score: 0.9}
	weak := scoredPath{path: store.Path{
		Nodes: []store.PathNode{
			{ID: "n4", Name: "Globex", Conf: 0.3},
			{ID: "n5", Name: "Initech", Conf: 0.3},
		},
		Edges: []store.PathEdge{{ID: "e9", Pred: "SUPPLIES", Conf: 0.3}},
		Hops:  1,
	}, score: 0.3}

	out := renderPaths([]scoredPath{strong, weak})
	wi := strings.Index(out, "Globex --[SUPPLIES]--> Initech")
	si := strings.Index(out, "Acme --[ACQUIRED]--> Beta ; Beta --[LOCATED_IN]--> France")
	if wi < 0 || si < 0 {
		t.Fatalf("paths missing from render:\n%s", out)
	}
	if wi > si {
		t.Errorf("weak path should come before strong path:\n%s", out)
	}
	if !strings.HasPrefix(out, "(1)") {
		t.Errorf("paths not enumerated:\n%s", out)
	}
}

func TestRankSeeds(t *testing.T) {
	kws := []string{"acme", "rachat"}
	seeds := []store.SeedEntity{
		{ID: "a", Name: "Globex", Desc: "concurrent", Conf: 0.9},
		{ID: "b", Name: "Acme", Desc: "rachat de Beta", Conf: 0.5},
		{ID: "c", Name: "Acme Holding", Desc: "", Conf: 0.7},
	}
	got := rankSeeds(kws, seeds, 2)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("rankSeeds = %v", got)
	}
}
