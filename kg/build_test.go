package kg

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rdahmani/graphrag/ids"
	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
	"github.com/rdahmani/graphrag/tokens"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	if os.Getenv("NEO4J_TEST_URI") == "" {
		t.Skip("NEO4J_TEST_URI not set; skipping build integration test")
	}
	ctx := context.Background()
	st, err := store.New(ctx, store.Config{
		URI:      os.Getenv("NEO4J_TEST_URI"),
		Username: os.Getenv("NEO4J_TEST_USERNAME"),
		Password: os.Getenv("NEO4J_TEST_PASSWORD"),
		Database: os.Getenv("NEO4J_TEST_DATABASE"),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

// buildChat scripts every prompt kind of the pipeline with fixed
// answers, so two runs over the same chunks produce identical graphs.
func buildChat(req llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := req.Messages[0].Content
	switch {
	case strings.Contains(prompt, "Candidats"):
		return &llm.ChatResponse{Content: `{"winner": "NONE"}`}, nil
	case strings.Contains(prompt, "Rédige un résumé"):
		return &llm.ChatResponse{
			Content: "Une communauté d'entreprises autour d'ACME, de Globex et de leur direction.",
		}, nil
	case strings.Contains(prompt, "rachète"):
		return &llm.ChatResponse{Content: `{
  "entities": [
    {"name": "ACME", "type": "org", "desc": "Conglomérat industriel.", "conf": 0.9},
    {"name": "Globex", "type": "org", "desc": "Cible du rachat.", "conf": 0.85}
  ],
  "relations": [
    {"src": "ACME", "dst": "Globex", "pred": "ACQUIRED", "conf": 0.9}
  ]
}`}, nil
	default:
		return &llm.ChatResponse{Content: `{
  "entities": [
    {"name": "Jane Doe", "type": "person", "desc": "Dirigeante.", "conf": 0.9},
    {"name": "ACME", "type": "org", "conf": 0.8}
  ],
  "relations": [
    {"src": "Jane Doe", "dst": "ACME", "pred": "LEADS", "conf": 0.85}
  ]
}`}, nil
	}
}

func buildEmbed(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32((len(txt)*(j+3))%17) / 17
		}
		v[0] += 1
		out[i] = v
	}
	return out, nil
}

func TestIntegrationBuildPipeline(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	series := fmt.Sprintf("t%d", time.Now().UnixNano())
	t.Cleanup(func() { _, _ = st.DeleteSeries(context.Background(), series) })

	chunks := []store.ChunkRow{
		{
			ID: ids.ChunkID(series, "notes.txt", 0), Series: series, Doc: "notes.txt",
			Page: 1, Order: 0, Text: "ACME rachète Globex pour deux milliards d'euros.",
		},
		{
			ID: ids.ChunkID(series, "notes.txt", 1), Series: series, Doc: "notes.txt",
			Page: 1, Order: 1, Text: "Jane Doe dirige ACME depuis 2020.",
		},
	}
	if _, err := st.UpsertChunks(ctx, series, chunks); err != nil {
		t.Fatalf("seed chunks: %v", err)
	}

	provider := &fakeProvider{chat: buildChat, embed: buildEmbed}
	builder := NewBuilder(st, provider, provider, tokens.NewBudgeter("openai"), "gpt-test")

	report, err := builder.Build(ctx, series, DefaultBuildOptions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings = %v", report.Warnings)
	}
	if report.Nodes != 3 {
		t.Errorf("nodes = %d, want ACME, Globex, Jane Doe", report.Nodes)
	}
	if report.Edges != 2 {
		t.Errorf("edges = %d, want 2", report.Edges)
	}
	if len(report.CommunitiesPerLevel) != defaultLevels {
		t.Errorf("levels = %v, want %d entries", report.CommunitiesPerLevel, defaultLevels)
	}
	if report.CommunitiesPerLevel[0] != 1 {
		t.Errorf("level 0 communities = %d, want the whole connected graph", report.CommunitiesPerLevel[0])
	}
	if report.SummariesPerLevel[0] != 1 || report.SummariesPerLevel[1] < 1 {
		t.Errorf("summaries = %v", report.SummariesPerLevel)
	}
	wantIndexes := []string{
		store.VectorIndexName(store.EntityIndex, series),
		store.VectorIndexName(store.CommunityIndex, series),
	}
	if !reflect.DeepEqual(report.Indexes, wantIndexes) {
		t.Errorf("indexes = %v, want %v", report.Indexes, wantIndexes)
	}

	if n, _ := st.CountEntities(ctx, series); n != 3 {
		t.Errorf("stored entities = %d", n)
	}
	if n, _ := st.CountRelations(ctx, series); n != 2 {
		t.Errorf("stored relations = %d", n)
	}

	// Rebuilding must converge on the same graph, not duplicate it.
	again, err := builder.Build(ctx, series, DefaultBuildOptions())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if again.Nodes != report.Nodes || again.Edges != report.Edges {
		t.Errorf("rebuild drifted: %d/%d vs %d/%d", again.Nodes, again.Edges, report.Nodes, report.Edges)
	}
	if !reflect.DeepEqual(again.CommunitiesPerLevel, report.CommunitiesPerLevel) {
		t.Errorf("communities drifted: %v vs %v", again.CommunitiesPerLevel, report.CommunitiesPerLevel)
	}
	if !reflect.DeepEqual(again.SummariesPerLevel, report.SummariesPerLevel) {
		t.Errorf("summaries drifted: %v vs %v", again.SummariesPerLevel, report.SummariesPerLevel)
	}
}

func TestIntegrationBuildEmptySeries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	series := fmt.Sprintf("t%d", time.Now().UnixNano())

	provider := &fakeProvider{chat: buildChat, embed: buildEmbed}
	builder := NewBuilder(st, provider, provider, tokens.NewBudgeter("openai"), "gpt-test")

	report, err := builder.Build(ctx, series, DefaultBuildOptions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Nodes != 0 || report.Edges != 0 {
		t.Errorf("empty series produced %d/%d", report.Nodes, report.Edges)
	}
	if len(report.Warnings) != 1 || report.Warnings[0] != "no chunks" {
		t.Errorf("warnings = %v", report.Warnings)
	}
	if len(report.CommunitiesPerLevel) != 0 {
		t.Errorf("communities = %v", report.CommunitiesPerLevel)
	}
}
