package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
)

type fakeEmbedder struct {
	embed func(texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("chat not scripted")
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return f.embed(texts)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	if os.Getenv("NEO4J_TEST_URI") == "" {
		t.Skip("NEO4J_TEST_URI not set; skipping embed integration test")
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

func TestIntegrationSyncSeries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	series := fmt.Sprintf("t%d", time.Now().UnixNano())
	t.Cleanup(func() { _, _ = st.DeleteSeries(context.Background(), series) })

	s := newTestStorage(t)
	if _, err := s.CreateSeries(series); err != nil {
		t.Fatal(err)
	}
	text := strings.Repeat("ACME rachète Globex. Jane Doe dirige ACME. ", 20)
	if _, err := s.SaveFile(series, "notes.txt", strings.NewReader(text)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ExtractSeries(ctx, series); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ChunkSeries(series, ChunkOptions{Strategy: "sentence", Size: 150, Overlap: 0}); err != nil {
		t.Fatal(err)
	}

	batches := 0
	provider := &fakeEmbedder{embed: func(texts []string) ([][]float32, error) {
		batches++
		out := make([][]float32, len(texts))
		for i, txt := range texts {
			out[i] = []float32{float32(len(txt)) / 100, 0.5, 0.25}
		}
		return out, nil
	}}

	e := NewEmbedder(s, st, provider)
	e.BatchSize = 3
	report, err := e.SyncSeries(ctx, series)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Dimensions != 3 {
		t.Errorf("dims = %d", report.Dimensions)
	}
	if report.Chunks == 0 || report.Vectors != report.Chunks {
		t.Errorf("report = %+v", report)
	}
	if want := (report.Chunks + 2) / 3; batches != want {
		t.Errorf("batches = %d, want %d", batches, want)
	}
	if report.Index != store.VectorIndexName(store.ChunkIndex, series) {
		t.Errorf("index = %q", report.Index)
	}

	n, err := st.CountChunks(ctx, series)
	if err != nil {
		t.Fatal(err)
	}
	if n != report.Chunks {
		t.Errorf("stored chunks = %d, want %d", n, report.Chunks)
	}
}

func TestSyncSeriesNoChunks(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.CreateSeries("vide"); err != nil {
		t.Fatal(err)
	}
	e := NewEmbedder(s, nil, &fakeEmbedder{})
	if _, err := e.SyncSeries(context.Background(), "vide"); !errors.Is(err, ErrNoChunks) {
		t.Errorf("err = %v, want ErrNoChunks", err)
	}
}
