package kg

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
)

const (
	defaultEmbedBatch = 256
	embedConcurrency  = 4
)

// Indexer keeps the per-series vector indexes in sync with the graph:
// one index over entity texts and one over community summaries. Chunk
// embeddings are written at ingest time, not here.
type Indexer struct {
	Store     *store.Store
	Embedder  llm.Provider
	BatchSize int
}

func NewIndexer(st *store.Store, embedder llm.Provider) *Indexer {
	return &Indexer{Store: st, Embedder: embedder, BatchSize: defaultEmbedBatch}
}

// IndexReport counts what Sync embedded and which indexes it ensured.
type IndexReport struct {
	Entities    int      `json:"entities"`
	Communities int      `json:"communities"`
	Indexes     []string `json:"indexes"`
}

// Sync embeds every entity text and community summary of the series
// and writes the vectors. Index dimensions are fixed by the first
// vector ever written for a series; later syncs must produce vectors
// of the same size.
func (ix *Indexer) Sync(ctx context.Context, series string) (IndexReport, error) {
	var report IndexReport
	if ix.Embedder == nil {
		return report, fmt.Errorf("kg: no embedding provider")
	}

	n, name, err := ix.syncEntities(ctx, series)
	if err != nil {
		return report, fmt.Errorf("index entities: %w", err)
	}
	report.Entities = n
	if name != "" {
		report.Indexes = append(report.Indexes, name)
	}

	n, name, err = ix.syncCommunities(ctx, series)
	if err != nil {
		return report, fmt.Errorf("index communities: %w", err)
	}
	report.Communities = n
	if name != "" {
		report.Indexes = append(report.Indexes, name)
	}

	slog.Info("kg: vectors synced",
		"series", series, "entities", report.Entities, "communities", report.Communities)
	return report, nil
}

func (ix *Indexer) syncEntities(ctx context.Context, series string) (int, string, error) {
	rows, err := ix.Store.EntityTexts(ctx, series)
	if err != nil {
		return 0, "", err
	}
	if len(rows) == 0 {
		return 0, "", nil
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	vecs, err := ix.embedAll(ctx, texts)
	if err != nil {
		return 0, "", err
	}

	if err := ix.Store.EnsureVectorIndex(ctx, store.EntityIndex, series, len(vecs[0])); err != nil {
		return 0, "", err
	}

	out := make([]store.EntityVector, len(rows))
	for i, r := range rows {
		out[i] = store.EntityVector{ID: r.ID, Vec: vecs[i]}
	}
	n, err := ix.Store.WriteEntityVectors(ctx, series, out)
	if err != nil {
		return 0, "", err
	}
	return n, store.VectorIndexName(store.EntityIndex, series), nil
}

func (ix *Indexer) syncCommunities(ctx context.Context, series string) (int, string, error) {
	cands, err := ix.Store.Communities(ctx, series, nil)
	if err != nil {
		return 0, "", err
	}
	summarized := cands[:0]
	for _, c := range cands {
		if c.Text != "" {
			summarized = append(summarized, c)
		}
	}
	if len(summarized) == 0 {
		return 0, "", nil
	}

	texts := make([]string, len(summarized))
	for i, c := range summarized {
		texts[i] = c.Text
	}
	vecs, err := ix.embedAll(ctx, texts)
	if err != nil {
		return 0, "", err
	}

	if err := ix.Store.EnsureVectorIndex(ctx, store.CommunityIndex, series, len(vecs[0])); err != nil {
		return 0, "", err
	}

	out := make([]store.CommunityVector, len(summarized))
	for i, c := range summarized {
		out[i] = store.CommunityVector{CID: c.CID, Level: c.Level, Vec: vecs[i]}
	}
	n, err := ix.Store.WriteCommunityVectors(ctx, series, out)
	if err != nil {
		return 0, "", err
	}
	return n, store.VectorIndexName(store.CommunityIndex, series), nil
}

// embedAll embeds texts in bounded-concurrency batches, preserving
// input order. Any batch failure aborts the whole sync.
func (ix *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	size := ix.BatchSize
	if size <= 0 {
		size = defaultEmbedBatch
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += size {
		start := start
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := ix.Embedder.Embed(ctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed returned %d vectors for %d texts", len(vecs), end-start)
			}
			copy(out[start:], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(out) > 0 && len(out[0]) == 0 {
		return nil, fmt.Errorf("embed returned empty vectors")
	}
	return out, nil
}
