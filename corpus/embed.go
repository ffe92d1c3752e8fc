package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
)

// ErrNoChunks means the series has no chunk files to embed.
var ErrNoChunks = errors.New("corpus: no chunks to embed")

const (
	defaultEmbedBatch   = 128
	embedderConcurrency = 4
)

// Embedder pushes the chunks of a series into the graph store with
// their vectors, creating the per-series chunk index on first sync.
type Embedder struct {
	Storage   *Storage
	Store     *store.Store
	Provider  llm.Provider
	BatchSize int
}

func NewEmbedder(storage *Storage, st *store.Store, provider llm.Provider) *Embedder {
	return &Embedder{
		Storage:   storage,
		Store:     st,
		Provider:  provider,
		BatchSize: defaultEmbedBatch,
	}
}

// EmbedReport summarizes one sync.
type EmbedReport struct {
	Series     string `json:"series"`
	Index      string `json:"index"`
	Dimensions int    `json:"dimensions"`
	Vectors    int    `json:"vectors"`
	Chunks     int    `json:"chunks"`
}

// SyncSeries embeds every chunk of a series and upserts the chunk
// nodes. The first batch runs alone to learn the vector dimension and
// create the index; the remaining batches run in a bounded errgroup,
// and any failed batch fails the sync.
func (e *Embedder) SyncSeries(ctx context.Context, series string) (*EmbedReport, error) {
	chunks, err := e.Storage.ReadChunks(series)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: series %s", ErrNoChunks, series)
	}

	size := e.BatchSize
	if size <= 0 {
		size = defaultEmbedBatch
	}
	vecs := make([][]float32, len(chunks))

	embedRange := func(ctx context.Context, start, end int) error {
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		out, err := e.Provider.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(out) != len(texts) {
			return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(out), len(texts))
		}
		copy(vecs[start:end], out)
		return nil
	}

	// First batch fixes the dimension before the index exists.
	first := size
	if first > len(chunks) {
		first = len(chunks)
	}
	if err := embedRange(ctx, 0, first); err != nil {
		return nil, err
	}
	dims := len(vecs[0])
	if dims == 0 {
		return nil, fmt.Errorf("embed: provider returned empty vectors")
	}
	if err := e.Store.EnsureVectorIndex(ctx, store.ChunkIndex, series, dims); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedderConcurrency)
	for start := first; start < len(chunks); start += size {
		start := start
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error { return embedRange(gctx, start, end) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]store.ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = store.ChunkRow{
			ID:        c.ID,
			Series:    series,
			Doc:       c.File,
			Page:      c.Page,
			Order:     c.Order,
			Text:      c.Text,
			Embedding: vecs[i],
		}
	}
	n, err := e.Store.UpsertChunks(ctx, series, rows)
	if err != nil {
		return nil, err
	}

	report := &EmbedReport{
		Series:     series,
		Index:      store.VectorIndexName(store.ChunkIndex, series),
		Dimensions: dims,
		Vectors:    len(vecs),
		Chunks:     n,
	}
	slog.Info("chunk embeddings synced",
		"series", series, "chunks", n, "dims", dims, "index", report.Index)
	return report, nil
}
