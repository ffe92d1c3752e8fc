package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
)

// retrieveChunks runs dense retrieval over the series chunk index,
// degrading to keyword matching when no embedding is available or the
// index cannot answer.
func (e *Engine) retrieveChunks(ctx context.Context, series, question string, k int) ([]store.ChunkHit, string, error) {
	if qvec := e.embedQuery(ctx, question); qvec != nil {
		hits, err := e.Store.QueryChunkIndex(ctx, series, qvec, k)
		if err == nil {
			return hits, "vector", nil
		}
		slog.Warn("chunk index query failed, falling back to keywords", "series", series, "error", err)
	}
	hits, err := e.Store.KeywordChunks(ctx, series, Keywords(question), k)
	if err != nil {
		return nil, "", fmt.Errorf("keyword chunks: %w", err)
	}
	return hits, "keyword", nil
}

// vectorAnswer is the dense mode: top-k chunks, a citation-first
// prompt, one generation call.
func (e *Engine) vectorAnswer(ctx context.Context, series, question string, opts Options) (*AnswerBundle, error) {
	bundle := &AnswerBundle{ModeUsed: ModeVector, Citations: []Citation{}}

	hits, retrieval, err := e.retrieveChunks(ctx, series, question, opts.K)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		bundle.Warnings = append(bundle.Warnings, "no chunks matched the question")
		return bundle, nil
	}

	share := opts.Budgets.Vector.Prompt / len(hits)
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "[cid=%s doc=%s page=%d]\n%s\n\n", h.CID, h.Doc, h.Page, e.Budgeter.Fit(h.Text, share))
	}

	prompt := llm.RenderTemplate(vectorPrompt, map[string]string{
		"query":        question,
		"chunks_block": strings.TrimRight(b.String(), "\n"),
	})
	prompt = e.Budgeter.Fit(prompt, opts.Budgets.Vector.Prompt)

	resp, err := e.chat(ctx, prompt, opts.Budgets.Vector.Response)
	if err != nil {
		return nil, fmt.Errorf("vector answer: %w", err)
	}
	bundle.TokenUsage.add(resp.PromptTokens, resp.CompletionTokens)
	bundle.Answer = strings.TrimSpace(resp.Content)

	for _, h := range hits {
		bundle.Citations = append(bundle.Citations, Citation{
			CID:   h.CID,
			Doc:   h.Doc,
			Page:  h.Page,
			Score: h.Score,
		})
	}
	bundle.Debug = map[string]any{
		"retrieval": retrieval,
		"chunks":    len(hits),
	}
	return bundle, nil
}
