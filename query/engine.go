// Package query answers questions over a built series. A deterministic
// router (or an explicit mode) picks between three strategies: global
// query-focused summarization over community summaries, path retrieval
// with flow pruning over the entity graph, and dense chunk retrieval.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
	"github.com/rdahmani/graphrag/tokens"
)

// ErrEmptyQuestion rejects blank questions before any retrieval runs.
var ErrEmptyQuestion = errors.New("query: empty question")

const defaultWorkers = 8

// Options tune one query. Zero values fall back to the defaults, so a
// caller can override a single knob.
type Options struct {
	Mode    Mode
	K       int     // paths or chunks kept
	N       int     // seed entities for path retrieval
	Alpha   float64 // per-hop decay of the path score
	Theta   float64 // confidence floor for path nodes and edges
	MaxHops int
	Levels  []int // community levels considered by graph mode; nil = all
	Budgets Budgets

	// DisablePathFallback keeps the empty path bundle instead of
	// rerouting to vector retrieval when no path survives pruning.
	DisablePathFallback bool
}

// DefaultOptions returns the stock query knobs.
func DefaultOptions() Options {
	return Options{
		Mode:    ModeAuto,
		K:       12,
		N:       30,
		Alpha:   0.8,
		Theta:   0.05,
		MaxHops: 3,
		Budgets: DefaultBudgets(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.K <= 0 {
		o.K = d.K
	}
	if o.N <= 0 {
		o.N = d.N
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = d.Alpha
	}
	if o.Theta < 0 || o.Theta > 1 {
		o.Theta = d.Theta
	}
	if o.MaxHops <= 0 {
		o.MaxHops = d.MaxHops
	}
	o.Budgets = o.Budgets.withDefaults()
	return o
}

// Engine answers questions against one store using a chat provider and
// an embedding provider. Both providers may be the same value.
type Engine struct {
	Store    *store.Store
	Chat     llm.Provider
	Embedder llm.Provider
	Budgeter *tokens.Budgeter
	Model    string
	Workers  int
}

func NewEngine(st *store.Store, chat, embedder llm.Provider, budgeter *tokens.Budgeter, model string) *Engine {
	return &Engine{
		Store:    st,
		Chat:     chat,
		Embedder: embedder,
		Budgeter: budgeter,
		Model:    model,
		Workers:  defaultWorkers,
	}
}

// Ask routes the question, runs the chosen strategy, and stamps the
// bundle with series, question and latency.
func (e *Engine) Ask(ctx context.Context, series, question string, opts Options) (*AnswerBundle, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	opts = opts.withDefaults()

	mode := opts.Mode
	if mode == ModeAuto {
		mode = Route(question)
	}

	start := time.Now()
	var (
		bundle *AnswerBundle
		err    error
	)
	switch mode {
	case ModeGraph:
		bundle, err = e.graphAnswer(ctx, series, question, opts)
	case ModePath:
		bundle, err = e.pathAnswer(ctx, series, question, opts)
	case ModeVector:
		bundle, err = e.vectorAnswer(ctx, series, question, opts)
	default:
		return nil, fmt.Errorf("query: unknown mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	bundle.Series = series
	bundle.Question = question
	bundle.LatencyMs = time.Since(start).Milliseconds()
	return bundle, nil
}

// SearchResult is the debug view behind the search endpoint: the raw
// top-k chunks with the retrieval method that produced them.
type SearchResult struct {
	Series    string           `json:"series"`
	Query     string           `json:"query"`
	K         int              `json:"k"`
	Retrieval string           `json:"retrieval"` // vector or keyword
	Hits      []store.ChunkHit `json:"hits"`
}

// Search returns the raw chunk retrieval for a question, without any
// generation step.
func (e *Engine) Search(ctx context.Context, series, question string, k int) (*SearchResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if k <= 0 {
		k = DefaultOptions().K
	}
	hits, retrieval, err := e.retrieveChunks(ctx, series, question, k)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []store.ChunkHit{}
	}
	return &SearchResult{
		Series:    series,
		Query:     question,
		K:         k,
		Retrieval: retrieval,
		Hits:      hits,
	}, nil
}

func (e *Engine) chat(ctx context.Context, prompt string, maxTokens int) (*llm.ChatResponse, error) {
	return e.Chat.Chat(ctx, llm.ChatRequest{
		Model:     e.Model,
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
}

func (e *Engine) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return defaultWorkers
}
