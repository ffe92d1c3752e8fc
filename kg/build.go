// Package kg builds the knowledge graph for a document series: LLM
// extraction over chunks, entity-linking dedup, idempotent graph
// upserts, multi-level community detection with summaries, and vector
// index sync. The Builder runs the whole pipeline; each stage is also
// usable on its own.
package kg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
	"github.com/rdahmani/graphrag/tokens"
)

// BuildOptions tune one build run. Zero values fall back to defaults.
type BuildOptions struct {
	MinConf       float64       `json:"min_conf"`
	Levels        int           `json:"levels"`
	Resolution    float64       `json:"resolution"`
	SummaryLevels []int         `json:"summary_levels"`
	Timeout       time.Duration `json:"timeout"`
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MinConf:       defaultMinConf,
		Levels:        defaultLevels,
		Resolution:    defaultResolve,
		SummaryLevels: []int{0, 1},
	}
}

func (o *BuildOptions) normalize() {
	if o.MinConf <= 0 {
		o.MinConf = defaultMinConf
	}
	if o.Levels <= 0 {
		o.Levels = defaultLevels
	}
	if o.Resolution <= 0 {
		o.Resolution = defaultResolve
	}
	if len(o.SummaryLevels) == 0 {
		o.SummaryLevels = []int{0, 1}
	}
}

// BuildReport is the outcome of one build run. Warnings collect
// per-item failures that did not abort a step.
type BuildReport struct {
	Series              string      `json:"series"`
	Nodes               int         `json:"nodes"`
	Edges               int         `json:"edges"`
	CommunitiesPerLevel map[int]int `json:"communities_per_level"`
	SummariesPerLevel   map[int]int `json:"summaries_per_level"`
	Indexes             []string    `json:"indexes"`
	ElapsedSeconds      float64     `json:"elapsed_s"`
	Warnings            []string    `json:"warnings"`
}

// StepObserver is notified as build steps start and finish. runs.Run
// satisfies it, which is how builds land in the run journal.
type StepObserver interface {
	StartStep(name string)
	FinishStep(name string, err error)
}

// Builder sequences the full build. Embedder may be nil, in which case
// the index sync step is skipped with a warning and queries fall back
// to keyword retrieval.
type Builder struct {
	Store    *store.Store
	Chat     llm.Provider
	Embedder llm.Provider
	Budgeter *tokens.Budgeter
	Model    string

	// Workers bounds the LLM fan-outs. Zero keeps the per-stage default.
	Workers int

	// Observer, when set, receives step transitions.
	Observer StepObserver
}

func NewBuilder(st *store.Store, chat, embedder llm.Provider, budgeter *tokens.Budgeter, model string) *Builder {
	return &Builder{Store: st, Chat: chat, Embedder: embedder, Budgeter: budgeter, Model: model}
}

// Build runs extraction, linking, upserts, community detection,
// hierarchy wiring, summarization and index sync for one series, in
// that order. Every step is idempotent, so re-running a build
// converges instead of duplicating. On failure the partial report is
// returned alongside an error naming the step; when the configured
// build timeout expires, the partial report is returned with a warning
// instead.
func (b *Builder) Build(parent context.Context, series string, opts BuildOptions) (*BuildReport, error) {
	if series == "" {
		return nil, fmt.Errorf("kg: series required")
	}
	opts.normalize()

	start := time.Now()
	report := &BuildReport{
		Series:              series,
		CommunitiesPerLevel: map[int]int{},
		SummariesPerLevel:   map[int]int{},
	}

	ctx := parent
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, opts.Timeout)
		defer cancel()
	}

	done := func() *BuildReport {
		report.ElapsedSeconds = time.Since(start).Seconds()
		return report
	}
	begin := func(step string) {
		if b.Observer != nil {
			b.Observer.StartStep(step)
		}
	}
	end := func(step string) {
		if b.Observer != nil {
			b.Observer.FinishStep(step, nil)
		}
	}
	fail := func(step string, err error) (*BuildReport, error) {
		if b.Observer != nil {
			b.Observer.FinishStep(step, err)
		}
		if opts.Timeout > 0 && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("build timeout after %s during %s", opts.Timeout, step))
			return done(), nil
		}
		return done(), fmt.Errorf("step %s: %w", step, err)
	}

	b.Store.EnsureConstraints(ctx)

	begin("canonicalize")
	canon := NewCanonicalizer(b.Store, b.Chat, b.Budgeter, b.Model)
	canon.MinConf = opts.MinConf
	if b.Workers > 0 {
		canon.Workers = b.Workers
	}
	nodes, edges, warns, err := canon.Run(ctx, series)
	report.Warnings = append(report.Warnings, warns...)
	if errors.Is(err, ErrNoChunks) {
		end("canonicalize")
		report.Warnings = append(report.Warnings, "no chunks")
		return done(), nil
	}
	if err != nil {
		return fail("canonicalize", err)
	}
	end("canonicalize")
	slog.Info("kg: build canonicalized", "series", series, "nodes", len(nodes), "edges", len(edges))

	begin("link")
	nodes, edges, linkWarns := NewLinker(b.Chat, b.Model).Run(ctx, series, nodes, edges)
	report.Warnings = append(report.Warnings, linkWarns...)
	if err := ctx.Err(); err != nil {
		return fail("link", err)
	}
	end("link")
	slog.Info("kg: build linked", "series", series, "nodes", len(nodes), "edges", len(edges))

	begin("upsert")
	n, err := b.Store.UpsertEntities(ctx, series, nodes)
	if err != nil {
		return fail("upsert", err)
	}
	report.Nodes = n
	n, err = b.Store.UpsertRelations(ctx, series, edges)
	if err != nil {
		return fail("upsert", err)
	}
	report.Edges = n
	if _, err := b.Store.LinkMentions(ctx, series, nodes); err != nil {
		return fail("upsert", err)
	}
	end("upsert")
	slog.Info("kg: build upserted", "series", series, "nodes", report.Nodes, "edges", report.Edges)

	begin("community")
	det := NewDetector(b.Store)
	det.Levels = opts.Levels
	det.Resolution = opts.Resolution
	stats, err := det.Run(ctx, series)
	if err != nil {
		return fail("community", err)
	}
	levels := make([]int, 0, len(stats))
	for _, s := range stats {
		report.CommunitiesPerLevel[s.Level] = s.Communities
		levels = append(levels, s.Level)
	}
	end("community")

	begin("hierarchy")
	wired, err := NewWirer(b.Store).Run(ctx, series, levels)
	if err != nil {
		return fail("hierarchy", err)
	}
	end("hierarchy")
	slog.Info("kg: build hierarchy wired", "series", series, "parent_edges", wired)

	begin("summarize")
	summ := NewSummarizer(b.Store, b.Chat, b.Budgeter, b.Model)
	if b.Workers > 0 {
		summ.Workers = b.Workers
	}
	sums, sumWarns, err := summ.Run(ctx, series, opts.SummaryLevels)
	report.Warnings = append(report.Warnings, sumWarns...)
	if err != nil {
		return fail("summarize", err)
	}
	for _, s := range sums {
		report.SummariesPerLevel[s.Level]++
	}
	end("summarize")

	begin("index")
	if b.Embedder == nil {
		report.Warnings = append(report.Warnings, "indexer skipped: no embedding provider")
		end("index")
	} else {
		idx, err := NewIndexer(b.Store, b.Embedder).Sync(ctx, series)
		if err != nil {
			return fail("index", err)
		}
		report.Indexes = idx.Indexes
		end("index")
	}

	slog.Info("kg: build done",
		"series", series, "nodes", report.Nodes, "edges", report.Edges,
		"warnings", len(report.Warnings), "elapsed", time.Since(start).Round(time.Millisecond))
	return done(), nil
}
