// Package graphrag assembles the full pipeline behind one facade:
// corpus import and ingestion, knowledge graph builds over Neo4j, and
// the three query strategies (global summarization, path retrieval,
// dense chunks).
package graphrag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rdahmani/graphrag/corpus"
	"github.com/rdahmani/graphrag/kg"
	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/query"
	"github.com/rdahmani/graphrag/runs"
	"github.com/rdahmani/graphrag/store"
	"github.com/rdahmani/graphrag/tokens"
)

// Budget ceilings for per-query overrides. Requests above these are
// rejected with ErrBudgetExceeded instead of being silently clamped.
const (
	maxPromptBudget   = 32768
	maxResponseBudget = 8192
)

// Engine is the main entry point.
type Engine interface {
	// CreateSeries makes a new series. An empty name gets a timestamp
	// name; a conflicting one gets a __N suffix. Returns the final name.
	CreateSeries(name string) (string, error)

	// Series lists every series known to the corpus store.
	Series() ([]string, error)

	// DeleteSeries removes a series from disk and, when a graph database
	// is configured, every node carrying its label.
	DeleteSeries(ctx context.Context, series string) error

	// ImportFiles copies local files into a series, rejecting unsupported
	// extensions per file.
	ImportFiles(series string, paths []string) (*ImportReport, error)

	// ImportReader stores one named stream into a series and returns the
	// filename after collision resolution.
	ImportReader(series, filename string, r io.Reader) (string, error)

	// Ingest extracts, chunks, and embeds every raw file of a series.
	Ingest(ctx context.Context, series string) (*IngestReport, error)

	// Build runs the knowledge graph pipeline for a series: extraction,
	// entity linking, upserts, communities, summaries, index sync.
	Build(ctx context.Context, series string, opts ...BuildOption) (*BuildReport, error)

	// Query answers a question over a built series.
	Query(ctx context.Context, series, question string, opts ...QueryOption) (*Answer, error)

	// Search returns the raw top-k chunk retrieval without generation.
	Search(ctx context.Context, series, question string, k int) (*SearchResult, error)

	// Runs exposes the build run journal.
	Runs() *runs.Journal

	// Store returns the underlying graph store for diagnostic access.
	// Nil when no graph database is configured.
	Store() *store.Store

	// Close releases the graph database connection.
	Close(ctx context.Context) error
}

// BuildOption overrides one build knob for a single call.
type BuildOption func(*kg.BuildOptions)

func WithMinConf(v float64) BuildOption {
	return func(o *kg.BuildOptions) { o.MinConf = v }
}

func WithLevels(n int) BuildOption {
	return func(o *kg.BuildOptions) { o.Levels = n }
}

func WithResolution(r float64) BuildOption {
	return func(o *kg.BuildOptions) { o.Resolution = r }
}

func WithSummaryLevels(levels ...int) BuildOption {
	return func(o *kg.BuildOptions) { o.SummaryLevels = levels }
}

func WithBuildTimeout(d time.Duration) BuildOption {
	return func(o *kg.BuildOptions) { o.Timeout = d }
}

// QueryOption overrides one query knob for a single call.
type QueryOption func(*query.Options)

func WithMode(m Mode) QueryOption {
	return func(o *query.Options) { o.Mode = m }
}

func WithTopK(k int) QueryOption {
	return func(o *query.Options) { o.K = k }
}

func WithTopN(n int) QueryOption {
	return func(o *query.Options) { o.N = n }
}

func WithAlpha(a float64) QueryOption {
	return func(o *query.Options) { o.Alpha = a }
}

func WithTheta(t float64) QueryOption {
	return func(o *query.Options) { o.Theta = t }
}

func WithMaxHops(n int) QueryOption {
	return func(o *query.Options) { o.MaxHops = n }
}

func WithBudgets(b Budgets) QueryOption {
	return func(o *query.Options) { o.Budgets = b }
}

// WithoutPathFallback keeps an empty path answer instead of rerouting
// to vector retrieval when no path survives pruning.
func WithoutPathFallback() QueryOption {
	return func(o *query.Options) { o.DisablePathFallback = true }
}

type engine struct {
	cfg      Config
	store    *store.Store
	chat     llm.Provider
	embed    llm.Provider
	storage  *corpus.Storage
	budgeter *tokens.Budgeter
	journal  *runs.Journal
	querier  *query.Engine
}

// New wires an engine from configuration. The graph database and the
// embedding provider are optional: without them the engine still
// imports, extracts, and chunks, but Build/Query report
// ErrStorageUnavailable and ingest skips the embedding stage.
func New(ctx context.Context, cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chat, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("%w: chat: %v", ErrInvalidConfig, err)
	}

	var embed llm.Provider
	if cfg.Embedding.Provider != "" {
		embed, err = llm.NewProvider(cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding: %v", ErrInvalidConfig, err)
		}
	}

	var st *store.Store
	if cfg.Neo4j.URI != "" {
		st, err = store.New(ctx, cfg.Neo4j)
		if err != nil {
			return nil, err
		}
	}

	storage := corpus.NewStorage(cfg.Storage.Root)
	if cfg.Storage.MaxFileSizeMB > 0 {
		storage.MaxFileSizeMB = cfg.Storage.MaxFileSizeMB
	}

	budgeter := tokens.NewBudgeter(cfg.Chat.Provider)

	querier := query.NewEngine(st, chat, embed, budgeter, cfg.Chat.Model)
	if cfg.Build.Concurrency > 0 {
		querier.Workers = cfg.Build.Concurrency
	}

	return &engine{
		cfg:      cfg,
		store:    st,
		chat:     chat,
		embed:    embed,
		storage:  storage,
		budgeter: budgeter,
		journal:  runs.NewJournal(cfg.Storage.Root),
		querier:  querier,
	}, nil
}

func (e *engine) resolveSeries(series string) string {
	if series == "" {
		return e.cfg.Series
	}
	return series
}

func (e *engine) CreateSeries(name string) (string, error) {
	return e.storage.CreateSeries(name)
}

func (e *engine) Series() ([]string, error) {
	return e.storage.ListSeries()
}

func (e *engine) DeleteSeries(ctx context.Context, series string) error {
	series = e.resolveSeries(series)
	if !e.storage.SeriesExists(series) {
		return fmt.Errorf("%w: %s", ErrSeriesNotFound, series)
	}
	if err := e.storage.DeleteSeries(series); err != nil {
		return err
	}
	if e.store != nil {
		if n, err := e.store.DeleteSeries(ctx, series); err != nil {
			return fmt.Errorf("delete graph data: %w", err)
		} else if n > 0 {
			slog.Info("series graph data deleted", "series", series, "nodes", n)
		}
	}
	return nil
}

func (e *engine) ImportFiles(series string, paths []string) (*ImportReport, error) {
	series = e.resolveSeries(series)
	if !e.storage.SeriesExists(series) {
		return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, series)
	}
	return e.storage.ImportFiles(series, paths)
}

func (e *engine) ImportReader(series, filename string, r io.Reader) (string, error) {
	series = e.resolveSeries(series)
	if !e.storage.SeriesExists(series) {
		return "", fmt.Errorf("%w: %s", ErrSeriesNotFound, series)
	}
	return e.storage.ImportReader(series, filename, r)
}

// Ingest runs extract, chunk, and embed for a series, journaling each
// stage. The embed stage needs both a graph database and an embedding
// provider; without them it is skipped with a warning so the corpus
// pipeline still works offline.
func (e *engine) Ingest(ctx context.Context, series string) (*IngestReport, error) {
	series = e.resolveSeries(series)
	if !e.storage.SeriesExists(series) {
		return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, series)
	}

	run, jerr := e.journal.Start(series, "ingest")
	if jerr != nil {
		slog.Warn("run journal unavailable", "series", series, "error", jerr)
	}
	begin := func(name string) {
		if run != nil {
			run.StartStep(name)
		}
	}
	end := func(name string, err error) {
		if run != nil {
			run.FinishStep(name, err)
		}
	}
	finish := func(err error) {
		if run != nil {
			run.Finish(err)
		}
	}

	report := &IngestReport{Series: series}

	begin("extract")
	extract, err := e.storage.ExtractSeries(ctx, series)
	end("extract", err)
	if err != nil {
		finish(err)
		return report, fmt.Errorf("step extract: %w", err)
	}
	report.Extract = extract

	begin("chunk")
	chunk, err := e.storage.ChunkSeries(series, e.cfg.Chunking)
	end("chunk", err)
	if err != nil {
		finish(err)
		return report, fmt.Errorf("step chunk: %w", err)
	}
	report.Chunk = chunk

	switch {
	case e.store == nil:
		report.Warnings = append(report.Warnings, "embedding skipped: no graph database configured")
	case e.embed == nil:
		report.Warnings = append(report.Warnings, "embedding skipped: no embedding provider configured")
	default:
		begin("embed")
		embed, err := corpus.NewEmbedder(e.storage, e.store, e.embed).SyncSeries(ctx, series)
		end("embed", err)
		if err != nil {
			finish(err)
			return report, fmt.Errorf("step embed: %w", err)
		}
		report.Embed = embed
	}

	finish(nil)
	return report, nil
}

func (e *engine) Build(ctx context.Context, series string, opts ...BuildOption) (*BuildReport, error) {
	series = e.resolveSeries(series)
	if e.store == nil {
		return nil, fmt.Errorf("%w: no graph database configured", ErrStorageUnavailable)
	}

	bo := kg.BuildOptions{
		MinConf:       e.cfg.Build.MinConf,
		Levels:        e.cfg.Build.Levels,
		Resolution:    e.cfg.Build.Resolution,
		SummaryLevels: e.cfg.Build.SummaryLevels,
		Timeout:       time.Duration(e.cfg.Build.TimeoutSeconds) * time.Second,
	}
	for _, o := range opts {
		o(&bo)
	}

	run, jerr := e.journal.Start(series, "build")
	if jerr != nil {
		slog.Warn("run journal unavailable", "series", series, "error", jerr)
	}

	builder := kg.NewBuilder(e.store, e.chat, e.embed, e.budgeter, e.cfg.Chat.Model)
	builder.Workers = e.cfg.Build.Concurrency
	if run != nil {
		builder.Observer = run
	}

	report, err := builder.Build(ctx, series, bo)
	if run != nil {
		run.Finish(err)
	}
	return report, err
}

func (e *engine) Query(ctx context.Context, series, question string, opts ...QueryOption) (*Answer, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: no graph database configured", ErrStorageUnavailable)
	}
	qo := e.queryOptions(opts...)
	if err := checkBudgets(qo.Budgets); err != nil {
		return nil, err
	}
	return e.querier.Ask(ctx, e.resolveSeries(series), question, qo)
}

func (e *engine) Search(ctx context.Context, series, question string, k int) (*SearchResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: no graph database configured", ErrStorageUnavailable)
	}
	if k <= 0 {
		k = e.cfg.Query.K
	}
	return e.querier.Search(ctx, e.resolveSeries(series), question, k)
}

func (e *engine) queryOptions(opts ...QueryOption) query.Options {
	qo := query.Options{
		K:       e.cfg.Query.K,
		N:       e.cfg.Query.N,
		Alpha:   e.cfg.Query.Alpha,
		Theta:   e.cfg.Query.Theta,
		MaxHops: e.cfg.Query.MaxHops,
		Budgets: e.cfg.Query.Budgets,
	}
	for _, o := range opts {
		o(&qo)
	}
	return qo
}

func checkBudgets(b Budgets) error {
	for _, bd := range []Budget{b.QFSMap, b.QFSReduce, b.Paths, b.Vector} {
		if bd.Prompt > maxPromptBudget {
			return fmt.Errorf("%w: prompt budget %d over %d", ErrBudgetExceeded, bd.Prompt, maxPromptBudget)
		}
		if bd.Response > maxResponseBudget {
			return fmt.Errorf("%w: response budget %d over %d", ErrBudgetExceeded, bd.Response, maxResponseBudget)
		}
	}
	return nil
}

func (e *engine) Runs() *runs.Journal {
	return e.journal
}

func (e *engine) Store() *store.Store {
	return e.store
}

func (e *engine) Close(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	return e.store.Close(ctx)
}
