package graphrag

import (
	"github.com/rdahmani/graphrag/corpus"
	"github.com/rdahmani/graphrag/kg"
	"github.com/rdahmani/graphrag/query"
	"github.com/rdahmani/graphrag/runs"
)

// Result and option types of the inner packages, re-exported so most
// callers only import the root package.
type (
	Answer       = query.AnswerBundle
	Citation     = query.Citation
	TokenUsage   = query.TokenUsage
	SearchResult = query.SearchResult
	Mode         = query.Mode
	Budgets      = query.Budgets
	Budget       = query.Budget

	BuildReport   = kg.BuildReport
	ImportReport  = corpus.ImportReport
	ExtractReport = corpus.ExtractReport
	ChunkReport   = corpus.ChunkReport
	EmbedReport   = corpus.EmbedReport
	ChunkOptions  = corpus.ChunkOptions

	RunState = runs.RunState
)

const (
	ModeAuto   = query.ModeAuto
	ModeGraph  = query.ModeGraph
	ModePath   = query.ModePath
	ModeVector = query.ModeVector
)

// ParseMode maps a wire mode string onto a Mode. Empty means auto.
func ParseMode(s string) (Mode, bool) { return query.ParseMode(s) }

// IngestReport aggregates the three ingest stages. A stage the engine
// skipped (no graph database, no embedding provider) stays nil with a
// warning explaining why.
type IngestReport struct {
	Series   string         `json:"series"`
	Extract  *ExtractReport `json:"extract,omitempty"`
	Chunk    *ChunkReport   `json:"chunk,omitempty"`
	Embed    *EmbedReport   `json:"embed,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}
