package graphrag

import (
	"errors"

	"github.com/rdahmani/graphrag/corpus"
	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/query"
	"github.com/rdahmani/graphrag/store"
)

var (
	// ErrSeriesNotFound is returned when a series does not exist on disk.
	ErrSeriesNotFound = errors.New("graphrag: series not found")

	// ErrInvalidConfig is returned for configuration that cannot work.
	ErrInvalidConfig = errors.New("graphrag: invalid configuration")

	// ErrBudgetExceeded is returned when a query budget override asks for
	// more tokens than the engine is willing to spend.
	ErrBudgetExceeded = errors.New("graphrag: token budget exceeded")
)

// The remaining error kinds live where they are produced. Re-exported
// here so callers can errors.Is against the root package alone.
var (
	// ErrNoChunks is returned when a pipeline stage finds nothing to work on.
	ErrNoChunks = corpus.ErrNoChunks

	// ErrProviderUnavailable is returned when the LLM endpoint is unreachable.
	ErrProviderUnavailable = llm.ErrUnavailable

	// ErrStorageUnavailable is returned when the graph database is unreachable.
	ErrStorageUnavailable = store.ErrUnavailable

	// ErrEmptyQuery rejects blank questions.
	ErrEmptyQuery = query.ErrEmptyQuestion
)
