package kg

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rdahmani/graphrag/store"
)

// Wirer connects community levels into a hierarchy. Because every
// level partitions the same entity set independently, a lower-level
// community can overlap several higher-level ones; a PARENT edge is
// written for each overlapping pair, carrying the shared member count.
type Wirer struct {
	Store *store.Store
}

func NewWirer(st *store.Store) *Wirer {
	return &Wirer{Store: st}
}

// Run wires each consecutive pair of the given levels and returns the
// total number of PARENT edges written. Wiring is idempotent.
func (w *Wirer) Run(ctx context.Context, series string, levels []int) (int, error) {
	sorted := append([]int(nil), levels...)
	sort.Ints(sorted)

	total := 0
	for i := 0; i+1 < len(sorted); i++ {
		lo, hi := sorted[i], sorted[i+1]
		n, err := w.Store.WireParents(ctx, series, lo, hi)
		if err != nil {
			return total, fmt.Errorf("wire %d->%d: %w", lo, hi, err)
		}
		slog.Debug("kg: parent edges wired", "series", series, "from", lo, "to", hi, "edges", n)
		total += n
	}
	return total, nil
}
