package kg

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rdahmani/graphrag/store"
)

// Detector partitions a series' entity graph into communities at
// several resolution levels. Each level is an independent partition of
// the same projection: level 0 uses the base resolution and higher
// levels use progressively larger ones, so communities get finer as
// the level climbs.
type Detector struct {
	Store      *store.Store
	Levels     int
	Resolution float64
}

func NewDetector(st *store.Store) *Detector {
	return &Detector{
		Store:      st,
		Levels:     defaultLevels,
		Resolution: defaultResolve,
	}
}

// LevelStats reports what one detection level produced.
type LevelStats struct {
	Level       int `json:"level"`
	Communities int `json:"communities"`
	Memberships int `json:"memberships"`
}

// Run projects the series graph once, partitions it at every level and
// replaces the stored memberships for each. Re-running is safe: each
// level is cleared before its new memberships are written.
func (d *Detector) Run(ctx context.Context, series string) ([]LevelStats, error) {
	nodes, edges, err := d.Store.Projection(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", series, err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	stats := make([]LevelStats, 0, d.Levels)
	for level := 0; level < d.Levels; level++ {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		gamma := d.Resolution * (1 + 0.5*float64(level))
		part := partitionGraph(nodes, edges, gamma)
		rows, count := renumber(part, level)

		if err := d.Store.ClearLevel(ctx, series, level); err != nil {
			return stats, fmt.Errorf("clear level %d: %w", level, err)
		}
		written, err := d.Store.WriteMemberships(ctx, series, level, rows)
		if err != nil {
			return stats, fmt.Errorf("write level %d: %w", level, err)
		}

		slog.Info("kg: communities detected",
			"series", series, "level", level, "gamma", gamma,
			"communities", count, "memberships", written)
		stats = append(stats, LevelStats{Level: level, Communities: count, Memberships: written})
	}
	return stats, nil
}

// renumber converts partition labels into stable community ids of the
// form c<level>_comm<n>, numbering groups by their smallest member id
// so the same partition always yields the same ids.
func renumber(part map[string]string, level int) ([]store.Membership, int) {
	byLabel := make(map[string][]string)
	for n, label := range part {
		byLabel[label] = append(byLabel[label], n)
	}

	reps := make([]string, 0, len(byLabel))
	labelOf := make(map[string]string, len(byLabel))
	for label, group := range byLabel {
		sort.Strings(group)
		reps = append(reps, group[0])
		labelOf[group[0]] = label
	}
	sort.Strings(reps)

	rows := make([]store.Membership, 0, len(part))
	for i, rep := range reps {
		cid := fmt.Sprintf("c%d_comm%d", level, i)
		for _, n := range byLabel[labelOf[rep]] {
			rows = append(rows, store.Membership{EntityID: n, CID: cid})
		}
	}
	return rows, len(reps)
}
