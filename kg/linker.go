package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rdahmani/graphrag/ids"
	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
)

// Linker deduplicates entities that canonicalization missed: groups by
// blocking fingerprint, asks the chat provider to pick a canonical
// winner per group (with a NONE option), and rewrites relations to the
// surviving ids.
type Linker struct {
	Provider llm.Provider
	Model    string
}

func NewLinker(provider llm.Provider, model string) *Linker {
	return &Linker{Provider: provider, Model: model}
}

type linkCandidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Desc string `json:"desc"`
}

// Run merges duplicate entities and remaps edges. Provider failures on
// a group are conservative: the group is kept unmerged and reported in
// warnings. Output rows are sorted by id, aliases and cids sorted, so
// the result is stable for fixed provider responses.
func (l *Linker) Run(ctx context.Context, series string, nodes []store.EntityRow, edges []store.RelationRow) ([]store.EntityRow, []store.RelationRow, []string) {
	groups := make(map[string][]store.EntityRow)
	for _, n := range nodes {
		fp := ids.Fingerprint(n.Name)
		groups[fp] = append(groups[fp], n)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	idMap := make(map[string]string, len(nodes))
	outNodes := make([]store.EntityRow, 0, len(nodes))
	var warnings []string

	for _, fp := range keys {
		group := groups[fp]
		if len(group) == 1 {
			idMap[group[0].ID] = group[0].ID
			outNodes = append(outNodes, group[0])
			continue
		}

		winner, err := l.choose(ctx, group)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("link %q: %v", fp, err))
			winner = "NONE"
		}
		if winner == "NONE" {
			for _, g := range group {
				idMap[g.ID] = g.ID
				outNodes = append(outNodes, g)
			}
			continue
		}

		canon := group[0]
		for _, g := range group {
			if g.ID == winner {
				canon = g
				break
			}
		}
		aliases := append([]string(nil), canon.Aliases...)
		var cids []string
		for _, g := range group {
			if g.ID != canon.ID {
				aliases = append(aliases, g.Name)
			}
			cids = append(cids, g.CIDs...)
			idMap[g.ID] = canon.ID
		}
		canon.Aliases = capSlice(sortedUnique(aliases), 20)
		canon.CIDs = sortedUnique(cids)
		outNodes = append(outNodes, canon)
	}

	outEdges := l.remapEdges(series, edges, idMap)

	sort.Slice(outNodes, func(i, j int) bool { return outNodes[i].ID < outNodes[j].ID })
	return outNodes, outEdges, warnings
}

// choose builds the multi-choice prompt for one fingerprint group and
// returns the winning id, or "NONE".
func (l *Linker) choose(ctx context.Context, group []store.EntityRow) (string, error) {
	cands := make([]linkCandidate, 0, len(group))
	for _, g := range group {
		cands = append(cands, linkCandidate{
			ID:   g.ID,
			Name: g.Name,
			Type: g.Type,
			Desc: truncateRunes(g.Desc, 160),
		})
	}
	mentionJSON, _ := json.Marshal(cands[0])
	candsJSON, _ := json.MarshalIndent(cands, "", "  ")

	prompt := llm.RenderTemplate(linkerPrompt, map[string]string{
		"mention":    string(mentionJSON),
		"candidates": string(candsJSON),
	})
	resp, err := l.Provider.Chat(ctx, llm.ChatRequest{
		Model:    l.Model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	obj, err := llm.ExtractObject(resp.Content)
	if err != nil {
		return "NONE", nil
	}
	winner := llm.FirstString(obj, "winner")
	if winner == "" {
		return "NONE", nil
	}
	return winner, nil
}

// remapEdges rewrites edge endpoints through the id map, recomputes
// ids, and collapses duplicates that the merge produced.
func (l *Linker) remapEdges(series string, edges []store.RelationRow, idMap map[string]string) []store.RelationRow {
	out := make([]store.RelationRow, 0, len(edges))
	index := make(map[string]int, len(edges))

	for _, e := range edges {
		src := e.SrcID
		if mapped, ok := idMap[src]; ok {
			src = mapped
		}
		dst := e.DstID
		if mapped, ok := idMap[dst]; ok {
			dst = mapped
		}
		key := src + "|" + e.Pred + "|" + dst
		if i, ok := index[key]; ok {
			row := &out[i]
			row.CIDs = sortedUnique(append(row.CIDs, e.CIDs...))
			if e.Conf > row.Conf {
				row.Conf = e.Conf
			}
			continue
		}
		index[key] = len(out)
		out = append(out, store.RelationRow{
			ID:     ids.RelationID(series, src, e.Pred, dst),
			Series: series,
			SrcID:  src,
			DstID:  dst,
			Pred:   e.Pred,
			CIDs:   sortedUnique(e.CIDs),
			Conf:   e.Conf,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func capSlice(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
