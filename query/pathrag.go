package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
)

const (
	maxKeywords   = 8
	maxPairIDs    = 30
	pathsPerPair  = 6
	maxTotalPaths = 500
	minKeywordLen = 3
)

var keywordPattern = regexp.MustCompile(`[A-Za-zÀ-ÿ0-9\-]+`)

// Keywords extracts the lowercased query tokens used to seed path
// retrieval: letters, digits and hyphens, at least three runes, at
// most eight distinct tokens in question order.
func Keywords(question string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range keywordPattern.FindAllString(strings.ToLower(question), -1) {
		if len([]rune(t)) < minKeywordLen || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// scoredPath pairs a retrieved path with its flow score.
type scoredPath struct {
	path  store.Path
	score float64
}

// pathScore decays with length and averages the confidence of every
// node and edge on the path.
func pathScore(p store.Path, alpha float64) float64 {
	if len(p.Edges) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range p.Nodes {
		sum += n.Conf
	}
	for _, e := range p.Edges {
		sum += e.Conf
	}
	mean := sum / float64(len(p.Nodes)+len(p.Edges))
	return math.Pow(alpha, float64(len(p.Edges)-1)) * mean
}

// pathAnswer is the relational mode: seed entities by keyword, collect
// bounded paths between every seed pair, prune by flow score, and ask
// the provider over the surviving paths.
func (e *Engine) pathAnswer(ctx context.Context, series, question string, opts Options) (*AnswerBundle, error) {
	bundle := &AnswerBundle{ModeUsed: ModePath, Citations: []Citation{}}

	kws := Keywords(question)
	seeds, err := e.Store.SeedEntities(ctx, series, kws)
	if err != nil {
		return nil, fmt.Errorf("path seed: %w", err)
	}
	seeds = rankSeeds(kws, seeds, opts.N)

	paths := e.collectPaths(ctx, series, seeds, opts)
	if len(paths) == 0 {
		if !opts.DisablePathFallback {
			slog.Info("no paths survived pruning, falling back to vector", "series", series)
			fb, err := e.vectorAnswer(ctx, series, question, opts)
			if err != nil {
				return nil, err
			}
			if fb.Debug == nil {
				fb.Debug = map[string]any{}
			}
			fb.Debug["path_fallback"] = true
			return fb, nil
		}
		bundle.Warnings = append(bundle.Warnings, "no paths found for the question")
		return bundle, nil
	}
	if len(paths) > opts.K {
		paths = paths[:opts.K]
	}

	prompt := llm.RenderTemplate(pathPrompt, map[string]string{
		"query":       question,
		"paths_block": renderPaths(paths),
	})
	prompt = e.Budgeter.Fit(prompt, opts.Budgets.Paths.Prompt)

	resp, err := e.chat(ctx, prompt, opts.Budgets.Paths.Response)
	if err != nil {
		return nil, fmt.Errorf("path answer: %w", err)
	}
	bundle.TokenUsage.add(resp.PromptTokens, resp.CompletionTokens)
	bundle.Answer = strings.TrimSpace(resp.Content)

	for _, sp := range paths {
		nodeIDs := make([]string, 0, len(sp.path.Nodes))
		for _, n := range sp.path.Nodes {
			nodeIDs = append(nodeIDs, n.ID)
		}
		edgeIDs := make([]string, 0, len(sp.path.Edges))
		for _, ed := range sp.path.Edges {
			edgeIDs = append(edgeIDs, ed.ID)
		}
		bundle.Citations = append(bundle.Citations, Citation{
			PathScore: sp.score,
			NodeIDs:   nodeIDs,
			EdgeIDs:   edgeIDs,
		})
	}
	bundle.Debug = map[string]any{
		"keywords": kws,
		"seeds":    len(seeds),
		"paths":    len(paths),
	}
	return bundle, nil
}

// rankSeeds rescoring: keyword overlap over name and description plus
// the stored confidence, top n kept.
func rankSeeds(kws []string, seeds []store.SeedEntity, n int) []store.SeedEntity {
	type scored struct {
		seed  store.SeedEntity
		score float64
	}
	out := make([]scored, 0, len(seeds))
	for _, s := range seeds {
		hay := strings.ToLower(s.Name + " " + s.Desc)
		hits := 0
		for _, kw := range kws {
			if strings.Contains(hay, kw) {
				hits++
			}
		}
		out = append(out, scored{seed: s, score: float64(hits) + s.Conf})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].seed.ID < out[j].seed.ID
	})
	if len(out) > n {
		out = out[:n]
	}
	ranked := make([]store.SeedEntity, len(out))
	for i, s := range out {
		ranked[i] = s.seed
	}
	return ranked
}

// collectPaths walks every unordered seed pair, keeps the paths whose
// nodes and edges clear theta, scores them, and returns them sorted by
// score descending. Pair count, paths per pair and total paths are all
// capped.
func (e *Engine) collectPaths(ctx context.Context, series string, seeds []store.SeedEntity, opts Options) []scoredPath {
	ids := make([]string, 0, len(seeds))
	for _, s := range seeds {
		ids = append(ids, s.ID)
	}
	if len(ids) > maxPairIDs {
		ids = ids[:maxPairIDs]
	}

	var out []scoredPath
	for i := 0; i < len(ids) && len(out) < maxTotalPaths; i++ {
		for j := i + 1; j < len(ids) && len(out) < maxTotalPaths; j++ {
			paths, err := e.Store.CollectPaths(ctx, series, ids[i], ids[j], opts.MaxHops, opts.Theta, pathsPerPair)
			if err != nil {
				slog.Warn("path collection failed", "src", ids[i], "dst", ids[j], "error", err)
				continue
			}
			for _, p := range paths {
				if s := pathScore(p, opts.Alpha); s > 0 {
					out = append(out, scoredPath{path: p, score: s})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// renderPaths enumerates paths ascending by score, so the most
// reliable path sits closest to the question in the prompt.
func renderPaths(paths []scoredPath) string {
	asc := make([]scoredPath, len(paths))
	copy(asc, paths)
	sort.SliceStable(asc, func(i, j int) bool { return asc[i].score < asc[j].score })

	var b strings.Builder
	for i, sp := range asc {
		steps := make([]string, 0, len(sp.path.Edges))
		for k, ed := range sp.path.Edges {
			if k+1 >= len(sp.path.Nodes) {
				break
			}
			steps = append(steps, fmt.Sprintf("%s --[%s]--> %s",
				sp.path.Nodes[k].Name, ed.Pred, sp.path.Nodes[k+1].Name))
		}
		fmt.Fprintf(&b, "(%d)  • %s\n", i+1, strings.Join(steps, " ; "))
	}
	return b.String()
}
