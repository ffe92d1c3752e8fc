package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
)

// seedLimit bounds how many community summaries the seed step keeps
// before mapping.
const seedLimit = 12

// maxRawPartial caps how much of an unparseable map response is kept
// as the fallback partial answer.
const maxRawPartial = 2000

// partial is one mapped community answer, kept for reduce and for
// citation building.
type partial struct {
	CID        string
	Level      int
	Text       string
	Confidence float64
	Evidence   []string
}

// graphAnswer is the global mode: score community summaries against
// the question, map each relevant one to a partial answer in parallel,
// then reduce the partials into one final answer with citations.
func (e *Engine) graphAnswer(ctx context.Context, series, question string, opts Options) (*AnswerBundle, error) {
	bundle := &AnswerBundle{ModeUsed: ModeGraph, Citations: []Citation{}}

	cands, err := e.Store.Candidates(ctx, series, opts.Levels)
	if err != nil {
		return nil, fmt.Errorf("graph seed: %w", err)
	}
	if len(cands) == 0 {
		bundle.Warnings = append(bundle.Warnings, "no community summaries; build the series first")
		return bundle, nil
	}

	qvec := e.embedQuery(ctx, question)
	seeds := rankCandidates(question, qvec, cands)
	if len(seeds) > seedLimit {
		seeds = seeds[:seedLimit]
	}
	if n := opts.Budgets.QFSMap.MaxItems; len(seeds) > n {
		seeds = seeds[:n]
	}

	partials, usage, warnings := e.mapCandidates(ctx, question, seeds, opts.Budgets.QFSMap)
	bundle.TokenUsage = usage
	bundle.Warnings = append(bundle.Warnings, warnings...)
	if len(partials) == 0 {
		bundle.Warnings = append(bundle.Warnings, "no partial answers produced")
		return bundle, nil
	}
	if n := opts.Budgets.QFSReduce.MaxItems; len(partials) > n {
		partials = partials[:n]
	}

	answer, used, conf, err := e.reduce(ctx, question, partials, opts.Budgets.QFSReduce, &bundle.TokenUsage)
	if err != nil {
		return nil, fmt.Errorf("graph reduce: %w", err)
	}
	bundle.Answer = answer
	bundle.Citations = citePartials(partials, used)
	bundle.Debug = map[string]any{
		"candidates": len(cands),
		"partials":   len(partials),
		"confidence": conf,
	}
	return bundle, nil
}

// rankCandidates orders summaries by cosine similarity to the question
// vector, falling back to keyword overlap when either vector is
// missing.
func rankCandidates(question string, qvec []float32, cands []store.Candidate) []store.Candidate {
	qtoks := overlapTokens(question)
	type scored struct {
		cand  store.Candidate
		score float64
	}
	out := make([]scored, 0, len(cands))
	for _, c := range cands {
		s := 0.0
		if qvec != nil && len(c.Vec) == len(qvec) && len(c.Vec) > 0 {
			s = cosine(qvec, c.Vec)
		} else {
			s = keywordOverlap(qtoks, c.Text)
		}
		out = append(out, scored{cand: c, score: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].cand.CID < out[j].cand.CID
	})
	ranked := make([]store.Candidate, len(out))
	for i, s := range out {
		ranked[i] = s.cand
	}
	return ranked
}

// mapCandidates runs the map step over a bounded worker pool. A failed
// candidate is skipped with a warning; unparseable output degrades to
// a low-confidence raw partial.
func (e *Engine) mapCandidates(ctx context.Context, question string, seeds []store.Candidate, budget Budget) ([]partial, TokenUsage, []string) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		partials []partial
		usage    TokenUsage
		warnings []string
	)
	sem := make(chan struct{}, e.workers())

	for _, seed := range seeds {
		seed := seed
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			prompt := llm.RenderTemplate(qfsMapPrompt, map[string]string{
				"query":   question,
				"summary": e.Budgeter.Fit(seed.Text, budget.Prompt/2),
			})
			prompt = e.Budgeter.Fit(prompt, budget.Prompt)

			resp, err := e.chat(ctx, prompt, budget.Response)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("qfs map failed", "cid", seed.CID, "error", err)
				warnings = append(warnings, fmt.Sprintf("map %s: %v", seed.CID, err))
				return
			}
			usage.add(resp.PromptTokens, resp.CompletionTokens)

			p := parsePartial(resp.Content)
			p.CID = seed.CID
			p.Level = seed.Level
			if strings.TrimSpace(p.Text) == "" {
				return // off-topic summary, nothing to keep
			}
			partials = append(partials, p)
		}()
	}
	wg.Wait()

	sort.Slice(partials, func(i, j int) bool {
		if partials[i].Confidence != partials[j].Confidence {
			return partials[i].Confidence > partials[j].Confidence
		}
		return partials[i].CID < partials[j].CID
	})
	sort.Strings(warnings)
	return partials, usage, warnings
}

// parsePartial reads one map response. When the provider ignored the
// JSON contract, the raw text becomes a low-confidence partial rather
// than a lost candidate.
func parsePartial(raw string) partial {
	obj, err := llm.ExtractObject(raw)
	if err != nil {
		raw = strings.TrimSpace(raw)
		if len(raw) > maxRawPartial {
			raw = raw[:maxRawPartial]
		}
		return partial{Text: raw, Confidence: 0.4}
	}
	return partial{
		Text:       llm.FirstString(obj, "partial_answer", "answer", "output"),
		Confidence: clamp01(llm.FloatOr(obj, "confidence", 0.5)),
		Evidence:   llm.StringList(obj, "evidence"),
	}
}

// reduce fuses the partials into one answer. The reduce call retries
// once on provider failure; a parse failure keeps the raw text.
func (e *Engine) reduce(ctx context.Context, question string, partials []partial, budget Budget, usage *TokenUsage) (answer string, used []string, conf float64, err error) {
	share := budget.Prompt / len(partials)
	var b strings.Builder
	for _, p := range partials {
		fmt.Fprintf(&b, "[%s @L%d] %s\n", p.CID, p.Level, e.Budgeter.Fit(p.Text, share))
	}

	prompt := llm.RenderTemplate(qfsReducePrompt, map[string]string{
		"query":          question,
		"partials_block": b.String(),
	})

	resp, err := e.chat(ctx, prompt, budget.Response)
	if err != nil {
		slog.Warn("qfs reduce retrying", "error", err)
		resp, err = e.chat(ctx, prompt, budget.Response)
	}
	if err != nil {
		return "", nil, 0, err
	}
	usage.add(resp.PromptTokens, resp.CompletionTokens)

	obj, perr := llm.ExtractObject(resp.Content)
	if perr != nil {
		return strings.TrimSpace(resp.Content), nil, 0.5, nil
	}
	answer = llm.FirstString(obj, "answer", "final_answer")
	if answer == "" {
		answer = strings.TrimSpace(resp.Content)
	}
	return answer, llm.StringList(obj, "used"), clamp01(llm.FloatOr(obj, "confidence", 0.6)), nil
}

// citePartials turns the used partials into citations: the id plus the
// first sentence of the partial, capped at 280 characters.
func citePartials(partials []partial, used []string) []Citation {
	byID := make(map[string]partial, len(partials))
	for _, p := range partials {
		byID[p.CID] = p
	}
	cites := make([]Citation, 0, len(used))
	for _, id := range used {
		// Models echo either the bare id or the "id @Lℓ" label form.
		id = strings.TrimSpace(id)
		if i := strings.IndexByte(id, '@'); i >= 0 {
			id = strings.TrimSpace(id[:i])
		}
		p, ok := byID[id]
		if !ok {
			continue
		}
		cites = append(cites, Citation{ID: id, Snippet: firstSentence(p.Text, 280)})
	}
	return cites
}

func firstSentence(text string, max int) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, ". "); i >= 0 {
		s = s[:i+1]
	}
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// embedQuery returns the question vector, or nil when no embedder is
// configured or the call failed; callers then score by keywords.
func (e *Engine) embedQuery(ctx context.Context, question string) []float32 {
	if e.Embedder == nil {
		return nil
	}
	vecs, err := e.Embedder.Embed(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		slog.Warn("query embedding failed, scoring by keywords", "error", err)
		return nil
	}
	return vecs[0]
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// overlapTokens lowercases and keeps tokens longer than two runes.
func overlapTokens(text string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(text)) {
		t = strings.Trim(t, ".,;:!?()[]\"'")
		if len([]rune(t)) > 2 {
			out[t] = true
		}
	}
	return out
}

// keywordOverlap is the vector-less candidate score: the share of
// question tokens present in the text.
func keywordOverlap(qtoks map[string]bool, text string) float64 {
	if len(qtoks) == 0 {
		return 0
	}
	ttoks := overlapTokens(text)
	hits := 0
	for t := range qtoks {
		if ttoks[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(qtoks))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
