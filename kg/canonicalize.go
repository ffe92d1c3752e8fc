package kg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rdahmani/graphrag/ids"
	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
	"github.com/rdahmani/graphrag/tokens"
)

// ErrNoChunks is returned when a series has nothing to extract from.
var ErrNoChunks = errors.New("kg: series has no chunks")

const (
	defaultMinConf   = 0.35
	defaultMaxCtx    = 1200
	defaultWorkers   = 8
	defaultLevels    = 3
	defaultResolve   = 1.2
	defaultMaxMember = 40
)

// Canonicalizer turns raw chunks into entity and relation rows via LLM
// extraction. It never writes to the store; accumulated rows go through
// the EntityLinker and then to GraphStore upserts.
type Canonicalizer struct {
	Store    *store.Store
	Provider llm.Provider
	Budgeter *tokens.Budgeter
	Model    string

	MinConf          float64
	MaxContextTokens int
	Workers          int
}

func NewCanonicalizer(st *store.Store, provider llm.Provider, budgeter *tokens.Budgeter, model string) *Canonicalizer {
	return &Canonicalizer{
		Store:            st,
		Provider:         provider,
		Budgeter:         budgeter,
		Model:            model,
		MinConf:          defaultMinConf,
		MaxContextTokens: defaultMaxCtx,
		Workers:          defaultWorkers,
	}
}

type rawEntity struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Desc    string   `json:"desc"`
	Aliases []string `json:"aliases"`
	Conf    float64  `json:"conf"`
}

type rawRelation struct {
	Src  string  `json:"src"`
	Dst  string  `json:"dst"`
	Pred string  `json:"pred"`
	Conf float64 `json:"conf"`
}

type extraction struct {
	Entities  []rawEntity   `json:"entities"`
	Relations []rawRelation `json:"relations"`
}

// Run streams the series' chunks through the extraction prompt with a
// bounded worker pool and merges the per-chunk results in stream order,
// so the output is deterministic for fixed provider responses. Failed
// chunks are skipped and reported in warnings.
func (c *Canonicalizer) Run(ctx context.Context, series string) ([]store.EntityRow, []store.RelationRow, []string, error) {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		warnings []string
	)
	results := make(map[int]extraction)
	cidByIdx := make(map[int]string)
	seq := 0

	err := c.Store.StreamChunks(ctx, series, func(ch store.Chunk) error {
		if strings.TrimSpace(ch.Text) == "" {
			return nil
		}
		idx := seq
		seq++
		cidByIdx[idx] = ch.ID

		wg.Add(1)
		sem <- struct{}{}
		go func(ch store.Chunk, idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			ex, parsed, err := c.extract(ctx, series, ch)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				warnings = append(warnings, fmt.Sprintf("canonicalize %s: %v", ch.ID, err))
			case !parsed:
				warnings = append(warnings, fmt.Sprintf("canonicalize %s: unparseable output, extraction dropped", ch.ID))
			default:
				results[idx] = ex
			}
		}(ch, idx)
		return ctx.Err()
	})
	wg.Wait()
	if err != nil {
		return nil, nil, warnings, err
	}
	if seq == 0 {
		return nil, nil, warnings, ErrNoChunks
	}

	acc := newAccumulator(series, c.MinConf)
	for i := 0; i < seq; i++ {
		ex, ok := results[i]
		if !ok {
			continue
		}
		acc.add(cidByIdx[i], ex)
	}
	nodes, edges := acc.finish()
	sort.Strings(warnings)
	return nodes, edges, warnings, nil
}

// extract runs one chunk through the prompt. A response that cannot be
// parsed gets a single stricter retry; if that also fails, the chunk
// contributes an empty extraction.
func (c *Canonicalizer) extract(ctx context.Context, series string, ch store.Chunk) (extraction, bool, error) {
	prompt := llm.RenderTemplate(canonicalizePrompt, map[string]string{
		"series":     series,
		"cid":        ch.ID,
		"chunk_text": c.Budgeter.Fit(ch.Text, c.MaxContextTokens),
	})

	var ex extraction
	raw, err := c.ask(ctx, prompt)
	if err != nil {
		return ex, false, err
	}
	if parseExtraction(raw, &ex) {
		return ex, true, nil
	}

	raw, err = c.ask(ctx, prompt+strictSuffix)
	if err != nil {
		return ex, false, err
	}
	if parseExtraction(raw, &ex) {
		return ex, true, nil
	}
	return extraction{}, false, nil
}

func (c *Canonicalizer) ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Provider.Chat(ctx, llm.ChatRequest{
		Model:    c.Model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func parseExtraction(raw string, out *extraction) bool {
	span, err := llm.ExtractJSON(raw)
	if err != nil {
		return false
	}
	var ex extraction
	if err := json.Unmarshal([]byte(span), &ex); err != nil {
		return false
	}
	*out = ex
	return true
}

// accumulator merges per-chunk extractions into deduplicated entity and
// relation rows. Entities collapse on (name, type) case-insensitively;
// relations collapse on (src_id, pred, dst_id). Relation endpoints take
// the type already observed for that entity name, or "concept".
type accumulator struct {
	series  string
	minConf float64

	nodes   []store.EntityRow
	nodeIdx map[string]int
	typeBy  map[string]string

	edges   []store.RelationRow
	edgeIdx map[string]int
}

func newAccumulator(series string, minConf float64) *accumulator {
	return &accumulator{
		series:  series,
		minConf: minConf,
		nodeIdx: make(map[string]int),
		typeBy:  make(map[string]string),
		edgeIdx: make(map[string]int),
	}
}

func (a *accumulator) add(cid string, ex extraction) {
	for _, e := range ex.Entities {
		name := strings.TrimSpace(e.Name)
		typ := strings.TrimSpace(e.Type)
		conf := clamp01(e.Conf)
		if name == "" || typ == "" || conf < a.minConf {
			continue
		}
		nameKey := strings.ToLower(name)
		key := nameKey + "\x00" + strings.ToLower(typ)
		if _, ok := a.typeBy[nameKey]; !ok {
			a.typeBy[nameKey] = typ
		}
		if i, ok := a.nodeIdx[key]; ok {
			row := &a.nodes[i]
			row.Aliases = appendMissing(row.Aliases, e.Aliases...)
			row.CIDs = appendMissing(row.CIDs, cid)
			if conf > row.Conf {
				row.Conf = conf
			}
			continue
		}
		a.nodeIdx[key] = len(a.nodes)
		a.nodes = append(a.nodes, store.EntityRow{
			ID:      ids.NodeID(a.series, name, typ),
			Series:  a.series,
			Name:    name,
			Type:    typ,
			Aliases: appendMissing(nil, e.Aliases...),
			Desc:    e.Desc,
			CIDs:    []string{cid},
			Conf:    conf,
		})
	}

	for _, r := range ex.Relations {
		src := strings.TrimSpace(r.Src)
		dst := strings.TrimSpace(r.Dst)
		pred := strings.TrimSpace(r.Pred)
		conf := clamp01(r.Conf)
		if src == "" || dst == "" || pred == "" || conf < a.minConf {
			continue
		}
		srcID := ids.NodeID(a.series, src, a.typeOf(src))
		dstID := ids.NodeID(a.series, dst, a.typeOf(dst))
		key := srcID + "|" + pred + "|" + dstID
		if i, ok := a.edgeIdx[key]; ok {
			row := &a.edges[i]
			row.CIDs = appendMissing(row.CIDs, cid)
			if conf > row.Conf {
				row.Conf = conf
			}
			continue
		}
		a.edgeIdx[key] = len(a.edges)
		a.edges = append(a.edges, store.RelationRow{
			ID:     ids.RelationID(a.series, srcID, pred, dstID),
			Series: a.series,
			SrcID:  srcID,
			DstID:  dstID,
			Pred:   pred,
			CIDs:   []string{cid},
			Conf:   conf,
		})
	}
}

func (a *accumulator) typeOf(name string) string {
	if t, ok := a.typeBy[strings.ToLower(name)]; ok {
		return t
	}
	return "concept"
}

func (a *accumulator) finish() ([]store.EntityRow, []store.RelationRow) {
	sort.Slice(a.nodes, func(i, j int) bool { return a.nodes[i].ID < a.nodes[j].ID })
	sort.Slice(a.edges, func(i, j int) bool { return a.edges[i].ID < a.edges[j].ID })
	return a.nodes, a.edges
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

// appendMissing appends values not already present, preserving order
// and skipping empties.
func appendMissing(dst []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		found := false
		for _, have := range dst {
			if have == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
