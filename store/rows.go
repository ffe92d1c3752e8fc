package store

// Row types passed between the build/query layers and the database.
// Writers cap list and text fields here so a runaway extraction cannot
// bloat a node.

const (
	maxAliases = 20
	maxCids    = 200
	maxDesc    = 500
)

// EntityRow is one entity upsert payload.
type EntityRow struct {
	ID      string
	Series  string
	Name    string
	Type    string
	Aliases []string
	Desc    string
	CIDs    []string
	Conf    float64
}

// RelationRow is one relation upsert payload.
type RelationRow struct {
	ID     string
	Series string
	SrcID  string
	DstID  string
	Pred   string
	CIDs   []string
	Conf   float64
}

// ChunkRow is one chunk upsert payload. Embedding may be nil when the
// chunk is stored before vectors are computed.
type ChunkRow struct {
	ID        string
	Series    string
	Doc       string
	Page      int
	Order     int
	Text      string
	Embedding []float32
}

// Chunk is the read-only view streamed to the build pipeline.
type Chunk struct {
	ID    string
	Text  string
	Doc   string
	Page  int
	Order int
}

// ChunkHit is a scored chunk returned by vector or keyword retrieval.
type ChunkHit struct {
	CID   string
	Doc   string
	Page  int
	Text  string
	Score float64
}

// SeedEntity is a keyword-matched entity used to seed path retrieval.
type SeedEntity struct {
	ID   string
	Name string
	Desc string
	Conf float64
}

// PathNode and PathEdge are the elements of a retrieved graph path.
type PathNode struct {
	ID   string
	Name string
	Conf float64
}

type PathEdge struct {
	ID   string
	Pred string
	Conf float64
}

// Path is an undirected traversal between two seed entities.
type Path struct {
	Nodes []PathNode
	Edges []PathEdge
	Hops  int
}

// Candidate is a community summary considered by query-focused
// summarization. Vec is nil when the summary has not been indexed.
type Candidate struct {
	CID   string
	Level int
	Text  string
	Vec   []float32
}

// Member is a community member row used for summarization, ordered by
// degree as a centrality proxy.
type Member struct {
	Name   string
	Type   string
	Desc   string
	Degree int
}

// EntityText pairs an entity with the text the indexer embeds for it.
type EntityText struct {
	ID   string
	Text string
}

// Membership assigns one entity to a community at some level.
type Membership struct {
	EntityID string
	CID      string
}

// ProjectionEdge is one weighted edge of the per-series projection the
// community detector runs on.
type ProjectionEdge struct {
	Src    string
	Dst    string
	Weight float64
}

func capStrings(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}

func capText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (r EntityRow) toMap() map[string]any {
	return map[string]any{
		"id":      r.ID,
		"series":  r.Series,
		"name":    r.Name,
		"type":    r.Type,
		"aliases": toAnySlice(capStrings(r.Aliases, maxAliases)),
		"desc":    capText(r.Desc, maxDesc),
		"cids":    toAnySlice(capStrings(r.CIDs, maxCids)),
		"conf":    r.Conf,
	}
}

func (r RelationRow) toMap() map[string]any {
	return map[string]any{
		"id":     r.ID,
		"series": r.Series,
		"src_id": r.SrcID,
		"dst_id": r.DstID,
		"pred":   r.Pred,
		"cids":   toAnySlice(capStrings(r.CIDs, maxCids)),
		"conf":   r.Conf,
	}
}

func (r ChunkRow) toMap() map[string]any {
	m := map[string]any{
		"id":     r.ID,
		"series": r.Series,
		"doc":    r.Doc,
		"page":   r.Page,
		"ord":    r.Order,
		"text":   r.Text,
	}
	if r.Embedding != nil {
		m["vec"] = toFloat64s(r.Embedding)
	} else {
		m["vec"] = nil
	}
	return m
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// Conversions from driver values. Neo4j returns int64 for integers and
// []any for lists; absent properties come back as nil.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asFloat32s(v any) []float32 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, len(items))
	for i, it := range items {
		out[i] = float32(asFloat(it))
	}
	return out
}
