package store

import (
	"context"
	"fmt"
	"strings"
)

// IndexKind selects which node kind a vector index covers.
type IndexKind int

const (
	ChunkIndex IndexKind = iota
	EntityIndex
	CommunityIndex
)

func (k IndexKind) prefix() string {
	switch k {
	case EntityIndex:
		return "nodeIndex_"
	case CommunityIndex:
		return "commIndex_"
	default:
		return "chunkIndex_"
	}
}

func (k IndexKind) property() string {
	switch k {
	case EntityIndex:
		return "evec"
	case CommunityIndex:
		return "svec"
	default:
		return "embedding"
	}
}

// VectorIndexName returns the index name for a kind and series. The
// series part is sanitized the same way everywhere, so build and query
// always agree on the name.
func VectorIndexName(kind IndexKind, series string) string {
	suffix := strings.TrimPrefix(seriesLabel(series), "S_")
	return kind.prefix() + suffix
}

// EnsureVectorIndex creates the cosine vector index for one kind and
// series if it does not exist. Index names, labels and dimensions
// cannot be parameterized in Cypher DDL, so they are interpolated after
// sanitization.
func (s *Store) EnsureVectorIndex(ctx context.Context, kind IndexKind, series string, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("ensure vector index: invalid dimensions %d", dims)
	}
	query := fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		VectorIndexName(kind, series), seriesLabel(series), kind.property(), dims)
	if err := s.runSchema(ctx, query); err != nil {
		return fmt.Errorf("ensure vector index %s: %w", VectorIndexName(kind, series), err)
	}
	return nil
}

// EntityVector carries one entity embedding to store.
type EntityVector struct {
	ID  string
	Vec []float32
}

// CommunityVector carries one community summary embedding to store.
type CommunityVector struct {
	CID   string
	Level int
	Vec   []float32
}

// WriteEntityVectors stores entity embeddings in batches.
func (s *Store) WriteEntityVectors(ctx context.Context, series string, rows []EntityVector) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := `
UNWIND $rows AS r
MATCH (e:Entity {id: r.id})
SET e.evec = r.vec
RETURN count(e) AS n`

	total := 0
	for _, b := range batches(len(rows), upsertBatchSize) {
		payload := make([]any, 0, b[1]-b[0])
		for _, r := range rows[b[0]:b[1]] {
			payload = append(payload, map[string]any{"id": r.ID, "vec": toFloat64s(r.Vec)})
		}
		res, err := s.RunCypher(ctx, query, map[string]any{"rows": payload})
		if err != nil {
			return total, fmt.Errorf("write entity vectors: %w", err)
		}
		total += firstCount(res)
	}
	return total, nil
}

// WriteCommunityVectors stores community summary embeddings in batches.
func (s *Store) WriteCommunityVectors(ctx context.Context, series string, rows []CommunityVector) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := `
UNWIND $rows AS r
MATCH (c:Community {series: $series, level: r.level, cid: r.cid})
SET c.svec = r.vec
RETURN count(c) AS n`

	total := 0
	for _, b := range batches(len(rows), upsertBatchSize) {
		payload := make([]any, 0, b[1]-b[0])
		for _, r := range rows[b[0]:b[1]] {
			payload = append(payload, map[string]any{
				"cid": r.CID, "level": r.Level, "vec": toFloat64s(r.Vec),
			})
		}
		res, err := s.RunCypher(ctx, query, map[string]any{"rows": payload, "series": series})
		if err != nil {
			return total, fmt.Errorf("write community vectors: %w", err)
		}
		total += firstCount(res)
	}
	return total, nil
}

// EntityHit is a scored entity returned by vector search.
type EntityHit struct {
	ID    string
	Name  string
	Desc  string
	Score float64
}

// CommunityHit is a scored community summary returned by vector search.
type CommunityHit struct {
	CID   string
	Level int
	Text  string
	Score float64
}

// QueryChunkIndex runs a cosine search over a series' chunk index.
func (s *Store) QueryChunkIndex(ctx context.Context, series string, vec []float32, k int) ([]ChunkHit, error) {
	rows, err := s.Read(ctx, `
CALL db.index.vector.queryNodes($index, $k, $vec) YIELD node, score
RETURN node.id AS cid, coalesce(node.doc, '') AS doc, coalesce(node.page, 0) AS page,
       node.text AS text, score
ORDER BY score DESC`,
		map[string]any{
			"index": VectorIndexName(ChunkIndex, series),
			"k":     k,
			"vec":   toFloat64s(vec),
		})
	if err != nil {
		return nil, fmt.Errorf("query chunk index: %w", err)
	}
	out := make([]ChunkHit, 0, len(rows))
	for _, row := range rows {
		out = append(out, ChunkHit{
			CID:   asString(row["cid"]),
			Doc:   asString(row["doc"]),
			Page:  int(asInt64(row["page"])),
			Text:  asString(row["text"]),
			Score: asFloat(row["score"]),
		})
	}
	return out, nil
}

// QueryEntityIndex runs a cosine search over a series' entity index.
func (s *Store) QueryEntityIndex(ctx context.Context, series string, vec []float32, k int) ([]EntityHit, error) {
	rows, err := s.Read(ctx, `
CALL db.index.vector.queryNodes($index, $k, $vec) YIELD node, score
RETURN node.id AS id, node.name AS name, coalesce(node.desc, '') AS desc, score
ORDER BY score DESC`,
		map[string]any{
			"index": VectorIndexName(EntityIndex, series),
			"k":     k,
			"vec":   toFloat64s(vec),
		})
	if err != nil {
		return nil, fmt.Errorf("query entity index: %w", err)
	}
	out := make([]EntityHit, 0, len(rows))
	for _, row := range rows {
		out = append(out, EntityHit{
			ID:    asString(row["id"]),
			Name:  asString(row["name"]),
			Desc:  asString(row["desc"]),
			Score: asFloat(row["score"]),
		})
	}
	return out, nil
}

// QueryCommunityIndex runs a cosine search over a series' community
// summary index.
func (s *Store) QueryCommunityIndex(ctx context.Context, series string, vec []float32, k int) ([]CommunityHit, error) {
	rows, err := s.Read(ctx, `
CALL db.index.vector.queryNodes($index, $k, $vec) YIELD node, score
RETURN node.cid AS cid, node.level AS level, coalesce(node.summary, '') AS text, score
ORDER BY score DESC`,
		map[string]any{
			"index": VectorIndexName(CommunityIndex, series),
			"k":     k,
			"vec":   toFloat64s(vec),
		})
	if err != nil {
		return nil, fmt.Errorf("query community index: %w", err)
	}
	out := make([]CommunityHit, 0, len(rows))
	for _, row := range rows {
		out = append(out, CommunityHit{
			CID:   asString(row["cid"]),
			Level: int(asInt64(row["level"])),
			Text:  asString(row["text"]),
			Score: asFloat(row["score"]),
		})
	}
	return out, nil
}

// KeywordChunks scores chunks by how many query keywords their text
// contains. It is the retrieval path used when no embedder is
// configured or the vector index cannot answer.
func (s *Store) KeywordChunks(ctx context.Context, series string, keywords []string, k int) ([]ChunkHit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	rows, err := s.Read(ctx, `
MATCH (c:Chunk {series: $series})
WITH c, size([kw IN $kws WHERE toLower(c.text) CONTAINS kw]) AS hits
WHERE hits > 0
RETURN c.id AS cid, coalesce(c.doc, '') AS doc, coalesce(c.page, 0) AS page,
       c.text AS text, toFloat(hits) / toFloat(size($kws)) AS score
ORDER BY score DESC, cid
LIMIT $k`,
		map[string]any{"series": series, "kws": lowered, "k": k})
	if err != nil {
		return nil, fmt.Errorf("keyword chunks: %w", err)
	}
	out := make([]ChunkHit, 0, len(rows))
	for _, row := range rows {
		out = append(out, ChunkHit{
			CID:   asString(row["cid"]),
			Doc:   asString(row["doc"]),
			Page:  int(asInt64(row["page"])),
			Text:  asString(row["text"]),
			Score: asFloat(row["score"]),
		})
	}
	return out, nil
}

// EntityTexts returns what the indexer embeds for each entity: the
// description when present, the name otherwise.
func (s *Store) EntityTexts(ctx context.Context, series string) ([]EntityText, error) {
	rows, err := s.Read(ctx, `
MATCH (e:Entity {series: $series})
RETURN e.id AS id,
       CASE WHEN coalesce(e.desc, '') <> '' THEN e.desc ELSE e.name END AS text
ORDER BY id`,
		map[string]any{"series": series})
	if err != nil {
		return nil, fmt.Errorf("entity texts: %w", err)
	}
	out := make([]EntityText, 0, len(rows))
	for _, row := range rows {
		out = append(out, EntityText{ID: asString(row["id"]), Text: asString(row["text"])})
	}
	return out, nil
}
