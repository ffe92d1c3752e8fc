package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rdahmani/graphrag/ids"
)

// seriesLabel returns the secondary node label that scopes a series.
// Vector indexes are declared against this label, which keeps each
// series' index physically separate and lets dimensions differ between
// series.
func seriesLabel(series string) string {
	return "S_" + strings.TrimPrefix(ids.IndexName(series), "idx_")
}

// UpsertEntities merges entity rows in batches. Existing nodes keep the
// longer description and the higher confidence; name and type follow
// the latest write; aliases and chunk ids are unioned with their caps
// re-applied.
func (s *Store) UpsertEntities(ctx context.Context, series string, rows []EntityRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UNWIND $rows AS r
MERGE (e:Entity {id: r.id})
ON CREATE SET
  e.series = r.series, e.name = r.name, e.type = r.type, e.desc = r.desc,
  e.aliases = r.aliases, e.cids = r.cids, e.conf = r.conf
ON MATCH SET
  e.name = r.name,
  e.type = r.type,
  e.desc = CASE WHEN size(coalesce(r.desc, '')) > size(coalesce(e.desc, ''))
           THEN r.desc ELSE e.desc END,
  e.conf = CASE WHEN coalesce(r.conf, 0.0) > coalesce(e.conf, 0.0)
           THEN r.conf ELSE e.conf END,
  e.aliases = reduce(acc = [], x IN coalesce(e.aliases, []) + coalesce(r.aliases, []) |
              CASE WHEN x IS NULL OR x IN acc THEN acc ELSE acc + x END)[0..%d],
  e.cids = reduce(acc = [], x IN coalesce(e.cids, []) + coalesce(r.cids, []) |
           CASE WHEN x IS NULL OR x IN acc THEN acc ELSE acc + x END)[0..%d]
SET e:%s
RETURN count(e) AS n`, maxAliases, maxCids, seriesLabel(series))

	total := 0
	for _, b := range batches(len(rows), upsertBatchSize) {
		payload := make([]any, 0, b[1]-b[0])
		for _, r := range rows[b[0]:b[1]] {
			payload = append(payload, r.toMap())
		}
		res, err := s.RunCypher(ctx, query, map[string]any{"rows": payload})
		if err != nil {
			return total, fmt.Errorf("upsert entities: %w", err)
		}
		total += firstCount(res)
	}
	return total, nil
}

// UpsertRelations merges relation rows in batches. Rows whose endpoints
// are not in the graph are dropped by the MATCH and do not fail the
// batch. Duplicates union chunk ids and keep the higher confidence.
func (s *Store) UpsertRelations(ctx context.Context, series string, rows []RelationRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UNWIND $rows AS r
MATCH (src:Entity {id: r.src_id})
MATCH (dst:Entity {id: r.dst_id})
MERGE (src)-[rel:REL {id: r.id}]->(dst)
ON CREATE SET
  rel.series = r.series, rel.pred = r.pred, rel.cids = r.cids, rel.conf = r.conf
ON MATCH SET
  rel.conf = CASE WHEN coalesce(r.conf, 0.0) > coalesce(rel.conf, 0.0)
             THEN r.conf ELSE rel.conf END,
  rel.cids = reduce(acc = [], x IN coalesce(rel.cids, []) + coalesce(r.cids, []) |
             CASE WHEN x IS NULL OR x IN acc THEN acc ELSE acc + x END)[0..%d]
RETURN count(rel) AS n`, maxCids)

	total := 0
	for _, b := range batches(len(rows), upsertBatchSize) {
		payload := make([]any, 0, b[1]-b[0])
		for _, r := range rows[b[0]:b[1]] {
			payload = append(payload, r.toMap())
		}
		res, err := s.RunCypher(ctx, query, map[string]any{"rows": payload})
		if err != nil {
			return total, fmt.Errorf("upsert relations: %w", err)
		}
		total += firstCount(res)
	}
	return total, nil
}

// UpsertChunks merges chunk rows in batches. A nil embedding leaves any
// previously stored vector in place.
func (s *Store) UpsertChunks(ctx context.Context, series string, rows []ChunkRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UNWIND $rows AS r
MERGE (c:Chunk {id: r.id})
SET c:%s,
    c.series = r.series, c.doc = r.doc, c.page = r.page,
    c.ord = r.ord, c.text = r.text,
    c.embedding = coalesce(r.vec, c.embedding)
RETURN count(c) AS n`, seriesLabel(series))

	total := 0
	for _, b := range batches(len(rows), upsertBatchSize) {
		payload := make([]any, 0, b[1]-b[0])
		for _, r := range rows[b[0]:b[1]] {
			payload = append(payload, r.toMap())
		}
		res, err := s.RunCypher(ctx, query, map[string]any{"rows": payload})
		if err != nil {
			return total, fmt.Errorf("upsert chunks: %w", err)
		}
		total += firstCount(res)
	}
	return total, nil
}

// LinkMentions connects entities to the chunks they were extracted
// from. Chunk ids not present in the graph are skipped.
func (s *Store) LinkMentions(ctx context.Context, series string, rows []EntityRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := `
UNWIND $rows AS r
MATCH (e:Entity {id: r.id})
UNWIND r.cids AS cid
MATCH (c:Chunk {id: cid})
MERGE (e)-[:MENTIONED_IN]->(c)
RETURN count(*) AS n`

	total := 0
	for _, b := range batches(len(rows), upsertBatchSize) {
		payload := make([]any, 0, b[1]-b[0])
		for _, r := range rows[b[0]:b[1]] {
			payload = append(payload, map[string]any{
				"id":   r.ID,
				"cids": toAnySlice(capStrings(r.CIDs, maxCids)),
			})
		}
		res, err := s.RunCypher(ctx, query, map[string]any{"rows": payload})
		if err != nil {
			return total, fmt.Errorf("link mentions: %w", err)
		}
		total += firstCount(res)
	}
	return total, nil
}

const streamPageSize = 1000

// StreamChunks walks a series' chunks in stable id order and hands each
// one to fn. Iteration stops at the first error fn returns.
func (s *Store) StreamChunks(ctx context.Context, series string, fn func(Chunk) error) error {
	query := `
MATCH (c:Chunk {series: $series})
RETURN c.id AS id, c.text AS text, coalesce(c.doc, '') AS doc,
       coalesce(c.page, 0) AS page, coalesce(c.ord, 0) AS ord
ORDER BY c.id SKIP $skip LIMIT $limit`

	for skip := 0; ; skip += streamPageSize {
		rows, err := s.Read(ctx, query, map[string]any{
			"series": series,
			"skip":   skip,
			"limit":  streamPageSize,
		})
		if err != nil {
			return fmt.Errorf("stream chunks: %w", err)
		}
		for _, row := range rows {
			c := Chunk{
				ID:    asString(row["id"]),
				Text:  asString(row["text"]),
				Doc:   asString(row["doc"]),
				Page:  int(asInt64(row["page"])),
				Order: int(asInt64(row["ord"])),
			}
			if err := fn(c); err != nil {
				return err
			}
		}
		if len(rows) < streamPageSize {
			return nil
		}
	}
}

// CountEntities returns the number of entities in a series.
func (s *Store) CountEntities(ctx context.Context, series string) (int, error) {
	rows, err := s.Read(ctx, `MATCH (e:Entity {series: $series}) RETURN count(e) AS n`,
		map[string]any{"series": series})
	if err != nil {
		return 0, err
	}
	return firstCount(rows), nil
}

// CountRelations returns the number of relations in a series.
func (s *Store) CountRelations(ctx context.Context, series string) (int, error) {
	rows, err := s.Read(ctx,
		`MATCH (:Entity {series: $series})-[r:REL {series: $series}]->(:Entity) RETURN count(r) AS n`,
		map[string]any{"series": series})
	if err != nil {
		return 0, err
	}
	return firstCount(rows), nil
}

// CountChunks returns the number of chunks in a series.
func (s *Store) CountChunks(ctx context.Context, series string) (int, error) {
	rows, err := s.Read(ctx, `MATCH (c:Chunk {series: $series}) RETURN count(c) AS n`,
		map[string]any{"series": series})
	if err != nil {
		return 0, err
	}
	return firstCount(rows), nil
}

// DeleteSeries removes every node and relationship belonging to a
// series and returns how many nodes were deleted.
func (s *Store) DeleteSeries(ctx context.Context, series string) (int, error) {
	query := `
MATCH (n {series: $series})
WITH collect(n) AS nodes
FOREACH (n IN nodes | DETACH DELETE n)
RETURN size(nodes) AS n`
	res, err := s.RunCypher(ctx, query, map[string]any{"series": series})
	if err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}
	return firstCount(res), nil
}
