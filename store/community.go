package store

import (
	"context"
	"fmt"
)

// Projection returns the entity ids and weighted relation edges of a
// series, which is the graph the community detector partitions.
func (s *Store) Projection(ctx context.Context, series string) ([]string, []ProjectionEdge, error) {
	nodeRows, err := s.Read(ctx,
		`MATCH (e:Entity {series: $series}) RETURN e.id AS id ORDER BY id`,
		map[string]any{"series": series})
	if err != nil {
		return nil, nil, fmt.Errorf("projection nodes: %w", err)
	}
	nodes := make([]string, 0, len(nodeRows))
	for _, row := range nodeRows {
		nodes = append(nodes, asString(row["id"]))
	}

	edgeRows, err := s.Read(ctx, `
MATCH (a:Entity {series: $series})-[r:REL {series: $series}]->(b:Entity {series: $series})
RETURN a.id AS src, b.id AS dst, coalesce(r.conf, 1.0) AS w`,
		map[string]any{"series": series})
	if err != nil {
		return nil, nil, fmt.Errorf("projection edges: %w", err)
	}
	edges := make([]ProjectionEdge, 0, len(edgeRows))
	for _, row := range edgeRows {
		edges = append(edges, ProjectionEdge{
			Src:    asString(row["src"]),
			Dst:    asString(row["dst"]),
			Weight: asFloat(row["w"]),
		})
	}
	return nodes, edges, nil
}

// ClearLevel drops every community node of a series at one level so the
// level can be rebuilt from scratch.
func (s *Store) ClearLevel(ctx context.Context, series string, level int) error {
	_, err := s.RunCypher(ctx,
		`MATCH (c:Community {series: $series, level: $level}) DETACH DELETE c`,
		map[string]any{"series": series, "level": level})
	if err != nil {
		return fmt.Errorf("clear level %d: %w", level, err)
	}
	return nil
}

// WriteMemberships creates the community nodes of one level and links
// each entity to its community.
func (s *Store) WriteMemberships(ctx context.Context, series string, level int, rows []Membership) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UNWIND $rows AS r
MATCH (e:Entity {id: r.id})
MERGE (c:Community {series: $series, level: $level, cid: r.cid})
SET c:%s
MERGE (e)-[:IN_COMMUNITY {series: $series, level: $level}]->(c)
RETURN count(*) AS n`, seriesLabel(series))

	total := 0
	for _, b := range batches(len(rows), upsertBatchSize) {
		payload := make([]any, 0, b[1]-b[0])
		for _, r := range rows[b[0]:b[1]] {
			payload = append(payload, map[string]any{"id": r.EntityID, "cid": r.CID})
		}
		res, err := s.RunCypher(ctx, query, map[string]any{
			"rows": payload, "series": series, "level": level,
		})
		if err != nil {
			return total, fmt.Errorf("write memberships level %d: %w", level, err)
		}
		total += firstCount(res)
	}
	return total, nil
}

// WireParents links every community at the lower level to each
// community one level up that shares at least one member, recording the
// shared member count as overlap. MERGE keys on the endpoint pair, so
// re-wiring is idempotent. Returns how many PARENT links exist after
// the call.
func (s *Store) WireParents(ctx context.Context, series string, from, to int) (int, error) {
	query := `
MATCH (lo:Community {series: $series, level: $from})<-[:IN_COMMUNITY {level: $from}]-(e:Entity)
MATCH (e)-[:IN_COMMUNITY {level: $to}]->(hi:Community {series: $series, level: $to})
WITH lo, hi, count(e) AS overlap
WHERE overlap > 0
MERGE (lo)-[p:PARENT {series: $series, from: $from, to: $to}]->(hi)
SET p.overlap = overlap
RETURN count(p) AS n`
	res, err := s.RunCypher(ctx, query, map[string]any{
		"series": series, "from": from, "to": to,
	})
	if err != nil {
		return 0, fmt.Errorf("wire parents %d->%d: %w", from, to, err)
	}
	return firstCount(res), nil
}

// Members lists a community's entities ordered by relation degree, the
// proxy used to surface its most central members first.
func (s *Store) Members(ctx context.Context, series string, level int, cid string, limit int) ([]Member, error) {
	rows, err := s.Read(ctx, `
MATCH (e:Entity {series: $series})-[:IN_COMMUNITY {level: $level}]->(c:Community {series: $series, level: $level, cid: $cid})
WITH e, COUNT { (e)-[:REL {series: $series}]-() } AS deg
RETURN e.name AS name, coalesce(e.type, '') AS type, coalesce(e.desc, '') AS desc, deg
ORDER BY deg DESC, name ASC
LIMIT $limit`,
		map[string]any{"series": series, "level": level, "cid": cid, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("community members: %w", err)
	}
	out := make([]Member, 0, len(rows))
	for _, row := range rows {
		out = append(out, Member{
			Name:   asString(row["name"]),
			Type:   asString(row["type"]),
			Desc:   asString(row["desc"]),
			Degree: int(asInt64(row["deg"])),
		})
	}
	return out, nil
}

// Communities lists the (level, cid) pairs of a series, optionally
// restricted to some levels, in deterministic order.
func (s *Store) Communities(ctx context.Context, series string, levels []int) ([]Candidate, error) {
	params := map[string]any{"series": series, "levels": nil}
	if len(levels) > 0 {
		params["levels"] = levels
	}
	rows, err := s.Read(ctx, `
MATCH (c:Community {series: $series})
WHERE $levels IS NULL OR c.level IN $levels
RETURN c.cid AS cid, c.level AS level, coalesce(c.summary, '') AS text
ORDER BY c.level, c.cid`, params)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, Candidate{
			CID:   asString(row["cid"]),
			Level: int(asInt64(row["level"])),
			Text:  asString(row["text"]),
		})
	}
	return out, nil
}

// SaveSummary stores a community's summary text.
func (s *Store) SaveSummary(ctx context.Context, series string, level int, cid, text string) error {
	_, err := s.RunCypher(ctx, `
MATCH (c:Community {series: $series, level: $level, cid: $cid})
SET c.summary = $text`,
		map[string]any{"series": series, "level": level, "cid": cid, "text": text})
	if err != nil {
		return fmt.Errorf("save summary %s: %w", cid, err)
	}
	return nil
}

// Candidates returns the summarized communities of a series with their
// stored vectors, the input to query-focused summarization. Communities
// without a summary are excluded.
func (s *Store) Candidates(ctx context.Context, series string, levels []int) ([]Candidate, error) {
	params := map[string]any{"series": series, "levels": nil}
	if len(levels) > 0 {
		params["levels"] = levels
	}
	rows, err := s.Read(ctx, `
MATCH (c:Community {series: $series})
WHERE coalesce(c.summary, '') <> '' AND ($levels IS NULL OR c.level IN $levels)
RETURN c.cid AS cid, c.level AS level, c.summary AS text, c.svec AS vec
ORDER BY c.level, c.cid`, params)
	if err != nil {
		return nil, fmt.Errorf("community candidates: %w", err)
	}
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, Candidate{
			CID:   asString(row["cid"]),
			Level: int(asInt64(row["level"])),
			Text:  asString(row["text"]),
			Vec:   asFloat32s(row["vec"]),
		})
	}
	return out, nil
}

// CountCommunities returns the number of communities at one level.
func (s *Store) CountCommunities(ctx context.Context, series string, level int) (int, error) {
	rows, err := s.Read(ctx,
		`MATCH (c:Community {series: $series, level: $level}) RETURN count(c) AS n`,
		map[string]any{"series": series, "level": level})
	if err != nil {
		return 0, err
	}
	return firstCount(rows), nil
}
