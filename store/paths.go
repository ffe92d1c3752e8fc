package store

import (
	"context"
	"fmt"
	"strings"
)

const seedCandidateLimit = 400

// SeedEntities finds the entities whose name or aliases contain any of
// the query keywords, ordered by how many keywords matched and then by
// confidence. At most seedCandidateLimit rows come back; the caller
// keeps its top slice.
func (s *Store) SeedEntities(ctx context.Context, series string, keywords []string) ([]SeedEntity, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	rows, err := s.Read(ctx, `
MATCH (e:Entity {series: $series})
WITH e, reduce(hay = toLower(e.name), a IN coalesce(e.aliases, []) | hay + ' ' + toLower(a)) AS hay
WITH e, size([kw IN $kws WHERE hay CONTAINS kw]) AS hits
WHERE hits > 0
RETURN e.id AS id, e.name AS name, coalesce(e.desc, '') AS desc,
       coalesce(e.conf, 0.0) AS conf
ORDER BY hits DESC, conf DESC, id
LIMIT $limit`,
		map[string]any{"series": series, "kws": lowered, "limit": seedCandidateLimit})
	if err != nil {
		return nil, fmt.Errorf("seed entities: %w", err)
	}
	out := make([]SeedEntity, 0, len(rows))
	for _, row := range rows {
		out = append(out, SeedEntity{
			ID:   asString(row["id"]),
			Name: asString(row["name"]),
			Desc: asString(row["desc"]),
			Conf: asFloat(row["conf"]),
		})
	}
	return out, nil
}

// CollectPaths walks undirected paths of 1..maxHops relations between
// two entities, keeping only paths whose every node and relation clears
// the confidence floor. At most perPair paths come back. Path length
// bounds cannot be parameterized in Cypher, so maxHops is clamped and
// interpolated.
func (s *Store) CollectPaths(ctx context.Context, series, srcID, dstID string, maxHops int, theta float64, perPair int) ([]Path, error) {
	if maxHops < 1 {
		maxHops = 1
	}
	if maxHops > 6 {
		maxHops = 6
	}
	if perPair < 1 {
		perPair = 1
	}
	query := fmt.Sprintf(`
MATCH (a:Entity {id: $src}), (b:Entity {id: $dst})
MATCH p = (a)-[:REL*1..%d]-(b)
WHERE ALL(r IN relationships(p) WHERE r.series = $series AND coalesce(r.conf, 1.0) >= $theta)
  AND ALL(n IN nodes(p) WHERE n.series = $series AND coalesce(n.conf, 1.0) >= $theta)
RETURN [n IN nodes(p) | {id: n.id, name: n.name, conf: coalesce(n.conf, 1.0)}] AS nodes,
       [r IN relationships(p) | {id: r.id, pred: r.pred, conf: coalesce(r.conf, 1.0)}] AS edges,
       length(p) AS hops
LIMIT %d`, maxHops, perPair)

	rows, err := s.Read(ctx, query, map[string]any{
		"src": srcID, "dst": dstID, "series": series, "theta": theta,
	})
	if err != nil {
		return nil, fmt.Errorf("collect paths: %w", err)
	}
	out := make([]Path, 0, len(rows))
	for _, row := range rows {
		out = append(out, Path{
			Nodes: asPathNodes(row["nodes"]),
			Edges: asPathEdges(row["edges"]),
			Hops:  int(asInt64(row["hops"])),
		})
	}
	return out, nil
}

func asPathNodes(v any) []PathNode {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]PathNode, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, PathNode{
			ID:   asString(m["id"]),
			Name: asString(m["name"]),
			Conf: asFloat(m["conf"]),
		})
	}
	return out
}

func asPathEdges(v any) []PathEdge {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]PathEdge, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, PathEdge{
			ID:   asString(m["id"]),
			Pred: asString(m["pred"]),
			Conf: asFloat(m["conf"]),
		})
	}
	return out
}
