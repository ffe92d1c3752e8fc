// Package ids derives the deterministic identifiers used across the
// knowledge graph: entity and relation ids, dedup fingerprints, chunk
// ids, and names safe to use for Neo4j indexes.
package ids

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// StableID hashes the non-empty parts into a short stable identifier.
// Parts are trimmed and lowercased first, so "Acme " and "acme" land on
// the same id. Rebuilding from the same inputs always reproduces it.
func StableID(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			kept = append(kept, p)
		}
	}
	sum := sha1.Sum([]byte(strings.Join(kept, "::")))
	return hex.EncodeToString(sum[:])[:16]
}

// NodeID identifies an entity node within a series.
func NodeID(series, name, typ string) string {
	return StableID(series, name, typ)
}

// RelationID identifies a relation within a series. Endpoints are named
// by node id, so relations survive entity renames only when the merge
// rewrites them explicitly.
func RelationID(series, srcID, predicate, dstID string) string {
	return StableID(series, srcID, predicate, dstID)
}

// ChunkID names a chunk by its position within a file of a series.
func ChunkID(series, file string, idx int) string {
	return fmt.Sprintf("%s:%s:%d", series, file, idx)
}

var idxStrip = regexp.MustCompile(`[^A-Za-z0-9_]`)

// legalSuffixes are corporate suffix tokens that never distinguish two
// mentions of the same organization. Tokens of one or two characters
// (SA, AG, Co, ...) are already dropped by the length filter.
var legalSuffixes = map[string]bool{
	"corp": true, "corporation": true, "inc": true, "incorporated": true,
	"ltd": true, "limited": true, "llc": true, "gmbh": true, "plc": true,
}

// Fingerprint computes the blocking key used to group near-duplicate
// entity names before disambiguation: lowercased alphanumerics and
// spaces only, with short tokens and corporate suffixes dropped, capped
// at 64 characters. "Acme Corp" and "Acme" both land on "acme".
func Fingerprint(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	words := strings.Fields(b.String())
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 2 || legalSuffixes[w] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		// Everything was short or a suffix; better a weak key than an
		// empty one that would group unrelated names together.
		kept = words
	}
	s := strings.Join(kept, " ")
	if r := []rune(s); len(r) > 64 {
		s = string(r[:64])
	}
	return s
}

// IndexName makes a string usable as a Neo4j index name: only word
// characters, starting with a letter.
func IndexName(name string) string {
	s := idxStrip.ReplaceAllString(name, "_")
	if s == "" {
		return "idx_"
	}
	if c := s[0]; !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
		s = "idx_" + s
	}
	return s
}
