package query

import "strings"

// Word lists behind the routing heuristic. The corpus is French, so
// the markers are French with a couple of common English strays.
var (
	compareWords = []string{
		"compare", "différence", "avantages", "inconvénients",
		"impact", "panorama", "synthèse", "overview",
	}
	graphyWords  = []string{"relation", "lié", "entre", "cause", "conséquence"}
	factPrefixes = []string{"qui", "quoi", "quand", "où", "combien", "lequel", "laquelle"}
)

const longQuestionWords = 14

// Route picks a retrieval mode for a question with a deterministic
// heuristic: comparative or long open questions go to the global graph
// mode, relational factoids to path retrieval, everything else to
// dense chunk retrieval.
func Route(question string) Mode {
	q := strings.ToLower(strings.TrimSpace(question))

	long := len(strings.Fields(q)) >= longQuestionWords
	cmp := containsAny(q, compareWords)
	graphy := containsAny(q, graphyWords)
	fact := hasAnyPrefix(q, factPrefixes)
	nums := strings.ContainsAny(q, "0123456789")

	switch {
	case cmp || (long && !fact):
		return ModeGraph
	case graphy || (fact && (nums || strings.Contains(q, "entre"))):
		return ModePath
	default:
		return ModeVector
	}
}

func containsAny(q string, words []string) bool {
	for _, w := range words {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(q string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}
