package query

// Mode selects the retrieval strategy for one question.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeGraph  Mode = "graph"
	ModePath   Mode = "path"
	ModeVector Mode = "vector"
)

// ParseMode validates a user-supplied mode string. Empty means auto.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, true
	case ModeGraph, ModePath, ModeVector:
		return Mode(s), true
	default:
		return "", false
	}
}

// Citation points at the evidence behind an answer. Which fields are
// set depends on the mode: graph fills id/snippet, path fills
// path_score/node_ids/edge_ids, vector fills cid/doc/page/score.
type Citation struct {
	ID      string `json:"id,omitempty"`
	Snippet string `json:"snippet,omitempty"`

	PathScore float64  `json:"path_score,omitempty"`
	NodeIDs   []string `json:"node_ids,omitempty"`
	EdgeIDs   []string `json:"edge_ids,omitempty"`

	CID   string  `json:"cid,omitempty"`
	Doc   string  `json:"doc,omitempty"`
	Page  int     `json:"page,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// TokenUsage accumulates provider-reported token counts over every
// chat call a query made.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// add keeps the invariant total = prompt + completion even when the
// provider reports a different total.
func (u *TokenUsage) add(prompt, completion int) {
	u.Prompt += prompt
	u.Completion += completion
	u.Total = u.Prompt + u.Completion
}

// AnswerBundle is the full result of one query: the answer, what it
// was grounded on, and how much it cost. An empty answer with warnings
// is a valid bundle; callers prefer it over an error whenever at least
// one component succeeded.
type AnswerBundle struct {
	Series     string         `json:"series"`
	ModeUsed   Mode           `json:"mode_used"`
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Citations  []Citation     `json:"citations"`
	LatencyMs  int64          `json:"latency_ms"`
	TokenUsage TokenUsage     `json:"token_usage"`
	Warnings   []string       `json:"warnings,omitempty"`
	Debug      map[string]any `json:"debug,omitempty"`
}
