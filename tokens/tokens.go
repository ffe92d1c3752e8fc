// Package tokens estimates token counts and trims text to token
// budgets. Counts are word-based approximations rather than real
// tokenizer output; they bound prompt sizes, nothing more.
package tokens

import "strings"

// Budgeter counts and fits text against token budgets using a
// words-per-token ratio chosen for a provider family.
type Budgeter struct {
	ratio float64
}

// NewBudgeter returns a Budgeter tuned for the given provider family.
// Unknown providers get a conservative middle-ground ratio.
func NewBudgeter(provider string) *Budgeter {
	return &Budgeter{ratio: ratioFor(provider)}
}

func ratioFor(provider string) float64 {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gemini":
		return 2.0
	case "openai", "azure", "openai.azure":
		return 1.33
	default:
		return 1.5
	}
}

// Count estimates the token count of text. Empty text counts as zero;
// any other text counts at least one token.
func (b *Budgeter) Count(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	return int(float64(words)*b.ratio) + 1
}

// Fit trims text so its estimated count stays within max tokens. It
// prefers cutting at sentence boundaries and falls back to a character
// truncation when not even the first sentence fits. Fit is idempotent:
// refitting its output with the same budget returns it unchanged.
func (b *Budgeter) Fit(text string, max int) string {
	if text == "" || max <= 0 {
		return ""
	}
	if b.Count(text) <= max {
		return text
	}
	var kept []string
	used := 0
	for _, s := range splitSentences(text) {
		c := b.Count(s)
		if used+c > max {
			break
		}
		kept = append(kept, s)
		used += c
	}
	if len(kept) > 0 {
		return strings.Join(kept, " ")
	}
	// Roughly four characters per token, with headroom so the estimate
	// of the truncated text stays under budget.
	limit := int(float64(max) * 4 * 0.9)
	if limit >= len(text) {
		return text
	}
	return text[:limit]
}

// splitSentences cuts on ./?/! followed by whitespace or end of text,
// keeping the punctuation with the left part.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					out = append(out, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}
