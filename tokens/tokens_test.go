package tokens

import (
	"strings"
	"testing"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		text     string
		want     int
	}{
		{"empty", "openai", "", 0},
		{"openai ratio", "openai", "one two three", 4},
		{"azure matches openai", "azure", "one two three", 4},
		{"gemini ratio", "gemini", "one two three", 7},
		{"default ratio", "", "one two three", 5},
		{"single word floors to one plus one", "openai", "hello", 2},
		{"whitespace only still costs one", "openai", "   ", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBudgeter(tt.provider)
			if got := b.Count(tt.text); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestFitSentenceBoundaries(t *testing.T) {
	b := NewBudgeter("")
	text := "First sentence here. Second sentence follows now. Third one."

	if got := b.Fit(text, 100); got != text {
		t.Errorf("text under budget should be untouched, got %q", got)
	}
	if got := b.Fit(text, 10); got != "First sentence here." {
		t.Errorf("Fit(_, 10) = %q, want first sentence only", got)
	}
	if got := b.Fit(text, 12); got != "First sentence here. Second sentence follows now." {
		t.Errorf("Fit(_, 12) = %q, want first two sentences", got)
	}
}

func TestFitFallbackTruncation(t *testing.T) {
	b := NewBudgeter("")
	text := strings.TrimSpace(strings.Repeat("word ", 40)) // no sentence boundary
	got := b.Fit(text, 5)
	if len(got) != 18 { // 5 tokens * 4 chars * 0.9
		t.Errorf("fallback truncation length = %d, want 18", len(got))
	}
	if !strings.HasPrefix(text, got) {
		t.Errorf("fallback should be a prefix of the input, got %q", got)
	}
}

func TestFitEdgeCases(t *testing.T) {
	b := NewBudgeter("openai")
	if got := b.Fit("", 10); got != "" {
		t.Errorf("Fit(empty) = %q", got)
	}
	if got := b.Fit("something", 0); got != "" {
		t.Errorf("Fit with zero budget = %q", got)
	}
	if got := b.Fit("something", -3); got != "" {
		t.Errorf("Fit with negative budget = %q", got)
	}
}

func TestFitIdempotent(t *testing.T) {
	b := NewBudgeter("openai")
	cases := []struct {
		text string
		max  int
	}{
		{"First sentence here. Second sentence follows now. Third one.", 10},
		{"First sentence here. Second sentence follows now. Third one.", 12},
		{strings.Repeat("word ", 40), 5},
		{"short text", 100},
	}
	for _, c := range cases {
		once := b.Fit(c.text, c.max)
		twice := b.Fit(once, c.max)
		if once != twice {
			t.Errorf("Fit not idempotent for max=%d: %q != %q", c.max, once, twice)
		}
	}
}
