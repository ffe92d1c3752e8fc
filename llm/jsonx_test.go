package llm

import (
	"reflect"
	"testing"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantVal any
		wantErr bool
	}{
		{"plain object", `{"answer": "yes"}`, "answer", "yes", false},
		{"fenced json", "```json\n{\"answer\": \"yes\"}\n```", "answer", "yes", false},
		{"fence without tag", "```\n{\"answer\": \"yes\"}\n```", "answer", "yes", false},
		{"prose around object", `Sure! Here it is: {"answer": "yes"} — hope that helps.`, "answer", "yes", false},
		{"nested braces", `{"outer": {"inner": 1}}`, "outer", map[string]any{"inner": float64(1)}, false},
		{"trailing close brace in prose", `{"n": 2} and that closes the case}`, "n", float64(2), false},
		{"no object", "there is no json here", "", nil, true},
		{"broken object", `{"answer": `, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ExtractObject(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", m)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractObject: %v", err)
			}
			if !reflect.DeepEqual(m[tt.wantKey], tt.wantVal) {
				t.Errorf("m[%q] = %v, want %v", tt.wantKey, m[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	raw := "Voici la réponse:\n```json\n{\"answer\": \"oui\", \"used\": [\"a\"]}\n```\nvoilà."
	span, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if span != `{"answer": "oui", "used": ["a"]}` {
		t.Errorf("span = %q", span)
	}
	if _, err := ExtractJSON("rien à extraire ici"); err == nil {
		t.Error("expected error on prose without JSON")
	}
}

func TestFirstString(t *testing.T) {
	m := map[string]any{
		"partial_answer": "",
		"answer":         "  ",
		"output":         "fallback text",
		"n":              3.0,
	}
	if got := FirstString(m, "partial_answer", "answer", "output"); got != "fallback text" {
		t.Errorf("FirstString = %q", got)
	}
	if got := FirstString(m, "missing", "n"); got != "" {
		t.Errorf("FirstString on non-strings = %q", got)
	}
}

func TestFloatOr(t *testing.T) {
	m := map[string]any{
		"conf":   0.7,
		"text":   "not a number",
		"strnum": "0.25",
		"null":   nil,
	}
	tests := []struct {
		key      string
		fallback float64
		want     float64
	}{
		{"conf", 0.5, 0.7},
		{"strnum", 0.5, 0.25},
		{"text", 0.5, 0.5},
		{"null", 0.5, 0.5},
		{"missing", 0.4, 0.4},
	}
	for _, tt := range tests {
		if got := FloatOr(m, tt.key, tt.fallback); got != tt.want {
			t.Errorf("FloatOr(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestStringList(t *testing.T) {
	m := map[string]any{
		"aliases": []any{"Acme Corp", "  ", 7.0, "ACME"},
		"scalar":  "not a list",
	}
	if got := StringList(m, "aliases"); !reflect.DeepEqual(got, []string{"Acme Corp", "ACME"}) {
		t.Errorf("StringList = %v", got)
	}
	if got := StringList(m, "scalar"); got != nil {
		t.Errorf("StringList on scalar = %v", got)
	}
	if got := StringList(m, "missing"); got != nil {
		t.Errorf("StringList on missing = %v", got)
	}
}

func TestObjectList(t *testing.T) {
	m := map[string]any{
		"entities": []any{
			map[string]any{"name": "Acme"},
			"stray string",
			map[string]any{"name": "Beta"},
		},
	}
	got := ObjectList(m, "entities")
	if len(got) != 2 || got[0]["name"] != "Acme" || got[1]["name"] != "Beta" {
		t.Errorf("ObjectList = %v", got)
	}
}
