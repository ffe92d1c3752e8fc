package query

import "testing"

func TestRoute(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     Mode
	}{
		{"comparative", "Compare Acme and Beta impact in 2021", ModeGraph},
		{"synthesis word", "Fais une synthèse des activités du groupe", ModeGraph},
		{"long open question", "Pouvez-vous expliquer en détail comment le groupe a structuré ses activités industrielles au cours de la dernière décennie", ModeGraph},
		{"factoid with digit", "Qui a acquis Beta en 2021 ?", ModePath},
		{"relational wording", "Quelle relation existe entre Acme et Globex ?", ModePath},
		{"factoid with entre", "Combien de contrats entre les deux filiales ?", ModePath},
		{"plain lookup", "logo couleur", ModeVector},
		{"short factoid without anchor", "Qui dirige le groupe ?", ModeVector},
		{"long factoid stays factual", "Combien de salariés le groupe comptait-il au moment de la création de sa première filiale industrielle européenne ?", ModeVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.question); got != tt.want {
				t.Errorf("Route(%q) = %s, want %s", tt.question, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode(""); !ok || m != ModeAuto {
		t.Errorf("empty mode = %s, %v", m, ok)
	}
	if m, ok := ParseMode("path"); !ok || m != ModePath {
		t.Errorf("path mode = %s, %v", m, ok)
	}
	if _, ok := ParseMode("hybrid"); ok {
		t.Error("unknown mode accepted")
	}
}
