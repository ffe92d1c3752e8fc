package corpus

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rdahmani/graphrag/ids"
)

func TestSplitStrategies(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts ChunkOptions
		want func(t *testing.T, chunks []string)
	}{
		{
			name: "sentence keeps boundaries",
			text: "Première phrase. Deuxième phrase. Troisième phrase.",
			opts: ChunkOptions{Strategy: "sentence", Size: 40, Overlap: 0},
			want: func(t *testing.T, chunks []string) {
				if len(chunks) < 2 {
					t.Fatalf("chunks = %v", chunks)
				}
				for _, c := range chunks {
					if !strings.HasSuffix(c, ".") {
						t.Errorf("chunk cut mid-sentence: %q", c)
					}
				}
			},
		},
		{
			name: "char exact sizes",
			text: strings.Repeat("a", 25),
			opts: ChunkOptions{Strategy: "char", Size: 10, Overlap: 0},
			want: func(t *testing.T, chunks []string) {
				if len(chunks) != 3 || len(chunks[0]) != 10 || len(chunks[2]) != 5 {
					t.Errorf("chunks = %v", chunks)
				}
			},
		},
		{
			name: "paragraph keeps blocks together",
			text: "Premier paragraphe.\n\nDeuxième paragraphe.\n\nTroisième.",
			opts: ChunkOptions{Strategy: "paragraph", Size: 45, Overlap: 0},
			want: func(t *testing.T, chunks []string) {
				if len(chunks) < 2 {
					t.Fatalf("chunks = %v", chunks)
				}
				if !strings.Contains(chunks[0], "Premier paragraphe.") {
					t.Errorf("first chunk = %q", chunks[0])
				}
			},
		},
		{
			name: "line strategy",
			text: "ligne un\nligne deux\nligne trois",
			opts: ChunkOptions{Strategy: "line", Size: 20, Overlap: 0},
			want: func(t *testing.T, chunks []string) {
				if len(chunks) != 2 {
					t.Errorf("chunks = %v", chunks)
				}
			},
		},
		{
			name: "empty text",
			text: "   ",
			opts: DefaultChunkOptions(),
			want: func(t *testing.T, chunks []string) {
				if chunks != nil {
					t.Errorf("chunks = %v", chunks)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, Split(tt.text, tt.opts))
		})
	}
}

func TestSplitOverlap(t *testing.T) {
	text := strings.Repeat("mot ", 100)
	chunks := Split(text, ChunkOptions{Strategy: "word", Size: 100, Overlap: 20})
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		tail := tailRunes(chunks[i-1], 20)
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d does not start with the previous tail", i)
		}
	}
}

func TestSplitRecursiveOversizedParagraph(t *testing.T) {
	long := strings.Repeat("Une phrase assez courte. ", 40) // one big paragraph
	chunks := Split(long, ChunkOptions{Strategy: "recursive", Size: 200, Overlap: 0})
	if len(chunks) < 3 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c)) > 260 {
			t.Errorf("chunk over budget: %d runes", len([]rune(c)))
		}
	}
}

func TestSuggestOptions(t *testing.T) {
	table := strings.Repeat("| a | b | c |\n", 30)
	if got := SuggestOptions(table); got.Strategy != "paragraph" {
		t.Errorf("table strategy = %q", got.Strategy)
	}
	if got := SuggestOptions("Texte court. Deux phrases."); got.Strategy != "sentence" {
		t.Errorf("short strategy = %q", got.Strategy)
	}
	long := strings.Repeat("Une phrase parmi d'autres. ", 200)
	if got := SuggestOptions(long); got.Strategy != "recursive" {
		t.Errorf("long strategy = %q", got.Strategy)
	}
	bullets := strings.Repeat("- item\n", 12)
	if got := SuggestOptions(bullets); got.Strategy != "paragraph" {
		t.Errorf("bullets strategy = %q", got.Strategy)
	}
}

// TestExtractThenChunkSeries drives the file pipeline end to end on
// txt and csv inputs: import, extract, chunk, then read back.
func TestExtractThenChunkSeries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	if _, err := s.CreateSeries("docs"); err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("ACME rachète Globex. Jane Doe dirige ACME. ", 30)
	if _, err := s.SaveFile("docs", "notes.txt", strings.NewReader(text)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveFile("docs", "prix.csv", strings.NewReader("produit,prix\nwidget,10\n")); err != nil {
		t.Fatal(err)
	}

	extract, err := s.ExtractSeries(ctx, "docs")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if extract.Blocks != 2 || len(extract.Files) != 2 {
		t.Fatalf("extract report = %+v", extract)
	}
	if _, err := os.Stat(s.extractedDir("docs") + "/notes.blocks.jsonl"); err != nil {
		t.Errorf("blocks file missing: %v", err)
	}

	report, err := s.ChunkSeries("docs", ChunkOptions{Strategy: "sentence", Size: 200, Overlap: 40})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if report.Chunks < 3 {
		t.Fatalf("chunk report = %+v", report)
	}

	chunks, err := s.ReadChunks("docs")
	if err != nil {
		t.Fatalf("read chunks: %v", err)
	}
	if len(chunks) != report.Chunks {
		t.Errorf("read %d chunks, report says %d", len(chunks), report.Chunks)
	}

	var sawCSVWhole bool
	for _, c := range chunks {
		wantPrefix := "docs:" + c.File + ":"
		if !strings.HasPrefix(c.ID, wantPrefix) {
			t.Errorf("chunk id = %q", c.ID)
		}
		if c.File == "prix.csv" {
			sawCSVWhole = true
			if !strings.Contains(c.Text, "| widget | 10 |") {
				t.Errorf("table chunk = %q", c.Text)
			}
		}
	}
	if !sawCSVWhole {
		t.Error("csv chunk missing")
	}

	// Chunk ids are deterministic per (series, file, index).
	if chunks[0].ID != ids.ChunkID("docs", chunks[0].File, 0) {
		t.Errorf("id = %q", chunks[0].ID)
	}

	// Chunking without extraction fails loudly.
	if _, err := s.CreateSeries("vide"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ChunkSeries("vide", DefaultChunkOptions()); err == nil {
		t.Error("chunking an unextracted series should fail")
	}
}
