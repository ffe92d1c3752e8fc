package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rdahmani/graphrag/ids"
)

// ChunkOptions select a split strategy, a target chunk size and the
// overlap carried between consecutive chunks. Size and overlap are in
// characters, except for the tokens strategy where size is a token
// budget. Strategy "auto" picks per document via SuggestOptions.
type ChunkOptions struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	Size     int    `json:"size" yaml:"size"`
	Overlap  int    `json:"overlap" yaml:"overlap"`
}

// DefaultChunkOptions returns the general-purpose strategy.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{Strategy: "recursive", Size: 800, Overlap: 150}
}

func (o ChunkOptions) normalized() ChunkOptions {
	d := DefaultChunkOptions()
	if o.Strategy == "" {
		o.Strategy = d.Strategy
	}
	if o.Size <= 0 {
		o.Size = d.Size
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.Size {
		o.Overlap = o.Size / 4
	}
	return o
}

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	bulletLine     = regexp.MustCompile(`(?m)^\s*[-•*]`)
)

// Split cuts text into chunks: the strategy produces units, units are
// greedily merged up to the size budget, and each chunk after the
// first is prefixed with the tail of its predecessor.
func Split(text string, opts ChunkOptions) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	opts = opts.normalized()

	var (
		units   []string
		sep     = " "
		measure = func(s string) int { return len([]rune(s)) }
	)
	switch opts.Strategy {
	case "char":
		units = runeGroups(text, opts.Size)
		sep = ""
	case "word":
		units = strings.Fields(text)
	case "sentence":
		units = splitSentences(text)
	case "paragraph":
		units = splitParagraphs(text)
		sep = "\n\n"
	case "line":
		units = splitLines(text)
		sep = "\n"
	case "tokens":
		units = strings.Fields(text)
		measure = estimateTokens
	default: // recursive and unknown strategies
		units = recursiveUnits(text, opts.Size)
		sep = "\n"
	}

	chunks := mergeUnits(units, sep, opts.Size, measure)
	return applyOverlap(chunks, sep, opts.Overlap)
}

// mergeUnits greedily packs units into chunks of at most size, as
// measured by measure plus one per separator. A single oversized unit
// becomes its own chunk.
func mergeUnits(units []string, sep string, size int, measure func(string) int) []string {
	var out []string
	var cur []string
	used := 0
	for _, u := range units {
		if u == "" {
			continue
		}
		c := measure(u) + len(sep)
		if used > 0 && used+c > size {
			out = append(out, strings.Join(cur, sep))
			cur, used = nil, 0
		}
		cur = append(cur, u)
		used += c
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, sep))
	}
	return out
}

// applyOverlap prepends each chunk with the last overlap characters of
// its predecessor, so a fact cut at a boundary appears in both chunks.
func applyOverlap(chunks []string, sep string, overlap int) []string {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		tail := tailRunes(chunks[i-1], overlap)
		if sep == "" {
			out[i] = tail + chunks[i]
		} else {
			out[i] = tail + sep + chunks[i]
		}
	}
	return out
}

// SuggestOptions picks a strategy from the text's shape: dense tables
// and bullet lists chunk by paragraph, short documents by sentence,
// everything else recursively.
func SuggestOptions(text string) ChunkOptions {
	n := len(text)
	tableLike := strings.Count(text, "|") > 20 || strings.Count(text, "\t") > 20
	bullets := len(bulletLine.FindAllString(text, -1))
	newlines := strings.Count(text, "\n")

	switch {
	case tableLike || bullets > 10 || newlines > 20:
		size := n / 50
		if size < 400 {
			size = 400
		}
		if size > 1000 {
			size = 1000
		}
		return ChunkOptions{Strategy: "paragraph", Size: size, Overlap: 100}
	case n < 2000:
		return ChunkOptions{Strategy: "sentence", Size: 600, Overlap: 120}
	default:
		return ChunkOptions{Strategy: "recursive", Size: 800, Overlap: 150}
	}
}

// recursiveUnits splits into paragraphs, then re-splits any paragraph
// over the budget into sentences, and any oversized sentence into
// word groups.
func recursiveUnits(text string, size int) []string {
	var out []string
	for _, p := range splitParagraphs(text) {
		if len([]rune(p)) <= size {
			out = append(out, p)
			continue
		}
		for _, s := range splitSentences(p) {
			if len([]rune(s)) <= size {
				out = append(out, s)
				continue
			}
			out = append(out, mergeUnits(strings.Fields(s), " ", size, func(u string) int { return len([]rune(u)) })...)
		}
	}
	return out
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphSplit.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// splitSentences cuts on ./?/! followed by whitespace, keeping the
// punctuation with the left part.
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

func runeGroups(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// estimateTokens mirrors the GPT-family word ratio used elsewhere.
func estimateTokens(s string) int {
	words := len(strings.Fields(s))
	if words == 0 {
		return 0
	}
	return int(float64(words)*1.33) + 1
}

// DocChunk is one persisted chunk before embedding.
type DocChunk struct {
	ID     string `json:"id"`
	Series string `json:"series"`
	File   string `json:"file"`
	Page   int    `json:"page"`
	Order  int    `json:"order"`
	Text   string `json:"text"`
}

// ChunkFileReport is the per-document entry of a chunk report.
type ChunkFileReport struct {
	File     string `json:"file"`
	Strategy string `json:"strategy"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
}

// ChunkReport summarizes one chunking pass over a series.
type ChunkReport struct {
	Series string            `json:"series"`
	Files  []ChunkFileReport `json:"files"`
	Chunks int               `json:"chunks"`
}

// ChunkSeries reads the extracted blocks of every document and writes
// one chunks file per document plus a report. Table blocks stay whole;
// text blocks follow the strategy, with "auto" deciding per block.
func (s *Storage) ChunkSeries(series string, opts ChunkOptions) (*ChunkReport, error) {
	extracted, err := s.readExtractReport(series)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", series, err)
	}
	if err := os.MkdirAll(s.chunksDir(series), 0o755); err != nil {
		return nil, fmt.Errorf("chunk %s: %w", series, err)
	}

	report := &ChunkReport{Series: series, Files: []ChunkFileReport{}}
	for _, fe := range extracted.Files {
		if fe.Error != "" || fe.Blocks == 0 {
			continue
		}
		entry := ChunkFileReport{File: fe.File, Strategy: opts.Strategy}
		blocks, err := s.readBlocks(series, fe.File)
		if err != nil {
			entry.Error = err.Error()
			report.Files = append(report.Files, entry)
			continue
		}

		var chunks []DocChunk
		idx := 0
		for _, blk := range blocks {
			var pieces []string
			if blk.Kind == "table" {
				pieces = []string{blk.Text}
			} else {
				o := opts
				if o.Strategy == "auto" || o.Strategy == "" {
					o = SuggestOptions(blk.Text)
					entry.Strategy = o.Strategy
				}
				pieces = Split(blk.Text, o)
			}
			for _, piece := range pieces {
				chunks = append(chunks, DocChunk{
					ID:     ids.ChunkID(series, fe.File, idx),
					Series: series,
					File:   fe.File,
					Page:   blk.Page,
					Order:  idx,
					Text:   piece,
				})
				idx++
			}
		}
		if err := s.writeChunks(series, fe.File, chunks); err != nil {
			return report, err
		}
		entry.Chunks = len(chunks)
		report.Chunks += len(chunks)
		report.Files = append(report.Files, entry)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report, err
	}
	if err := writeFileAtomic(filepath.Join(s.chunksDir(series), "_report.json"), data); err != nil {
		return report, fmt.Errorf("chunk report: %w", err)
	}
	return report, nil
}

func (s *Storage) readExtractReport(series string) (*ExtractReport, error) {
	data, err := os.ReadFile(filepath.Join(s.extractedDir(series), "_report.json"))
	if err != nil {
		return nil, fmt.Errorf("no extract report, run extraction first: %w", err)
	}
	var report ExtractReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode extract report: %w", err)
	}
	return &report, nil
}

func (s *Storage) writeChunks(series, name string, chunks []DocChunk) error {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encode chunks for %s: %w", name, err)
		}
	}
	path := filepath.Join(s.chunksDir(series), stem(name)+".chunks.jsonl")
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return fmt.Errorf("write chunks for %s: %w", name, err)
	}
	return nil
}

// ReadChunks loads every chunk of a series in file order.
func (s *Storage) ReadChunks(series string) ([]DocChunk, error) {
	entries, err := os.ReadDir(s.chunksDir(series))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	var out []DocChunk
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".chunks.jsonl") {
			continue
		}
		f, err := os.Open(filepath.Join(s.chunksDir(series), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read chunks: %w", err)
		}
		dec := json.NewDecoder(f)
		for {
			var c DocChunk
			if err := dec.Decode(&c); err == io.EOF {
				break
			} else if err != nil {
				f.Close()
				return nil, fmt.Errorf("decode chunks in %s: %w", e.Name(), err)
			}
			out = append(out, c)
		}
		f.Close()
	}
	return out, nil
}
