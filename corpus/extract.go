package corpus

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Block is one extracted unit of text: a page, a sheet, or a whole
// plain-text file. Kind is "text" or "table"; table blocks are kept
// whole by the chunker.
type Block struct {
	File  string `json:"file"`
	Page  int    `json:"page"`
	Order int    `json:"order"`
	Text  string `json:"text"`
	Kind  string `json:"kind"`
}

// Extractor turns one raw file into blocks.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Block, error)
	Formats() []string
}

// extractors maps a lowercased extension (with dot) to its extractor.
func extractors() map[string]Extractor {
	reg := make(map[string]Extractor)
	for _, e := range []Extractor{&pdfExtractor{}, &xlsxExtractor{}, &txtExtractor{}, &csvExtractor{}} {
		for _, ext := range e.Formats() {
			reg[ext] = e
		}
	}
	return reg
}

// FileExtract is the per-file entry of an extract report.
type FileExtract struct {
	File   string `json:"file"`
	Blocks int    `json:"blocks"`
	Error  string `json:"error,omitempty"`
}

// ExtractReport summarizes one extraction pass over a series.
type ExtractReport struct {
	Series string        `json:"series"`
	Files  []FileExtract `json:"files"`
	Blocks int           `json:"blocks"`
}

// ExtractSeries runs every raw file of a series through its extractor
// and writes one blocks file per document plus a report. A file whose
// extraction fails is recorded and skipped; the pass continues.
func (s *Storage) ExtractSeries(ctx context.Context, series string) (*ExtractReport, error) {
	files, err := s.ListFiles(series)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.extractedDir(series), 0o755); err != nil {
		return nil, fmt.Errorf("extract %s: %w", series, err)
	}

	reg := extractors()
	report := &ExtractReport{Series: series, Files: []FileExtract{}}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := FileExtract{File: name}
		ext := strings.ToLower(filepath.Ext(name))
		extractor, ok := reg[ext]
		if !ok {
			entry.Error = fmt.Sprintf("no extractor for %s", ext)
			report.Files = append(report.Files, entry)
			continue
		}

		blocks, err := extractor.Extract(ctx, filepath.Join(s.rawDir(series), name))
		if err != nil {
			slog.Warn("extraction failed", "series", series, "file", name, "error", err)
			entry.Error = err.Error()
			report.Files = append(report.Files, entry)
			continue
		}
		for i := range blocks {
			blocks[i].File = name
			blocks[i].Order = i
		}
		if err := s.writeBlocks(series, name, blocks); err != nil {
			return report, err
		}
		entry.Blocks = len(blocks)
		report.Blocks += len(blocks)
		report.Files = append(report.Files, entry)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report, err
	}
	if err := writeFileAtomic(filepath.Join(s.extractedDir(series), "_report.json"), data); err != nil {
		return report, fmt.Errorf("extract report: %w", err)
	}
	return report, nil
}

func (s *Storage) writeBlocks(series, name string, blocks []Block) error {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, blk := range blocks {
		if err := enc.Encode(blk); err != nil {
			return fmt.Errorf("encode blocks for %s: %w", name, err)
		}
	}
	path := filepath.Join(s.extractedDir(series), stem(name)+".blocks.jsonl")
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return fmt.Errorf("write blocks for %s: %w", name, err)
	}
	return nil
}

// readBlocks loads the blocks file of one document.
func (s *Storage) readBlocks(series, name string) ([]Block, error) {
	path := filepath.Join(s.extractedDir(series), stem(name)+".blocks.jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []Block
	dec := json.NewDecoder(f)
	for {
		var blk Block
		if err := dec.Decode(&blk); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode blocks for %s: %w", name, err)
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// txtExtractor returns the whole file as one text block.
type txtExtractor struct{}

func (e *txtExtractor) Formats() []string { return []string{".txt"} }

func (e *txtExtractor) Extract(_ context.Context, path string) ([]Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("empty text file")
	}
	return []Block{{Page: 1, Text: text, Kind: "text"}}, nil
}

// csvExtractor renders the file as one pipe-delimited table block.
type csvExtractor struct{}

func (e *csvExtractor) Formats() []string { return []string{".csv"} }

func (e *csvExtractor) Extract(_ context.Context, path string) ([]Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty CSV")
	}

	var content strings.Builder
	for _, row := range rows {
		content.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return []Block{{Page: 1, Text: content.String(), Kind: "table"}}, nil
}
