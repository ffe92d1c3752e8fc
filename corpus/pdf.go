package corpus

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfExtractor produces one text block per page. Pages whose text
// layer cannot be decoded are skipped; a PDF with no extractable page
// is an error so the caller sees it in the report.
type pdfExtractor struct{}

func (e *pdfExtractor) Formats() []string { return []string{".pdf"} }

func (e *pdfExtractor) Extract(ctx context.Context, path string) ([]Block, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var blocks []Block
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		blocks = append(blocks, Block{Page: i, Text: text, Kind: "text"})
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no extractable text")
	}
	return blocks, nil
}
