package corpus

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxExtractor produces one pipe-delimited table block per sheet.
type xlsxExtractor struct{}

func (e *xlsxExtractor) Formats() []string { return []string{".xlsx", ".xls"} }

func (e *xlsxExtractor) Extract(ctx context.Context, path string) ([]Block, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var blocks []Block
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		var content strings.Builder
		for _, row := range rows {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		blocks = append(blocks, Block{Page: i + 1, Text: content.String(), Kind: "table"})
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no data in workbook")
	}
	return blocks, nil
}
