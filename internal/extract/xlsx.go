package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser renders each sheet as tab separated rows. Sheets count as pages.
type XLSXParser struct{}

func (XLSXParser) Name() string             { return "xlsx" }
func (XLSXParser) Supports(ext string) bool { return ext == ".xlsx" }
func (XLSXParser) Available() bool          { return true }

func (XLSXParser) Parse(ctx context.Context, content []byte, _ string) (Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Document{}, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var buf strings.Builder
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return Document{}, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	return Document{Text: strings.TrimSpace(buf.String()), PageCount: len(sheets)}, nil
}
