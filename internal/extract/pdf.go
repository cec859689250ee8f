package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser reads PDF text page by page.
type PDFParser struct{}

func (PDFParser) Name() string             { return "pdf" }
func (PDFParser) Supports(ext string) bool { return ext == ".pdf" }
func (PDFParser) Available() bool          { return true }

// Parse joins the plain text of every page with newlines. Malformed files can
// make the PDF reader panic; that is reported as an error.
func (PDFParser) Parse(ctx context.Context, content []byte, _ string) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Document{}, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Document{}, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return Document{Text: strings.Join(pages, "\n"), PageCount: numPages}, nil
}
