package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// odfContentPath is the path to the main content inside an OpenDocument zip.
const odfContentPath = "content.xml"

var (
	// odfBlock matches text:p and text:h elements (with optional attributes).
	odfBlock = regexp.MustCompile(`(?s)<text:(p|h)(?:\s[^>]*)?>.*?</text:(?:p|h)>`)
	// odfText captures character data between tags.
	odfText = regexp.MustCompile(`>([^<]+)<`)
	// odfPage matches a presentation page or a spreadsheet table.
	odfPage = regexp.MustCompile(`<(?:draw:page|table:table)[\s>]`)
)

// OpenDocumentParser reads OpenDocument presentations and spreadsheets.
// Presentation pages and spreadsheet tables count as pages. Text documents
// (.odt) go through CatParser.
type OpenDocumentParser struct{}

func (OpenDocumentParser) Name() string { return "opendocument" }

func (OpenDocumentParser) Supports(ext string) bool {
	return ext == ".odp" || ext == ".ods"
}

func (OpenDocumentParser) Available() bool { return true }

func (OpenDocumentParser) Parse(ctx context.Context, content []byte, _ string) (Document, error) {
	zr, err := openZip(content)
	if err != nil {
		return Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := readZipEntry(zr, odfContentPath)
	if err != nil {
		return Document{}, err
	}
	if data == nil {
		return Document{}, fmt.Errorf("%s not found", odfContentPath)
	}
	xml := string(data)
	return Document{
		Text:      strings.Join(paragraphs(xml, odfBlock, odfText), "\n"),
		PageCount: len(odfPage.FindAllString(xml, -1)),
	}, nil
}
