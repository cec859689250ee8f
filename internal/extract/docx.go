package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

var (
	// wtTag matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t>.
	wtTag = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	// wpBlock matches one paragraph, with or without attributes.
	wpBlock = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*)?>.*?</w:p>`)

	// partNameRe extracts PartName from Override elements in [Content_Types].xml.
	partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	// partNameRe2 handles the case where ContentType appears before PartName.
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// DOCXParser reads the main document part of an OOXML word file. Runs are
// joined within a paragraph and paragraphs are separated by newlines.
type DOCXParser struct{}

func (DOCXParser) Name() string             { return "docx" }
func (DOCXParser) Supports(ext string) bool { return ext == ".docx" }
func (DOCXParser) Available() bool          { return true }

func (DOCXParser) Parse(ctx context.Context, content []byte, _ string) (Document, error) {
	zr, err := openZip(content)
	if err != nil {
		return Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	docXML, err := readZipEntry(zr, docPath)
	if err != nil {
		return Document{}, err
	}
	if docXML == nil {
		return Document{}, fmt.Errorf("%s not found", docPath)
	}
	return Document{Text: strings.Join(paragraphs(string(docXML), wpBlock, wtTag), "\n")}, nil
}

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	data, err := readZipEntry(zr, contentTypesPath)
	if err != nil || data == nil {
		return ""
	}
	content := string(data)
	if matches := partNameRe.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(matches[1], "/")
	}
	if matches := partNameRe2.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(matches[1], "/")
	}
	return ""
}
