package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip: %w", err)
	}
	return zr, nil
}

// readZipEntry returns the bytes of the named entry, or nil when it is absent.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		return readZipFile(f)
	}
	return nil, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// joinRuns concatenates the text of every match of runRe inside block. XML
// entities are decoded.
func joinRuns(block string, runRe *regexp.Regexp) string {
	var b strings.Builder
	for _, m := range runRe.FindAllStringSubmatch(block, -1) {
		b.WriteString(html.UnescapeString(m[1]))
	}
	return strings.TrimSpace(b.String())
}

// paragraphs splits xml into paragraph blocks with paraRe and returns the
// non-empty text of each.
func paragraphs(xml string, paraRe, runRe *regexp.Regexp) []string {
	var out []string
	for _, block := range paraRe.FindAllString(xml, -1) {
		if text := joinRuns(block, runRe); text != "" {
			out = append(out, text)
		}
	}
	return out
}
