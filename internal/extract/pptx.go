package extract

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// slidePathRe matches ppt/slides/slideN.xml and captures N.
	slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	// atTag matches <a:t>text</a:t> or <a:t xml:space="preserve">text</a:t>.
	atTag = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
	// apBlock matches one DrawingML paragraph.
	apBlock = regexp.MustCompile(`(?s)<a:p(?:\s[^>]*)?>.*?</a:p>`)
)

// PPTXParser reads slide text in slide order. Slides count as pages.
type PPTXParser struct{}

func (PPTXParser) Name() string             { return "pptx" }
func (PPTXParser) Supports(ext string) bool { return ext == ".pptx" }
func (PPTXParser) Available() bool          { return true }

func (PPTXParser) Parse(ctx context.Context, content []byte, _ string) (Document, error) {
	zr, err := openZip(content)
	if err != nil {
		return Document{}, err
	}

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePathRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		num, _ := strconv.Atoi(m[1])
		data, err := readZipFile(f)
		if err != nil {
			return Document{}, err
		}
		slides = append(slides, slide{num: num, text: strings.Join(paragraphs(string(data), apBlock, atTag), "\n")})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	texts := make([]string, 0, len(slides))
	for _, s := range slides {
		if s.text != "" {
			texts = append(texts, s.text)
		}
	}
	return Document{Text: strings.Join(texts, "\n\n"), PageCount: len(slides)}, nil
}
